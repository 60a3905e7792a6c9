package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/mauv0809/quant-screener/internal/screener"
)

// Viper keys. Each is read from the upper-cased env var with dots as
// underscores, e.g. screener.page_size from SCREENER_PAGE_SIZE.
const (
	KeyBaseURL        = "screener.base_url"
	KeyPageSize       = "screener.page_size"
	KeyPageDelay      = "screener.page_delay"
	KeyMetricsDelay   = "screener.metrics_delay"
	KeyMinCount       = "screener.min_count"
	KeyMaxPages       = "screener.max_pages"
	KeyCookies        = "screener.cookies"
	KeyUserAgent      = "screener.user_agent"
	KeyTimezone       = "screener.timezone"
	KeyExcludeOTC     = "screener.exclude_otc"
	KeySkipRatings    = "screener.skip_ratings_check"
	KeyHTTPTimeout    = "http.timeout"
	KeyDatasetDir     = "dataset.dir"
	KeyDatasetFormats = "dataset.formats"
	KeyDatabaseURL    = "database.url"
	KeyEnrichFigi     = "figi.enrich"
	KeyPort           = "port"
	KeyAdminRate      = "admin.rate_limit"
	KeyRunOnStart     = "run.on_start"
	KeyHideProgress   = "display.hide_progress"
	KeyLogJSON        = "log.json"
	KeyLogLevel       = "log.level"
)

// ConfigName is the config file looked up in the home and working
// directories when no file is given.
const ConfigName = ".quant-screener"

// SupportedFormats are the dataset file formats a run can write.
var SupportedFormats = []string{"jsonl", "parquet"}

const (
	defaultTimezone = "America/New_York"
	defaultTimeout  = 60 * time.Second
	defaultPort     = "8080"
	defaultLogLevel = "info"
	defaultDataset  = "datasets"
	defaultFormats  = "jsonl,parquet"
	defaultRate     = 1.0
)

// Config is the resolved runtime configuration.
type Config struct {
	BaseURL        string
	PageSize       int
	PageDelay      time.Duration
	MetricsDelay   time.Duration
	MinTotalCount  int
	MaxPages       int
	Cookies        []screener.Cookie
	UserAgent      string
	Timezone       string
	ExcludeOTC     bool
	SkipRatings    bool
	HTTPTimeout    time.Duration
	DatasetDir     string
	DatasetFormats []string
	DatabaseURL    string
	EnrichFigi     bool
	Port           string
	AdminRate      float64
	RunOnStart     bool
	HideProgress   bool
	LogJSON        bool
	LogLevel       string
}

// LoadDotEnv loads .env if it exists (local dev).
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}
}

// New returns a viper instance with defaults that reads the environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBaseURL, screener.DefaultBaseURL)
	v.SetDefault(KeyPageSize, screener.DefaultPageSize)
	v.SetDefault(KeyPageDelay, screener.DefaultPageDelay)
	v.SetDefault(KeyMetricsDelay, screener.DefaultMetricsDelay)
	v.SetDefault(KeyMinCount, 0)
	v.SetDefault(KeyMaxPages, 0)
	v.SetDefault(KeyCookies, "")
	v.SetDefault(KeyUserAgent, "")
	v.SetDefault(KeyTimezone, defaultTimezone)
	v.SetDefault(KeyExcludeOTC, false)
	v.SetDefault(KeySkipRatings, false)
	v.SetDefault(KeyHTTPTimeout, defaultTimeout)
	v.SetDefault(KeyDatasetDir, defaultDataset)
	v.SetDefault(KeyDatasetFormats, defaultFormats)
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyEnrichFigi, true)
	v.SetDefault(KeyPort, defaultPort)
	v.SetDefault(KeyAdminRate, defaultRate)
	v.SetDefault(KeyRunOnStart, false)
	v.SetDefault(KeyHideProgress, false)
	v.SetDefault(KeyLogJSON, false)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	return v
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cookies, err := ParseCookies(v.GetString(KeyCookies))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BaseURL:        v.GetString(KeyBaseURL),
		PageSize:       v.GetInt(KeyPageSize),
		PageDelay:      v.GetDuration(KeyPageDelay),
		MetricsDelay:   v.GetDuration(KeyMetricsDelay),
		MinTotalCount:  v.GetInt(KeyMinCount),
		MaxPages:       v.GetInt(KeyMaxPages),
		Cookies:        cookies,
		UserAgent:      v.GetString(KeyUserAgent),
		Timezone:       v.GetString(KeyTimezone),
		ExcludeOTC:     v.GetBool(KeyExcludeOTC),
		SkipRatings:    v.GetBool(KeySkipRatings),
		HTTPTimeout:    v.GetDuration(KeyHTTPTimeout),
		DatasetDir:     v.GetString(KeyDatasetDir),
		DatasetFormats: splitList(v.GetStringSlice(KeyDatasetFormats)),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		EnrichFigi:     v.GetBool(KeyEnrichFigi),
		Port:           v.GetString(KeyPort),
		AdminRate:      v.GetFloat64(KeyAdminRate),
		RunOnStart:     v.GetBool(KeyRunOnStart),
		HideProgress:   v.GetBool(KeyHideProgress),
		LogJSON:        v.GetBool(KeyLogJSON),
		LogLevel:       v.GetString(KeyLogLevel),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("screener base url is required"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.PageSize))
	}
	if c.PageDelay < 0 || c.MetricsDelay < 0 {
		errs = append(errs, errors.New("request delays must not be negative"))
	}
	if c.MinTotalCount < 0 || c.MaxPages < 0 {
		errs = append(errs, errors.New("min count and max pages must not be negative"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	for _, f := range c.DatasetFormats {
		if !slices.Contains(SupportedFormats, f) {
			errs = append(errs, fmt.Errorf("dataset format %q is not one of %s", f, strings.Join(SupportedFormats, ", ")))
		}
	}
	if c.AdminRate < 0 {
		errs = append(errs, errors.New("admin rate limit must not be negative"))
	}
	return errors.Join(errs...)
}

// splitList accepts both a list and a comma separated string.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ReadFile loads a config file into v. An empty path looks for
// .quant-screener.toml in the home and working directories and is not an
// error when none exists. Environment variables and flags still win.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("toml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	log.Debug().Str("FileName", v.ConfigFileUsed()).Msg("loaded config file")
	return nil
}

// ParseCookies reads the JSON cookie list, e.g.
// [{"name":"session_id","value":"...","domain":".seekingalpha.com"}].
func ParseCookies(raw string) ([]screener.Cookie, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var cookies []screener.Cookie
	if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		return nil, fmt.Errorf("parsing cookies: %w", err)
	}
	for i, c := range cookies {
		if c.Name == "" {
			return nil, fmt.Errorf("cookie %d has no name", i)
		}
	}
	return cookies, nil
}

// Location returns the market time zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DriverConfig maps the configuration onto a screener driver config.
func (c Config) DriverConfig() screener.Config {
	return screener.Config{
		BaseURL:          c.BaseURL,
		PageSize:         c.PageSize,
		PageDelay:        c.PageDelay,
		MetricsDelay:     c.MetricsDelay,
		MinTotalCount:    c.MinTotalCount,
		MaxPages:         c.MaxPages,
		ExcludeOTC:       c.ExcludeOTC,
		SkipRatingsCheck: c.SkipRatings,
		Location:         c.Location(),
	}
}

// NewClient builds the fetch channel from the configuration.
func (c Config) NewClient() (*screener.Client, error) {
	return screener.NewClient(c.BaseURL,
		screener.WithTimeout(c.HTTPTimeout),
		screener.WithUserAgent(c.UserAgent),
		screener.WithCookies(c.Cookies),
	)
}
