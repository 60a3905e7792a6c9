package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mauv0809/quant-screener/internal/config"
	"github.com/mauv0809/quant-screener/internal/db"
	"github.com/mauv0809/quant-screener/internal/logging"
	"github.com/mauv0809/quant-screener/internal/runner"
	"github.com/mauv0809/quant-screener/internal/screener"
)

func main() {
	config.LoadDotEnv()
	v := config.New()
	os.Exit(execute(newRootCmd(v)))
}

// execute runs the command and maps its error onto a process exit code.
func execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err != nil {
		log.Error().Err(err).Msg("screen failed")
	}
	return screener.ExitCode(err)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var noDB bool
	var configFile string

	cmd := &cobra.Command{
		Use:           "screen",
		Short:         "Download one screener run of quant ratings and metrics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, configFile); err != nil {
				return err
			}
			return logging.Setup(v.GetString(config.KeyLogLevel), v.GetBool(config.KeyLogJSON))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, noDB)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $HOME/"+config.ConfigName+".toml)")

	flags := cmd.Flags()
	flags.Bool("log-json", false, "print logs as json to stderr")
	flags.String("log-level", "info", "log level")
	flags.Int("limit", 0, "stop after N pages (0 = all)")
	flags.Int("min-count", 0, "fail when the screen matches fewer tickers")
	flags.Int("page-size", screener.DefaultPageSize, "tickers per screener page")
	flags.String("dataset-dir", "datasets", "directory for dataset files (empty disables)")
	flags.StringSlice("dataset-format", config.SupportedFormats, "dataset file formats to write")
	flags.Bool("exclude-otc", false, "skip tickers listed on OTC, Grey or Pink markets")
	flags.Bool("skip-ratings-check", false, "do not fail when a required rating is zero for every record")
	flags.Bool("hide-progress", false, "do not draw the progress bar")
	flags.StringP("database-url", "d", "", "Postgres URL for the record sink")
	flags.BoolVar(&noDB, "no-db", false, "do not write to the database even if configured")

	bind := map[string]string{
		"log-json":           config.KeyLogJSON,
		"log-level":          config.KeyLogLevel,
		"limit":              config.KeyMaxPages,
		"min-count":          config.KeyMinCount,
		"page-size":          config.KeyPageSize,
		"dataset-dir":        config.KeyDatasetDir,
		"dataset-format":     config.KeyDatasetFormats,
		"exclude-otc":        config.KeyExcludeOTC,
		"skip-ratings-check": config.KeySkipRatings,
		"hide-progress":      config.KeyHideProgress,
		"database-url":       config.KeyDatabaseURL,
	}
	for flag, key := range bind {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}

	return cmd
}

func run(ctx context.Context, cfg config.Config, noDB bool) error {
	client, err := cfg.NewClient()
	if err != nil {
		return err
	}

	var opts runner.Options
	if cfg.DatasetDir != "" {
		opts.DatasetDir = cfg.DatasetDir
		opts.DatasetFormats = cfg.DatasetFormats
	}
	if cfg.DatabaseURL != "" && !noDB {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		repo := db.NewRepository(pool)
		opts.Store = repo
		if cfg.EnrichFigi {
			opts.Assets = repo
		}
	}

	log.Info().
		Str("BaseUrl", cfg.BaseURL).
		Int("PageSize", cfg.PageSize).
		Int("MaxPages", cfg.MaxPages).
		Bool("Database", opts.Store != nil).
		Bool("Figi", opts.Assets != nil).
		Str("DatasetDir", cfg.DatasetDir).
		Strs("DatasetFormats", opts.DatasetFormats).
		Msg("starting screen")

	progress := newPageProgress(os.Stderr, cfg.HideProgress)
	driverCfg := cfg.DriverConfig()
	driverCfg.OnPage = progress.update

	result, err := runner.New(client, driverCfg, opts).Run(ctx)
	progress.finish()
	if err != nil {
		return err
	}
	log.Info().
		Int("Pages", result.Pages).
		Int("Records", result.Records).
		Int("EmitFailures", result.EmitFailures).
		Msg("screen finished")
	return nil
}
