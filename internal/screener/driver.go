package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mauv0809/quant-screener/internal/models"
)

const (
	DefaultBaseURL      = "https://seekingalpha.com"
	DefaultPageSize     = 100
	DefaultPageDelay    = time.Second
	DefaultMetricsDelay = 150 * time.Millisecond
)

// Sink receives every consolidated record. Implementations append only.
type Sink interface {
	Emit(ctx context.Context, rec models.Record) error
}

// Config controls one screener walk.
type Config struct {
	BaseURL     string
	PageSize    int
	InitialPage int
	// PageDelay and MetricsDelay are waited before every screener and
	// metrics request. Zero sends without waiting.
	PageDelay    time.Duration
	MetricsDelay time.Duration
	// MinTotalCount fails the run when the screen matches fewer tickers.
	MinTotalCount int
	// MaxPages stops the walk after that many pages. Zero walks every page.
	MaxPages int
	// ExcludeOTC drops records listed on OTC, grey or pink sheet venues.
	ExcludeOTC bool
	// SkipRatingsCheck disables the end of run check on RequiredRatings.
	SkipRatingsCheck bool
	Filter           map[string]FilterDef
	Catalog          []CatalogEntry
	// Location is the market time zone the run date is taken in.
	Location *time.Location
	Now      func() time.Time
	// OnPage, if set, is called with the running totals after each page.
	OnPage func(RunStats)
}

// RunStats summarises a run, complete or not.
type RunStats struct {
	RunDate       time.Time
	Pages         int
	TotalPages    int
	TotalCount    int
	MetricFetches int
	Records       int
	EmitFailures  int
	Skipped       int
}

// Driver walks the screener pages and emits one record per ticker per page.
type Driver struct {
	fetcher Fetcher
	cfg     Config
}

// NewDriver fills unset config fields with defaults.
func NewDriver(fetcher Fetcher, cfg Config) *Driver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.InitialPage <= 0 {
		cfg.InitialPage = 1
	}
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Driver{fetcher: fetcher, cfg: cfg}
}

// pageState is the only state carried from one page to the next.
type pageState struct {
	Page       int
	TotalPages int
}

func newPageState(initial int) pageState {
	// assume one more page until the screener reports a count
	return pageState{Page: initial, TotalPages: initial + 1}
}

func (s pageState) withCount(count, pageSize int) pageState {
	s.TotalPages = (count + pageSize - 1) / pageSize
	return s
}

func (s pageState) hasNext() bool {
	return s.Page < s.TotalPages
}

func (s pageState) next() pageState {
	s.Page++
	return s
}

// RunDate is the market-time stamp shared by every record of a run.
func RunDate(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 9, 30, 0, 0, loc)
}

// pause blocks for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run walks every screener page. Any fatal error stops the walk; records
// already emitted stay in the sink. Sink errors are counted, not fatal.
// After the last page the run fails if a required rating is zero for every
// record.
func (d *Driver) Run(ctx context.Context, sink Sink) (RunStats, error) {
	stats := RunStats{RunDate: RunDate(d.cfg.Now(), d.cfg.Location)}
	totals := newRatingTotals(d.cfg.Catalog)

	state := newPageState(d.cfg.InitialPage)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		result, err := d.fetchScreenerPage(ctx, state.Page)
		if err != nil {
			return stats, fmt.Errorf("page %d: %w", state.Page, err)
		}
		state = state.withCount(result.TotalCount, d.cfg.PageSize)
		stats.Pages++
		stats.TotalPages = state.TotalPages
		stats.TotalCount = result.TotalCount

		log.Info().
			Int("Page", state.Page).
			Int("TotalPages", state.TotalPages).
			Int("TotalCount", result.TotalCount).
			Int("Tickers", len(result.Tickers)).
			Msg("fetched screener page")

		if d.cfg.MinTotalCount > 0 && result.TotalCount < d.cfg.MinTotalCount {
			return stats, &Error{
				Kind:   ResultBelowThreshold,
				Site:   SiteScreener,
				Detail: fmt.Sprintf("%d matches, want at least %d", result.TotalCount, d.cfg.MinTotalCount),
			}
		}

		consolidated, err := d.collectMetrics(ctx, result, stats.RunDate, &stats)
		if err != nil {
			return stats, fmt.Errorf("page %d: %w", state.Page, err)
		}

		records := consolidated.Records(result.Tickers)
		for _, rec := range records {
			totals.add(rec)
		}
		d.emit(ctx, sink, records, &stats)
		if d.cfg.OnPage != nil {
			d.cfg.OnPage(stats)
		}

		if !state.hasNext() {
			break
		}
		if d.cfg.MaxPages > 0 && stats.Pages >= d.cfg.MaxPages {
			log.Info().Int("MaxPages", d.cfg.MaxPages).Msg("page limit reached")
			break
		}
		state = state.next()
	}

	log.Info().
		Int("Pages", stats.Pages).
		Int("Records", stats.Records).
		Int("EmitFailures", stats.EmitFailures).
		Int("Skipped", stats.Skipped).
		Msg("screener run finished")

	if !d.cfg.SkipRatingsCheck {
		if err := totals.check(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (d *Driver) fetchScreenerPage(ctx context.Context, page int) (ScreenerResult, error) {
	body, err := json.Marshal(ScreenerArguments{
		Filter:  d.cfg.Filter,
		Page:    page,
		PerPage: d.cfg.PageSize,
	})
	if err != nil {
		return ScreenerResult{}, fmt.Errorf("encoding screener arguments: %w", err)
	}

	header := d.header()
	header.Set("Content-Type", "application/json")
	resp, err := d.fetch(ctx, d.cfg.PageDelay, SiteScreener, Request{
		Method: http.MethodPost,
		URL:    d.cfg.BaseURL + screenerAPIPath,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return ScreenerResult{}, err
	}
	return ParseScreenerResponse(resp.Body)
}

// collectMetrics fetches every catalog entry for the page's tickers, one at a
// time and in catalog order.
func (d *Driver) collectMetrics(ctx context.Context, page ScreenerResult, date time.Time, stats *RunStats) (*Consolidated, error) {
	consolidated := NewConsolidated()
	if len(page.Tickers) == 0 {
		return consolidated, nil
	}

	slugs := page.Slugs()
	for _, entry := range d.cfg.Catalog {
		resp, err := d.fetch(ctx, d.cfg.MetricsDelay, SiteMetrics, Request{
			Method: http.MethodGet,
			URL:    entry.URL(d.cfg.BaseURL, slugs),
			Header: d.header(),
		})
		stats.MetricFetches++
		if err != nil {
			return nil, fmt.Errorf("%s metrics: %w", entry.Name, err)
		}

		parsed, err := ParseMetricsResponse(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s metrics: %w", entry.Name, err)
		}
		rows, err := ResolveRows(parsed)
		if err != nil {
			return nil, fmt.Errorf("%s metrics: %w", entry.Name, err)
		}
		consolidated.MergeResponse(rows, parsed.Tickers, date)

		log.Debug().Str("Bundle", entry.Name).Int("Rows", len(rows)).Msg("merged metrics")
	}
	return consolidated, nil
}

func (d *Driver) emit(ctx context.Context, sink Sink, records []models.Record, stats *RunStats) {
	for _, rec := range records {
		if d.cfg.ExcludeOTC && IsOTC(rec.Exchange) {
			stats.Skipped++
			log.Debug().Str("Ticker", rec.Ticker).Str("Exchange", rec.Exchange).Msg("skipping otc record")
			continue
		}
		if err := sink.Emit(ctx, rec); err != nil {
			stats.EmitFailures++
			log.Error().Err(err).Str("TickerId", rec.TickerID).Str("Ticker", rec.Ticker).Msg("failed to emit record")
			continue
		}
		stats.Records++
	}
}

func (d *Driver) header() http.Header {
	h := http.Header{}
	h.Set("Referer", d.cfg.BaseURL+screenerPagePath)
	return h
}

// fetch waits delay, then sends and classifies one request.
func (d *Driver) fetch(ctx context.Context, delay time.Duration, site Site, req Request) (Response, error) {
	if err := pause(ctx, delay); err != nil {
		return Response{}, err
	}

	resp, err := d.fetcher.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, &Error{Kind: UpstreamUnavailable, Site: site, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Int("Status", resp.StatusCode).Str("Url", req.URL).Msg("upstream returned non-success status")
		return Response{}, &Error{Kind: UpstreamUnavailable, Site: site, Status: resp.StatusCode, Detail: req.URL}
	}
	return resp, nil
}
