// Package runner wires one screener run to its sinks and run bookkeeping.
package runner

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mauv0809/quant-screener/internal/db"
	"github.com/mauv0809/quant-screener/internal/figi"
	"github.com/mauv0809/quant-screener/internal/models"
	"github.com/mauv0809/quant-screener/internal/screener"
	"github.com/mauv0809/quant-screener/internal/sink"
)

// Dataset file formats.
const (
	FormatJSONLines = "jsonl"
	FormatParquet   = "parquet"
)

// Store persists runs and their records. *db.Repository satisfies it.
type Store interface {
	sink.RecordInserter
	StartRun(ctx context.Context, runDate time.Time) (int64, error)
	UpdateRunProgress(ctx context.Context, id int64, pages, records, emitFailures int) error
	FinishRun(ctx context.Context, run models.ScreenRun) error
}

// Options selects where a run's records go. Every field is optional.
type Options struct {
	Store Store
	// Assets, when set, links records to the asset master by composite FIGI.
	Assets         figi.AssetStore
	DatasetDir     string
	DatasetFormats []string
}

// Runner executes screener runs.
type Runner struct {
	fetcher screener.Fetcher
	cfg     screener.Config
	opts    Options
}

func New(fetcher screener.Fetcher, cfg screener.Config, opts Options) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if opts.DatasetDir != "" && len(opts.DatasetFormats) == 0 {
		opts.DatasetFormats = []string{FormatJSONLines}
	}
	return &Runner{fetcher: fetcher, cfg: cfg, opts: opts}
}

// Run performs one full screen. The returned run summary is filled in even
// when err is set.
func (r *Runner) Run(ctx context.Context) (models.ScreenRun, error) {
	start := r.cfg.Now()
	run := models.ScreenRun{
		RunDate:   screener.RunDate(start, r.cfg.Location),
		StartedAt: start,
		Status:    db.RunRunning,
	}

	store := r.opts.Store
	runKey := strconv.FormatInt(start.Unix(), 10)
	if store != nil {
		id, err := store.StartRun(ctx, run.RunDate)
		if err != nil {
			return r.finish(ctx, run, err)
		}
		run.ID = id
		runKey = strconv.FormatInt(id, 10)
	}

	var sinks sink.Multi
	if r.opts.DatasetDir != "" {
		for _, format := range r.opts.DatasetFormats {
			ds, err := r.openDataset(format, run.RunDate, runKey)
			if err != nil {
				return r.finish(ctx, run, err)
			}
			defer func() {
				if err := ds.Close(); err != nil {
					log.Error().Err(err).Str("Format", format).Msg("closing dataset")
				}
			}()
			sinks = append(sinks, ds)
		}
	}
	if store != nil {
		sinks = append(sinks, sink.NewPostgres(store, run.ID))
	}
	var out screener.Sink = sinks
	if len(sinks) == 0 {
		log.Warn().Msg("no dataset directory or database configured, records will be discarded")
		out = sink.Discard{}
	} else if r.opts.Assets != nil {
		out = figi.NewEnricher(r.opts.Assets, sinks)
	}

	cfg := r.cfg
	// the driver derives the same run date from the same instant
	cfg.Now = func() time.Time { return start }
	onPage := r.cfg.OnPage
	cfg.OnPage = func(stats screener.RunStats) {
		if onPage != nil {
			onPage(stats)
		}
		if store == nil {
			return
		}
		if err := store.UpdateRunProgress(ctx, run.ID, stats.Pages, stats.Records, stats.EmitFailures); err != nil {
			log.Warn().Err(err).Int64("RunId", run.ID).Msg("could not update run progress")
		}
	}

	stats, err := screener.NewDriver(r.fetcher, cfg).Run(ctx, out)
	run.Pages = stats.Pages
	run.Records = stats.Records
	run.EmitFailures = stats.EmitFailures
	return r.finish(ctx, run, err)
}

type datasetSink interface {
	sink.Sink
	io.Closer
	Path() string
}

func (r *Runner) openDataset(format string, runDate time.Time, runKey string) (datasetSink, error) {
	var ds datasetSink
	var err error
	switch format {
	case FormatJSONLines:
		ds, err = sink.NewDataset(r.opts.DatasetDir, runDate, runKey)
	case FormatParquet:
		catalog := r.cfg.Catalog
		if catalog == nil {
			catalog = screener.DefaultCatalog()
		}
		ds, err = sink.NewParquet(r.opts.DatasetDir, runDate, runKey, screener.CatalogFields(catalog))
	default:
		return nil, fmt.Errorf("unknown dataset format %q", format)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("FileName", ds.Path()).Msg("writing dataset")
	return ds, nil
}

func (r *Runner) finish(ctx context.Context, run models.ScreenRun, runErr error) (models.ScreenRun, error) {
	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = db.RunSucceeded
	if runErr != nil {
		run.Status = db.RunFailed
		run.Error = runErr.Error()
	}

	if r.opts.Store != nil && run.ID != 0 {
		// a cancelled run still records its outcome
		if err := r.opts.Store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error().Err(err).Int64("RunId", run.ID).Msg("could not record run outcome")
		}
	}
	return run, runErr
}
