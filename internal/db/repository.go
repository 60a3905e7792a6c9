package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mauv0809/quant-screener/internal/models"
)

// Run statuses stored in screener_runs.status.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

const insertRecordSQL = `
	INSERT INTO screener_records (
		run_id, run_date, ticker_id, ticker, slug,
		company_name, exchange, equity_type, metrics, composite_figi
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Repository handles database operations for screener output.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertRecord appends one consolidated record. A zero runID stores no run reference.
func (r *Repository) InsertRecord(ctx context.Context, runID int64, rec models.Record) error {
	metrics, err := encodeMetrics(rec)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, insertRecordSQL, recordArgs(runID, rec, metrics)...)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.TickerID, err)
	}
	return nil
}

func recordArgs(runID int64, rec models.Record, metrics []byte) []any {
	return []any{
		nullableID(runID), rec.Date, rec.TickerID, rec.Ticker, rec.Slug,
		rec.CompanyName, rec.Exchange, rec.EquityType, metrics, nullableText(rec.CompositeFigi),
	}
}

// encodeMetrics renders the metric map as the JSONB payload. Numbers keep
// their decimal text.
func encodeMetrics(rec models.Record) ([]byte, error) {
	metrics := rec.Metrics
	if metrics == nil {
		metrics = map[string]models.MetricValue{}
	}
	b, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("encoding metrics for %s: %w", rec.TickerID, err)
	}
	return b, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// StartRun records a new running run and returns its id.
func (r *Repository) StartRun(ctx context.Context, runDate time.Time) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		"INSERT INTO screener_runs (run_date, status) VALUES ($1, $2) RETURNING id",
		runDate, RunRunning,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// UpdateRunProgress stores the running totals of a run.
func (r *Repository) UpdateRunProgress(ctx context.Context, id int64, pages, records, emitFailures int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE screener_runs SET pages = $2, records = $3, emit_failures = $4 WHERE id = $1",
		id, pages, records, emitFailures,
	)
	if err != nil {
		return fmt.Errorf("updating run %d: %w", id, err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (r *Repository) FinishRun(ctx context.Context, run models.ScreenRun) error {
	var runErr *string
	if run.Error != "" {
		runErr = &run.Error
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE screener_runs SET
			finished_at = NOW(),
			pages = $2,
			records = $3,
			emit_failures = $4,
			status = $5,
			error = $6
		WHERE id = $1
	`, run.ID, run.Pages, run.Records, run.EmitFailures, run.Status, runErr)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", run.ID, err)
	}
	return nil
}

// GetLatestRun returns the most recently started run, or nil if there is none.
func (r *Repository) GetLatestRun(ctx context.Context) (*models.ScreenRun, error) {
	var run models.ScreenRun
	var runErr *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, run_date, started_at, finished_at, pages, records, emit_failures, status, error
		FROM screener_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`).Scan(&run.ID, &run.RunDate, &run.StartedAt, &run.FinishedAt,
		&run.Pages, &run.Records, &run.EmitFailures, &run.Status, &runErr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	if runErr != nil {
		run.Error = *runErr
	}
	return &run, nil
}

// GetLastRunDate returns the most recent run date with stored records.
func (r *Repository) GetLastRunDate(ctx context.Context) (time.Time, error) {
	var last time.Time
	err := r.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(run_date), '1970-01-01'::date) FROM screener_records",
	).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last run date: %w", err)
	}
	return last, nil
}

// GetRecordCount returns the number of stored records.
func (r *Repository) GetRecordCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM screener_records").Scan(&count)
	return count, err
}

// GetTickerCount returns the number of distinct tickers stored for a run date.
func (r *Repository) GetTickerCount(ctx context.Context, runDate time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(DISTINCT ticker_id) FROM screener_records WHERE run_date = $1",
		runDate,
	).Scan(&count)
	return count, err
}

// ListLinkedAssets returns the active assets already linked to a screener
// ticker id and carrying a composite FIGI.
func (r *Repository) ListLinkedAssets(ctx context.Context) ([]models.Asset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ticker, name, composite_figi, screener_ticker_id
		FROM assets
		WHERE active AND screener_ticker_id IS NOT NULL AND composite_figi IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("querying linked assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.Ticker, &a.Name, &a.CompositeFigi, &a.ScreenerID); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// FindUnlinkedAsset returns the active asset for ticker that has a composite
// FIGI but no screener ticker id yet, or nil if there is none.
func (r *Repository) FindUnlinkedAsset(ctx context.Context, ticker string) (*models.Asset, error) {
	var a models.Asset
	err := r.pool.QueryRow(ctx, `
		SELECT ticker, name, composite_figi
		FROM assets
		WHERE active AND composite_figi IS NOT NULL AND screener_ticker_id IS NULL AND ticker = $1
		LIMIT 1
	`, ticker).Scan(&a.Ticker, &a.Name, &a.CompositeFigi)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset %s: %w", ticker, err)
	}
	return &a, nil
}

// LinkAsset stores the screener ticker id on the asset with the given ticker
// and composite FIGI.
func (r *Repository) LinkAsset(ctx context.Context, asset models.Asset) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE assets SET screener_ticker_id = $1
		WHERE active AND screener_ticker_id IS NULL AND composite_figi = $2 AND ticker = $3
	`, asset.ScreenerID, asset.CompositeFigi, asset.Ticker)
	if err != nil {
		return fmt.Errorf("linking asset %s: %w", asset.Ticker, err)
	}
	return nil
}
