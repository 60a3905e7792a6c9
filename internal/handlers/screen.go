package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/mauv0809/quant-screener/internal/models"
	"github.com/mauv0809/quant-screener/internal/screener"
)

// ScreenRunner performs one screener run.
type ScreenRunner interface {
	Run(ctx context.Context) (models.ScreenRun, error)
}

// StatusStore reports persisted run state. Optional.
type StatusStore interface {
	GetLatestRun(ctx context.Context) (*models.ScreenRun, error)
	GetRecordCount(ctx context.Context) (int, error)
	GetLastRunDate(ctx context.Context) (time.Time, error)
	GetTickerCount(ctx context.Context, runDate time.Time) (int, error)
}

// ScreenHandler handles screener run endpoints. At most one run is active.
type ScreenHandler struct {
	runner ScreenRunner
	store  StatusStore
	// runs triggered over HTTP outlive the request
	baseCtx context.Context

	mu      sync.Mutex
	running bool
	last    *models.ScreenRun
	wg      sync.WaitGroup
}

// NewScreenHandler creates a new screen handler. store may be nil.
func NewScreenHandler(ctx context.Context, runner ScreenRunner, store StatusStore) *ScreenHandler {
	return &ScreenHandler{
		runner:  runner,
		store:   store,
		baseCtx: ctx,
	}
}

// ScreenResponse is the JSON response for run endpoints.
type ScreenResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Count    int    `json:"count,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

func (h *ScreenHandler) tryStart() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	h.wg.Add(1)
	return true
}

func (h *ScreenHandler) done(run models.ScreenRun) {
	h.mu.Lock()
	h.running = false
	h.last = &run
	h.mu.Unlock()
	h.wg.Done()
}

func (h *ScreenHandler) execute(ctx context.Context) (models.ScreenRun, error) {
	start := time.Now()
	log.Info().Msg("starting screen run")

	run, err := h.runner.Run(ctx)
	h.done(run)
	if err != nil {
		log.Error().Err(err).Int("ExitCode", screener.ExitCode(err)).Msg("screen run failed")
		return run, err
	}
	log.Info().
		Int("Pages", run.Pages).
		Int("Records", run.Records).
		Dur("Elapsed", time.Since(start)).
		Msg("screen run complete")
	return run, nil
}

// Trigger starts a run in the background. It reports false when a run is
// already in progress.
func (h *ScreenHandler) Trigger() bool {
	if !h.tryStart() {
		return false
	}
	go func() {
		_, _ = h.execute(h.baseCtx)
	}()
	return true
}

// Wait blocks until no run is in progress.
func (h *ScreenHandler) Wait() {
	h.wg.Wait()
}

// RunScreen handles POST /admin/screen/run
// Starts a screener run in the background. Query params:
// - wait: if "true", run in the request and return the outcome
func (h *ScreenHandler) RunScreen(c echo.Context) error {
	if c.QueryParam("wait") != "true" {
		if !h.Trigger() {
			return c.JSON(http.StatusConflict, ScreenResponse{
				Success: false,
				Message: "A screen run is already in progress",
			})
		}
		return c.JSON(http.StatusAccepted, ScreenResponse{
			Success: true,
			Message: "Screen run started",
		})
	}

	if !h.tryStart() {
		return c.JSON(http.StatusConflict, ScreenResponse{
			Success: false,
			Message: "A screen run is already in progress",
		})
	}

	start := time.Now()
	run, err := h.execute(c.Request().Context())
	elapsed := time.Since(start)
	if err != nil {
		return c.JSON(http.StatusBadGateway, ScreenResponse{
			Success:  false,
			Message:  fmt.Sprintf("Screen run failed: %v", err),
			Count:    run.Records,
			Pages:    run.Pages,
			Elapsed:  elapsed.String(),
			ExitCode: screener.ExitCode(err),
		})
	}

	return c.JSON(http.StatusOK, ScreenResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully screened %d records", run.Records),
		Count:   run.Records,
		Pages:   run.Pages,
		Elapsed: elapsed.String(),
	})
}

// ScreenStatus handles GET /admin/screen/status
// Returns whether a run is in progress, the last run, and stored counts.
func (h *ScreenHandler) ScreenStatus(c echo.Context) error {
	ctx := c.Request().Context()

	h.mu.Lock()
	running := h.running
	last := h.last
	h.mu.Unlock()

	resp := map[string]interface{}{
		"running": running,
	}

	if h.store != nil {
		if stored, err := h.store.GetLatestRun(ctx); err != nil {
			log.Warn().Err(err).Msg("could not load latest run")
		} else if stored != nil {
			last = stored
		}
		recordCount, err := h.store.GetRecordCount(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("could not count records")
		}
		lastRunDate, err := h.store.GetLastRunDate(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("could not load last run date")
		}
		resp["records"] = recordCount
		resp["last_run_date"] = lastRunDate.Format(models.DateLayout)
		if !lastRunDate.IsZero() {
			tickers, err := h.store.GetTickerCount(ctx, lastRunDate)
			if err != nil {
				log.Warn().Err(err).Msg("could not count tickers")
			}
			resp["last_run_tickers"] = tickers
		}
	}
	resp["last_run"] = last

	return c.JSON(http.StatusOK, resp)
}
