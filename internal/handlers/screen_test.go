package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/quant-screener/internal/models"
	"github.com/mauv0809/quant-screener/internal/screener"
)

type blockingRunner struct {
	release chan struct{}
	calls   chan struct{}
	run     models.ScreenRun
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), calls: make(chan struct{}, 10)}
}

func (r *blockingRunner) Run(ctx context.Context) (models.ScreenRun, error) {
	r.calls <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return r.run, ctx.Err()
	}
	return r.run, r.err
}

type instantRunner struct {
	run models.ScreenRun
	err error
}

func (r instantRunner) Run(context.Context) (models.ScreenRun, error) {
	return r.run, r.err
}

func serve(t *testing.T, handler echo.HandlerFunc, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := serve(t, New().Health, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestRunScreenAsyncAndConflict(t *testing.T) {
	runner := newBlockingRunner()
	runner.run = models.ScreenRun{Pages: 3, Records: 250, Status: "succeeded"}
	h := NewScreenHandler(context.Background(), runner, nil)

	rec, body := serve(t, h.RunScreen, http.MethodPost, "/admin/screen/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, body["success"])

	select {
	case <-runner.calls:
	case <-time.After(time.Second):
		t.Fatal("run did not start")
	}

	rec, body = serve(t, h.RunScreen, http.MethodPost, "/admin/screen/run")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])

	_, status := serve(t, h.ScreenStatus, http.MethodGet, "/admin/screen/status")
	assert.Equal(t, true, status["running"])

	close(runner.release)
	h.Wait()

	_, status = serve(t, h.ScreenStatus, http.MethodGet, "/admin/screen/status")
	assert.Equal(t, false, status["running"])
	last, ok := status["last_run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(250), last["records"])
	assert.Equal(t, "succeeded", last["status"])
}

func TestRunScreenWait(t *testing.T) {
	h := NewScreenHandler(context.Background(), instantRunner{run: models.ScreenRun{Pages: 2, Records: 150}}, nil)

	rec, body := serve(t, h.RunScreen, http.MethodPost, "/admin/screen/run?wait=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(150), body["count"])
	assert.Equal(t, float64(2), body["pages"])
}

func TestRunScreenWaitFailure(t *testing.T) {
	err := &screener.Error{Kind: screener.UnknownMetricMapping, Site: screener.SiteMetrics, Detail: "metric id 42"}
	h := NewScreenHandler(context.Background(), instantRunner{err: err}, nil)

	rec, body := serve(t, h.RunScreen, http.MethodPost, "/admin/screen/run?wait=true")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(screener.ExitUnknownMetric), body["exit_code"])
	assert.Contains(t, body["message"], "unknown metric mapping")

	// the slot is free again
	rec, _ = serve(t, h.RunScreen, http.MethodPost, "/admin/screen/run?wait=true")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type fakeStatusStore struct {
	latest *models.ScreenRun
}

func (s fakeStatusStore) GetLatestRun(context.Context) (*models.ScreenRun, error) {
	return s.latest, nil
}

func (s fakeStatusStore) GetRecordCount(context.Context) (int, error) {
	return 1234, nil
}

func (s fakeStatusStore) GetLastRunDate(context.Context) (time.Time, error) {
	return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), nil
}

func (s fakeStatusStore) GetTickerCount(context.Context, time.Time) (int, error) {
	return 612, nil
}

func TestScreenStatusWithStore(t *testing.T) {
	store := fakeStatusStore{latest: &models.ScreenRun{ID: 9, Status: "failed", Error: "screener upstream unavailable (status 503)"}}
	h := NewScreenHandler(context.Background(), instantRunner{}, store)

	rec, body := serve(t, h.ScreenStatus, http.MethodGet, "/admin/screen/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, float64(1234), body["records"])
	assert.Equal(t, "2026-10-15", body["last_run_date"])
	assert.Equal(t, float64(612), body["last_run_tickers"])

	last, ok := body["last_run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(9), last["id"])
	assert.Equal(t, "failed", last["status"])
}

type failingStatusStore struct{}

func (failingStatusStore) GetLatestRun(context.Context) (*models.ScreenRun, error) {
	return nil, nil
}

func (failingStatusStore) GetRecordCount(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingStatusStore) GetLastRunDate(context.Context) (time.Time, error) {
	return time.Time{}, errors.New("connection refused")
}

func (failingStatusStore) GetTickerCount(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestScreenStatusStoreErrors(t *testing.T) {
	h := NewScreenHandler(context.Background(), instantRunner{}, failingStatusStore{})

	rec, body := serve(t, h.ScreenStatus, http.MethodGet, "/admin/screen/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["records"])
	assert.NotContains(t, body, "last_run_tickers")
}

func TestAdminRateLimiter(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	tests := []struct {
		name   string
		rate   float64
		second int
	}{
		{"limited", 0.01, http.StatusTooManyRequests},
		{"disabled", 0, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			admin := e.Group("/admin", AdminRateLimiter(tt.rate))
			admin.GET("/screen/status", ok)

			codes := make([]int, 0, 2)
			for i := 0; i < 2; i++ {
				req := httptest.NewRequest(http.MethodGet, "/admin/screen/status", nil)
				rec := httptest.NewRecorder()
				e.ServeHTTP(rec, req)
				codes = append(codes, rec.Code)
			}
			assert.Equal(t, []int{http.StatusOK, tt.second}, codes)
		})
	}
}
