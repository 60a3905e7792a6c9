package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mauv0809/quant-screener/internal/models"
)

// Dataset writes one JSON object per line to a file per run.
type Dataset struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// DatasetPath names the file for a run: ratings-YYYYMMDD-<runID>.jsonl.
func DatasetPath(dir string, runDate time.Time, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("ratings-%s-%s.jsonl", runDate.Format("20060102"), runID))
}

// NewDataset creates dir if needed and opens the run's file for appending.
func NewDataset(dir string, runDate time.Time, runID string) (*Dataset, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset dir: %w", err)
	}
	path := DatasetPath(dir, runDate, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	return &Dataset{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the file being written.
func (d *Dataset) Path() string {
	return d.path
}

func (d *Dataset) Emit(_ context.Context, rec models.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.TickerID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return fmt.Errorf("dataset %s is closed", d.path)
	}
	if _, err := d.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.TickerID, err)
	}
	// flush per record so lines written before a failed run survive
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.TickerID, err)
	}
	return nil
}

// Close flushes and closes the file.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	flushErr := d.w.Flush()
	closeErr := d.file.Close()
	d.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
