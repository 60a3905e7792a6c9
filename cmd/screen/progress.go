package main

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/mauv0809/quant-screener/internal/screener"
)

// pageProgress draws the screener pages fetched so far. A nil *pageProgress
// draws nothing.
type pageProgress struct {
	bar *progressbar.ProgressBar
}

func newPageProgress(w io.Writer, hidden bool) *pageProgress {
	if hidden {
		return nil
	}
	// the page count is unknown until the first screener page arrives
	bar := progressbar.NewOptions(1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("screening"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &pageProgress{bar: bar}
}

func (p *pageProgress) update(stats screener.RunStats) {
	if p == nil {
		return
	}
	if stats.TotalPages > 0 {
		p.bar.ChangeMax(stats.TotalPages)
	}
	_ = p.bar.Set(stats.Pages)
}

func (p *pageProgress) finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
