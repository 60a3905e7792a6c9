// Package figi links screener records to the asset master by composite FIGI.
package figi

import (
	"context"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	"github.com/rs/zerolog/log"

	"github.com/mauv0809/quant-screener/internal/models"
	"github.com/mauv0809/quant-screener/internal/screener"
	"github.com/mauv0809/quant-screener/internal/sink"
)

// MinSimilarity is the lowest company name similarity at which a ticker is
// linked to an unlinked asset.
const MinSimilarity = 0.7

// AssetStore reads and links asset master rows. *db.Repository satisfies it.
type AssetStore interface {
	ListLinkedAssets(ctx context.Context) ([]models.Asset, error)
	FindUnlinkedAsset(ctx context.Context, ticker string) (*models.Asset, error)
	LinkAsset(ctx context.Context, asset models.Asset) error
}

// Enricher sets CompositeFigi on each record before passing it on.
// Lookup failures are logged; the record is forwarded either way.
type Enricher struct {
	store AssetStore
	next  sink.Sink

	mu     sync.Mutex
	loaded bool
	links  map[string]models.Asset // by screener ticker id
	misses map[string]bool         // tickers with no usable asset this run
}

func NewEnricher(store AssetStore, next sink.Sink) *Enricher {
	return &Enricher{
		store:  store,
		next:   next,
		links:  make(map[string]models.Asset),
		misses: make(map[string]bool),
	}
}

func (e *Enricher) Emit(ctx context.Context, rec models.Record) error {
	if rec.CompositeFigi == "" {
		rec.CompositeFigi = e.resolve(ctx, rec)
	}
	return e.next.Emit(ctx, rec)
}

// NormalizeTicker maps a screener ticker onto the asset master form, e.g.
// brk.b to BRK/B.
func NormalizeTicker(ticker string) string {
	return strings.ReplaceAll(strings.ToUpper(ticker), ".", "/")
}

// Similarity compares two company names case-insensitively.
func Similarity(a, b string) float64 {
	return matchr.JaroWinkler(strings.ToLower(a), strings.ToLower(b), false)
}

func (e *Enricher) load(ctx context.Context) {
	if e.loaded {
		return
	}
	e.loaded = true
	assets, err := e.store.ListLinkedAssets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not load linked assets, records will not carry a composite figi")
		return
	}
	for _, a := range assets {
		e.links[a.ScreenerID] = a
	}
	log.Info().Int("Assets", len(e.links)).Msg("loaded linked assets")
}

func (e *Enricher) resolve(ctx context.Context, rec models.Record) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load(ctx)

	ticker := NormalizeTicker(rec.Ticker)
	if a, ok := e.links[rec.TickerID]; ok && a.Ticker == ticker {
		return a.CompositeFigi
	}
	if e.misses[ticker] {
		return ""
	}

	// OTC listings are rarely in the asset master, so their misses stay quiet
	listed := !screener.IsOTC(rec.Exchange)
	if listed {
		log.Info().Str("Ticker", ticker).Str("TickerId", rec.TickerID).Msg("ticker is not associated with a screener id")
	}

	asset, err := e.store.FindUnlinkedAsset(ctx, ticker)
	if err != nil {
		log.Warn().Err(err).Str("Ticker", ticker).Msg("could not look up asset")
		return ""
	}
	if asset == nil {
		e.misses[ticker] = true
		if listed {
			log.Warn().Str("Ticker", ticker).Str("TickerId", rec.TickerID).Msg("no assets found for ticker")
		}
		return ""
	}

	similarity := Similarity(asset.Name, rec.CompanyName)
	if similarity < MinSimilarity {
		e.misses[ticker] = true
		log.Warn().
			Float64("Similarity", similarity).
			Str("Ticker", ticker).
			Str("TickerId", rec.TickerID).
			Str("DbCompanyName", asset.Name).
			Str("CompanyName", rec.CompanyName).
			Msg("not linking ticker, company names too dissimilar")
		return ""
	}

	asset.ScreenerID = rec.TickerID
	if err := e.store.LinkAsset(ctx, *asset); err != nil {
		log.Error().Err(err).Str("Ticker", ticker).Str("CompositeFigi", asset.CompositeFigi).Msg("failed to link asset")
	}
	e.links[rec.TickerID] = *asset
	return asset.CompositeFigi
}
