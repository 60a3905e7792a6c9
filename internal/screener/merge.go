package screener

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mauv0809/quant-screener/internal/models"
)

// Consolidated holds one page's records keyed by ticker id. It is created per
// page and dropped once its records are emitted.
type Consolidated struct {
	records map[string]*models.Record
	order   []string
}

// NewConsolidated returns an empty page-scoped record set.
func NewConsolidated() *Consolidated {
	return &Consolidated{records: make(map[string]*models.Record)}
}

// Merge folds one resolved metric into the record for tickerID, creating the
// record from meta and date on first sight. It reports false when the record
// does not exist and meta is nil.
func (c *Consolidated) Merge(tickerID, metricName string, v models.MetricValue, meta *TickerMeta, date time.Time) bool {
	rec, ok := c.records[tickerID]
	if !ok {
		if meta == nil {
			return false
		}
		rec = &models.Record{
			Date:        date,
			TickerID:    tickerID,
			Ticker:      meta.Name,
			Slug:        meta.Slug,
			CompanyName: meta.CompanyName,
			Exchange:    meta.Exchange,
			EquityType:  meta.EquityType,
			Metrics:     make(map[string]models.MetricValue),
		}
		c.records[tickerID] = rec
		c.order = append(c.order, tickerID)
	}
	rec.Metrics[metricName] = v
	return true
}

// MergeResponse folds every resolved row of one metrics response. Rows for
// tickers with neither a record nor included metadata are skipped.
func (c *Consolidated) MergeResponse(rows []ResolvedMetric, tickers map[string]TickerMeta, date time.Time) {
	for _, row := range rows {
		var meta *TickerMeta
		if m, ok := tickers[row.TickerID]; ok {
			meta = &m
		}
		if !c.Merge(row.TickerID, row.Name, row.Value, meta, date) {
			log.Warn().Str("TickerId", row.TickerID).Str("Metric", row.Name).Msg("cannot find ticker for associated tickerId")
		}
	}
}

// Len returns the number of records.
func (c *Consolidated) Len() int {
	return len(c.records)
}

// Get returns the record for tickerID.
func (c *Consolidated) Get(tickerID string) (models.Record, bool) {
	rec, ok := c.records[tickerID]
	if !ok {
		return models.Record{}, false
	}
	return *rec, true
}

// Records lists the records in screener order; ids the screener did not
// return follow, sorted.
func (c *Consolidated) Records(screenerOrder []TickerRef) []models.Record {
	out := make([]models.Record, 0, len(c.records))
	seen := make(map[string]bool, len(c.records))
	for _, t := range screenerOrder {
		if rec, ok := c.records[t.ID]; ok && !seen[t.ID] {
			out = append(out, *rec)
			seen[t.ID] = true
		}
	}

	var rest []string
	for _, id := range c.order {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, *c.records[id])
	}
	return out
}
