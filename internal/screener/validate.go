package screener

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mauv0809/quant-screener/internal/models"
)

// RequiredRatings must carry a value for at least one record of a run. A run
// where one of them is zero everywhere means the provider answered with empty
// data.
var RequiredRatings = []string{
	"quant_rating",
	"growth_category",
	"eps_revisions_category",
	"momentum_category",
	"profitability_category",
	"value_category",
}

// ratingTotals sums the required ratings over every consolidated record.
type ratingTotals struct {
	fields []string
	sums   map[string]decimal.Decimal
	text   map[string]bool
	seen   int
}

// newRatingTotals checks the required ratings the catalog actually requests.
func newRatingTotals(catalog []CatalogEntry) *ratingTotals {
	requested := make(map[string]bool)
	for _, f := range CatalogFields(catalog) {
		requested[f] = true
	}
	t := &ratingTotals{sums: make(map[string]decimal.Decimal), text: make(map[string]bool)}
	for _, f := range RequiredRatings {
		if requested[f] {
			t.fields = append(t.fields, f)
		}
	}
	return t
}

func (t *ratingTotals) add(rec models.Record) {
	t.seen++
	for _, f := range t.fields {
		v, ok := rec.Metrics[f]
		if !ok {
			continue
		}
		switch v.Kind {
		case models.MetricNumber:
			t.sums[f] = t.sums[f].Add(v.Number)
		case models.MetricText:
			if v.Text != "" {
				t.text[f] = true
			}
		}
	}
}

// check fails on the first required rating that sums below one. A run with
// no records is left to the count threshold.
func (t *ratingTotals) check() error {
	if t.seen == 0 {
		return nil
	}
	log.Info().Int("Records", t.seen).Msg("validating downloaded ratings fields have non-zero values")
	one := decimal.NewFromInt(1)
	for _, f := range t.fields {
		if t.text[f] || !t.sums[f].LessThan(one) {
			continue
		}
		log.Error().Str("Field", f).Str("Sum", t.sums[f].String()).Msg("rating is zero for all records")
		return &Error{
			Kind:   MissingRatings,
			Site:   SiteMetrics,
			Detail: fmt.Sprintf("%s is zero for all %d records", f, t.seen),
		}
	}
	return nil
}
