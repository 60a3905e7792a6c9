package screener

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mauv0809/quant-screener/internal/models"
)

// Auxiliary and data type discriminators.
const (
	typeTicker      = "ticker"
	typeMetricType  = "metric_type"
	typeMetric      = "metric"
	typeMetricGrade = "ticker_metric_grade"
)

// ParseScreenerResponse extracts the ticker list and total match count.
func ParseScreenerResponse(body []byte) (ScreenerResult, error) {
	var raw screenerResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return ScreenerResult{}, &Error{Kind: MalformedResponse, Site: SiteScreener, Err: err}
	}
	if raw.Data == nil {
		return ScreenerResult{}, &Error{Kind: MalformedResponse, Site: SiteScreener, Detail: "missing data"}
	}
	if raw.Meta == nil || raw.Meta.Count == nil {
		return ScreenerResult{}, &Error{Kind: MalformedResponse, Site: SiteScreener, Detail: "missing meta.count"}
	}

	result := ScreenerResult{
		Tickers:    make([]TickerRef, 0, len(*raw.Data)),
		TotalCount: *raw.Meta.Count,
	}
	for _, item := range *raw.Data {
		if item.Attributes.Slug == "" {
			log.Warn().Str("TickerId", item.ID).Msg("screener item has no slug")
			continue
		}
		result.Tickers = append(result.Tickers, TickerRef{ID: item.ID, Slug: item.Attributes.Slug})
	}
	return result, nil
}

// ParseMetricsResponse splits a metrics payload into ticker metadata, the
// metric id to field map and the raw metric rows. Unknown type
// discriminators are logged and skipped.
func ParseMetricsResponse(body []byte) (MetricsResult, error) {
	var raw metricsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return MetricsResult{}, &Error{Kind: MalformedResponse, Site: SiteMetrics, Err: err}
	}
	if raw.Included == nil {
		return MetricsResult{}, &Error{Kind: MalformedResponse, Site: SiteMetrics, Detail: "missing included"}
	}
	if raw.Data == nil {
		return MetricsResult{}, &Error{Kind: MalformedResponse, Site: SiteMetrics, Detail: "missing data"}
	}

	result := MetricsResult{
		Tickers:     make(map[string]TickerMeta),
		MetricTypes: make(map[string]string),
		Rows:        make([]MetricRow, 0, len(*raw.Data)),
	}

	for _, item := range *raw.Included {
		switch item.Type {
		case typeTicker:
			var attrs tickerAttributes
			if err := decodeAttributes(item.Attributes, &attrs); err != nil {
				return MetricsResult{}, &Error{Kind: MalformedResponse, Site: SiteMetrics,
					Detail: fmt.Sprintf("ticker %s attributes", item.ID), Err: err}
			}
			result.Tickers[item.ID] = TickerMeta{
				ID:             item.ID,
				Name:           attrs.Name,
				Slug:           attrs.Slug,
				CompanyName:    attrs.CompanyName,
				Exchange:       attrs.Exchange,
				EquityType:     attrs.EquityType,
				IsBdc:          attrs.IsBdc,
				IsDefunct:      attrs.IsDefunct,
				IsReit:         attrs.IsReit,
				FollowersCount: int(attrs.FollowersCount),
			}
		case typeMetricType:
			var attrs metricTypeAttributes
			if err := decodeAttributes(item.Attributes, &attrs); err != nil {
				return MetricsResult{}, &Error{Kind: MalformedResponse, Site: SiteMetrics,
					Detail: fmt.Sprintf("metric_type %s attributes", item.ID), Err: err}
			}
			if attrs.Field == nil {
				log.Warn().Str("MetricId", item.ID).Msg("metric type has no field name")
				continue
			}
			result.MetricTypes[item.ID] = *attrs.Field
		default:
			logUnknownType("included", item.Type, item.ID)
		}
	}

	for _, item := range *raw.Data {
		if item.Type != typeMetric && item.Type != typeMetricGrade {
			logUnknownType("data", item.Type, item.ID)
			continue
		}
		row := MetricRow{
			TickerID:   item.Relationships.Ticker.Data.ID,
			MetricID:   item.Relationships.MetricType.Data.ID,
			Meaningful: item.Attributes.Meaningful,
			Value:      decodeScalar(item.Attributes.Value, "value", item.ID),
			Grade:      decodeScalar(item.Attributes.Grade, "grade", item.ID),
		}
		if row.TickerID == "" || row.MetricID == "" {
			return MetricsResult{}, &Error{Kind: MalformedResponse, Site: SiteMetrics,
				Detail: fmt.Sprintf("%s %s missing ticker or metric_type relationship", item.Type, item.ID)}
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

func decodeAttributes(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func logUnknownType(section, typ, id string) {
	log.Warn().
		Str("Kind", string(UnknownAuxiliaryType)).
		Str("Section", section).
		Str("Type", typ).
		Str("Id", id).
		Msg("skipping item with unknown type")
}

// decodeScalar reads a value or grade attribute. Anything that is not a
// number, a string or null is treated as null.
func decodeScalar(raw json.RawMessage, attr, id string) models.MetricValue {
	var v models.MetricValue
	if len(raw) == 0 {
		return models.NullMetric()
	}
	if err := v.UnmarshalJSON(raw); err != nil {
		log.Warn().Err(err).Str("Attribute", attr).Str("Id", id).Msg("unsupported metric attribute, using null")
		return models.NullMetric()
	}
	return v
}

// ResolveValue exposes value when meaningful and set, else grade when
// meaningful and set, else null.
func ResolveValue(meaningful bool, value, grade models.MetricValue) models.MetricValue {
	switch {
	case meaningful && !value.IsNull():
		return value
	case meaningful && !grade.IsNull():
		return grade
	default:
		return models.NullMetric()
	}
}

// ResolveRows names every row of a metrics response. Any metric id missing
// from the response's metric types fails the whole response, so nothing from
// it is merged.
func ResolveRows(result MetricsResult) ([]ResolvedMetric, error) {
	resolved := make([]ResolvedMetric, 0, len(result.Rows))
	for _, row := range result.Rows {
		name, ok := result.MetricTypes[row.MetricID]
		if !ok {
			return nil, &Error{
				Kind:   UnknownMetricMapping,
				Site:   SiteMetrics,
				Detail: fmt.Sprintf("metric id %s for ticker %s", row.MetricID, row.TickerID),
			}
		}
		resolved = append(resolved, ResolvedMetric{
			TickerID: row.TickerID,
			Name:     name,
			Value:    row.Resolved(),
		})
	}
	return resolved, nil
}
