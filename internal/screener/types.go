package screener

import (
	"encoding/json"

	"github.com/mauv0809/quant-screener/internal/models"
)

// FilterDef bounds one screener metric.
type FilterDef struct {
	Gte      int  `json:"gte"`
	Lte      int  `json:"lte"`
	Disabled bool `json:"disabled"`
}

// ScreenerArguments is the POST body of a screener page request.
type ScreenerArguments struct {
	Filter  map[string]FilterDef `json:"filter"`
	Page    int                  `json:"page"`
	PerPage int                  `json:"per_page"`
}

// DefaultFilter screens on quant rating only; the other ratings are sent disabled.
func DefaultFilter() map[string]FilterDef {
	return map[string]FilterDef{
		"quant_rating":       {Gte: 1, Lte: 5, Disabled: false},
		"authors_rating_pro": {Gte: 1, Lte: 5, Disabled: true},
		"sell_side_rating":   {Gte: 1, Lte: 5, Disabled: true},
	}
}

// TickerRef is one ticker returned by the screener.
type TickerRef struct {
	ID   string
	Slug string
}

// ScreenerResult is a parsed screener page.
type ScreenerResult struct {
	Tickers    []TickerRef
	TotalCount int
}

// Slugs returns the ticker slugs in screener order.
func (r ScreenerResult) Slugs() []string {
	slugs := make([]string, 0, len(r.Tickers))
	for _, t := range r.Tickers {
		slugs = append(slugs, t.Slug)
	}
	return slugs
}

// TickerMeta holds the ticker attributes included with a metrics response.
type TickerMeta struct {
	ID             string
	Name           string
	Slug           string
	CompanyName    string
	Exchange       string
	EquityType     string
	IsBdc          bool
	IsDefunct      bool
	IsReit         bool
	FollowersCount int
}

// MetricRow is one metric data item before name resolution.
type MetricRow struct {
	TickerID   string
	MetricID   string
	Meaningful bool
	Value      models.MetricValue
	Grade      models.MetricValue
}

// Resolved applies the value/grade precedence to the row.
func (r MetricRow) Resolved() models.MetricValue {
	return ResolveValue(r.Meaningful, r.Value, r.Grade)
}

// MetricsResult is a parsed metrics response.
type MetricsResult struct {
	Tickers     map[string]TickerMeta
	MetricTypes map[string]string
	Rows        []MetricRow
}

// ResolvedMetric is a row with its field name looked up.
type ResolvedMetric struct {
	TickerID string
	Name     string
	Value    models.MetricValue
}

// Raw API payloads. Pointer fields distinguish a missing key from an empty one.

type screenerResponse struct {
	Data *[]screenerItem `json:"data"`
	Meta *struct {
		Count *int `json:"count"`
	} `json:"meta"`
}

type screenerItem struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Slug        string `json:"slug"`
		Name        string `json:"name"`
		CompanyName string `json:"companyName"`
	} `json:"attributes"`
}

type metricsResponse struct {
	Included *[]includedItem `json:"included"`
	Data     *[]metricItem   `json:"data"`
}

type includedItem struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type tickerAttributes struct {
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	CompanyName    string  `json:"companyName"`
	Exchange       string  `json:"exchange"`
	EquityType     string  `json:"equityType"`
	IsBdc          bool    `json:"isBdc"`
	IsDefunct      bool    `json:"isDefunct"`
	IsReit         bool    `json:"isReit"`
	FollowersCount float64 `json:"followersCount"`
}

type metricTypeAttributes struct {
	Field *string `json:"field"`
}

type relationship struct {
	Data struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

type metricItem struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Relationships struct {
		Ticker     relationship `json:"ticker"`
		MetricType relationship `json:"metric_type"`
	} `json:"relationships"`
	Attributes struct {
		Value      json.RawMessage `json:"value"`
		Grade      json.RawMessage `json:"grade"`
		Meaningful bool            `json:"meaningful"`
	} `json:"attributes"`
}
