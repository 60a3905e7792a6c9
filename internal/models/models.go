package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout of the run date stamped on every record.
const DateLayout = "2006-01-02"

// MetricKind tags the variant held by a MetricValue.
type MetricKind int

const (
	MetricNull MetricKind = iota
	MetricNumber
	MetricText
)

// MetricValue is a single resolved metric: a number, a text grade, or null.
type MetricValue struct {
	Kind   MetricKind
	Number decimal.Decimal
	Text   string
}

func NullMetric() MetricValue {
	return MetricValue{Kind: MetricNull}
}

func NumberMetric(d decimal.Decimal) MetricValue {
	return MetricValue{Kind: MetricNumber, Number: d}
}

func TextMetric(s string) MetricValue {
	return MetricValue{Kind: MetricText, Text: s}
}

// IsNull reports whether the value carries no data.
func (v MetricValue) IsNull() bool {
	return v.Kind == MetricNull
}

// Equal compares numbers by value, so 1.50 equals 1.5.
func (v MetricValue) Equal(o MetricValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case MetricNumber:
		return v.Number.Equal(o.Number)
	case MetricText:
		return v.Text == o.Text
	}
	return true
}

func (v MetricValue) String() string {
	switch v.Kind {
	case MetricNumber:
		return v.Number.String()
	case MetricText:
		return v.Text
	}
	return "null"
}

// MarshalJSON writes numbers unquoted so datasets stay numeric.
func (v MetricValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetricNumber:
		return []byte(v.Number.String()), nil
	case MetricText:
		return json.Marshal(v.Text)
	}
	return []byte("null"), nil
}

func (v *MetricValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = NullMetric()
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = TextMetric(s)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("metric value %s: %w", string(b), err)
	}
	*v = NumberMetric(d)
	return nil
}

// Record is the consolidated per-ticker output of one page cycle.
type Record struct {
	Date        time.Time
	TickerID    string
	Ticker      string
	Slug        string
	CompanyName string
	Exchange    string
	EquityType  string
	Metrics     map[string]MetricValue

	// CompositeFigi is set when the ticker is linked to a known asset.
	CompositeFigi string
}

// Fields flattens the record into the dataset shape. Identity keys are
// written last and win over a metric of the same name.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(r.Metrics)+8)
	for name, v := range r.Metrics {
		out[name] = v
	}
	out["date"] = r.Date.Format(DateLayout)
	out["tickerId"] = r.TickerID
	out["ticker"] = r.Ticker
	out["slug"] = r.Slug
	out["companyName"] = r.CompanyName
	out["exchange"] = r.Exchange
	out["type"] = r.EquityType
	if r.CompositeFigi != "" {
		out["compositeFigi"] = r.CompositeFigi
	}
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// Asset is an entry of the asset master that records are linked to by
// composite FIGI. ScreenerID is empty until the asset is linked.
type Asset struct {
	Ticker        string
	Name          string
	CompositeFigi string
	ScreenerID    string
}

// ScreenRun is the persisted summary of one screener run.
type ScreenRun struct {
	ID           int64      `json:"id"`
	RunDate      time.Time  `json:"run_date"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	Pages        int        `json:"pages"`
	Records      int        `json:"records"`
	EmitFailures int        `json:"emit_failures"`
	Status       string     `json:"status"` // running, succeeded, failed
	Error        string     `json:"error,omitempty"`
}
