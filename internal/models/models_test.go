package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricValueJSON(t *testing.T) {
	tests := []struct {
		name  string
		value MetricValue
		want  string
	}{
		{"number", NumberMetric(decimal.RequireFromString("4.99")), `4.99`},
		{"large number", NumberMetric(decimal.RequireFromString("2803841929216")), `2803841929216`},
		{"text", TextMetric("A+"), `"A+"`},
		{"null", NullMetric(), `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))

			var back MetricValue
			require.NoError(t, json.Unmarshal(b, &back))
			assert.True(t, tt.value.Equal(back), "got %v", back)
		})
	}
}

func TestMetricValueEqual(t *testing.T) {
	assert.True(t, NumberMetric(decimal.RequireFromString("1.50")).Equal(NumberMetric(decimal.RequireFromString("1.5"))))
	assert.False(t, NumberMetric(decimal.Zero).Equal(NullMetric()))
	assert.False(t, TextMetric("1").Equal(NumberMetric(decimal.NewFromInt(1))))
	assert.True(t, NullMetric().Equal(MetricValue{}))
}

func TestRecordMarshalFlat(t *testing.T) {
	rec := Record{
		Date:        time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
		TickerID:    "146",
		Ticker:      "AAPL",
		Slug:        "aapl",
		CompanyName: "Apple Inc.",
		Exchange:    "NASDAQ",
		EquityType:  "stocks",
		Metrics: map[string]MetricValue{
			"quant_rating":    NumberMetric(decimal.RequireFromString("3.51")),
			"value_category":  TextMetric("D-"),
			"sell_side_rating": NullMetric(),
		},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, "2026-10-16", got["date"])
	assert.Equal(t, "146", got["tickerId"])
	assert.Equal(t, "AAPL", got["ticker"])
	assert.Equal(t, "aapl", got["slug"])
	assert.Equal(t, "Apple Inc.", got["companyName"])
	assert.Equal(t, "NASDAQ", got["exchange"])
	assert.Equal(t, "stocks", got["type"])
	assert.Equal(t, 3.51, got["quant_rating"])
	assert.Equal(t, "D-", got["value_category"])
	assert.Nil(t, got["sell_side_rating"])
	assert.Len(t, got, 10)
}

func TestRecordIdentityWinsOverMetric(t *testing.T) {
	rec := Record{
		Date:       time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		EquityType: "stocks",
		Metrics:    map[string]MetricValue{"type": TextMetric("bogus")},
	}
	assert.Equal(t, "stocks", rec.Fields()["type"])
}

func TestRecordCompositeFigiOnlyWhenLinked(t *testing.T) {
	rec := Record{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	_, ok := rec.Fields()["compositeFigi"]
	assert.False(t, ok)

	rec.CompositeFigi = "BBG000B9XRY4"
	assert.Equal(t, "BBG000B9XRY4", rec.Fields()["compositeFigi"])
}
