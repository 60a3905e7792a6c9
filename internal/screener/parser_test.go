package screener

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/quant-screener/internal/models"
)

func TestParseScreenerResponse(t *testing.T) {
	body := []byte(`{
		"data": [
			{"id": "146", "type": "ticker", "attributes": {"slug": "aapl", "name": "AAPL"}},
			{"id": "999", "type": "ticker", "attributes": {}},
			{"id": "575", "type": "ticker", "attributes": {"slug": "msft", "name": "MSFT"}}
		],
		"meta": {"count": 250}
	}`)

	got, err := ParseScreenerResponse(body)
	require.NoError(t, err)
	assert.Equal(t, 250, got.TotalCount)
	assert.Equal(t, []TickerRef{{ID: "146", Slug: "aapl"}, {ID: "575", Slug: "msft"}}, got.Tickers)
	assert.Equal(t, []string{"aapl", "msft"}, got.Slugs())
}

func TestParseScreenerResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"data": [`},
		{"missing data", `{"meta": {"count": 1}}`},
		{"missing meta", `{"data": []}`},
		{"missing count", `{"data": [], "meta": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScreenerResponse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, MalformedResponse))
			assert.Equal(t, ExitMalformedResponse, ExitCode(err))
		})
	}
}

const metricsFixture = `{
	"included": [
		{"id": "146", "type": "ticker", "attributes": {
			"name": "AAPL", "slug": "aapl", "companyName": "Apple Inc.",
			"exchange": "NASDAQ", "equityType": "stocks",
			"isBdc": false, "isReit": false, "isDefunct": false, "followersCount": 2500000
		}},
		{"id": "3", "type": "metric_type", "attributes": {"field": "quant_rating"}},
		{"id": "7", "type": "metric_type", "attributes": {"field": "value_category"}},
		{"id": "x", "type": "sector", "attributes": {"name": "Technology"}}
	],
	"data": [
		{"id": "m1", "type": "metric",
		 "relationships": {"ticker": {"data": {"id": "146", "type": "ticker"}}, "metric_type": {"data": {"id": "3", "type": "metric_type"}}},
		 "attributes": {"value": 3.51, "meaningful": true}},
		{"id": "g1", "type": "ticker_metric_grade",
		 "relationships": {"ticker": {"data": {"id": "146", "type": "ticker"}}, "metric_type": {"data": {"id": "7", "type": "metric_type"}}},
		 "attributes": {"grade": "D-", "meaningful": true}},
		{"id": "z", "type": "mystery", "attributes": {}}
	]
}`

func TestParseMetricsResponse(t *testing.T) {
	got, err := ParseMetricsResponse([]byte(metricsFixture))
	require.NoError(t, err)

	require.Contains(t, got.Tickers, "146")
	meta := got.Tickers["146"]
	assert.Equal(t, "AAPL", meta.Name)
	assert.Equal(t, "aapl", meta.Slug)
	assert.Equal(t, "Apple Inc.", meta.CompanyName)
	assert.Equal(t, "NASDAQ", meta.Exchange)
	assert.Equal(t, "stocks", meta.EquityType)
	assert.Equal(t, 2500000, meta.FollowersCount)

	// the unknown "sector" and "mystery" items are skipped
	assert.Len(t, got.Tickers, 1)
	assert.Equal(t, map[string]string{"3": "quant_rating", "7": "value_category"}, got.MetricTypes)
	require.Len(t, got.Rows, 2)

	assert.Equal(t, "146", got.Rows[0].TickerID)
	assert.Equal(t, "3", got.Rows[0].MetricID)
	assert.True(t, got.Rows[0].Value.Equal(models.NumberMetric(decimal.RequireFromString("3.51"))))
	assert.True(t, got.Rows[0].Grade.IsNull())
	assert.True(t, got.Rows[1].Grade.Equal(models.TextMetric("D-")))
}

func TestParseMetricsResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `nope`},
		{"missing included", `{"data": []}`},
		{"missing data", `{"included": []}`},
		{"row without ticker", `{"included": [], "data": [{"id": "m", "type": "metric", "relationships": {"metric_type": {"data": {"id": "3"}}}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetricsResponse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, MalformedResponse))
		})
	}
}

func TestResolveValue(t *testing.T) {
	num := models.NumberMetric(decimal.RequireFromString("4.2"))
	grade := models.TextMetric("A+")
	null := models.NullMetric()

	tests := []struct {
		name       string
		meaningful bool
		value      models.MetricValue
		grade      models.MetricValue
		want       models.MetricValue
	}{
		{"meaningful value wins", true, num, grade, num},
		{"meaningful falls back to grade", true, null, grade, grade},
		{"meaningful without either", true, null, null, null},
		{"not meaningful is null", false, num, grade, null},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveValue(tt.meaningful, tt.value, tt.grade)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestResolveRows(t *testing.T) {
	parsed, err := ParseMetricsResponse([]byte(metricsFixture))
	require.NoError(t, err)

	got, err := ResolveRows(parsed)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "quant_rating", got[0].Name)
	assert.Equal(t, "value_category", got[1].Name)
	assert.True(t, got[1].Value.Equal(models.TextMetric("D-")))
}

func TestResolveRowsUnknownMetric(t *testing.T) {
	parsed := MetricsResult{
		MetricTypes: map[string]string{"3": "quant_rating"},
		Rows: []MetricRow{
			{TickerID: "146", MetricID: "3", Meaningful: true},
			{TickerID: "146", MetricID: "42", Meaningful: true},
		},
	}

	got, err := ResolveRows(parsed)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, UnknownMetricMapping))
	assert.Equal(t, ExitUnknownMetric, ExitCode(err))
}
