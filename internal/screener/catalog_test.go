package screener

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogEntryURL(t *testing.T) {
	entry := CatalogEntry{
		Path:   metricsAPIPath,
		Fields: []string{"quant_rating", "sell_side_rating"},
	}

	got := entry.URL("https://example.test/", []string{"aapl", "brk.b"})
	assert.Equal(t,
		"https://example.test/api/v3/metrics?filter[fields]=quant_rating%2Csell_side_rating&filter[slugs]=aapl%2Cbrk.b",
		got)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "aapl,brk.b", u.Query().Get("filter[slugs]"))
}

func TestCatalogEntryURLWithParams(t *testing.T) {
	entry := CatalogEntry{
		Path:   gradesAPIPath,
		Params: gradeAlgos[:2],
		Fields: []string{"value_category"},
	}

	got := entry.URL("https://example.test", []string{"msft"})

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, gradesAPIPath, u.Path)
	assert.Equal(t, []string{"etf", "dividends"}, u.Query()["filter[algos][]"])
	assert.Equal(t, "value_category", u.Query().Get("filter[fields]"))
	assert.Equal(t, "msft", u.Query().Get("filter[slugs]"))
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	require.Len(t, catalog, 12)

	names := make(map[string]bool)
	for _, entry := range catalog {
		assert.NotEmpty(t, entry.Name)
		assert.NotEmpty(t, entry.Fields, entry.Name)
		assert.False(t, names[entry.Name], "duplicate entry %s", entry.Name)
		names[entry.Name] = true
	}
}

func TestCatalogFieldsDeduplicates(t *testing.T) {
	fields := CatalogFields(DefaultCatalog())

	seen := map[string]int{}
	for _, f := range fields {
		seen[f]++
	}
	for f, n := range seen {
		assert.Equal(t, 1, n, f)
	}
	assert.Equal(t, "marketcap_display", fields[0])
	for _, f := range RequiredRatings {
		assert.Contains(t, fields, f)
	}
}
