package screener

import (
	"net/url"
	"strings"
)

const (
	screenerPagePath = "/screeners"
	screenerAPIPath  = "/api/v3/screener_results"
	metricsAPIPath   = "/api/v3/metrics"
	gradesAPIPath    = "/api/v3/ticker_metric_grades"
)

// CatalogEntry is one metric bundle requested for every page of tickers.
type CatalogEntry struct {
	Name   string
	Path   string
	Fields []string
	// Params are fixed query parameters sent ahead of the field list.
	Params []QueryParam
}

// QueryParam is an ordered, unescaped query key/value pair.
type QueryParam struct {
	Key   string
	Value string
}

// URL builds the metrics request for a batch of ticker slugs.
func (e CatalogEntry) URL(baseURL string, slugs []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString(e.Path)
	b.WriteByte('?')
	for _, p := range e.Params {
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
		b.WriteByte('&')
	}
	b.WriteString("filter[fields]=")
	b.WriteString(url.QueryEscape(strings.Join(e.Fields, ",")))
	b.WriteString("&filter[slugs]=")
	b.WriteString(url.QueryEscape(strings.Join(slugs, ",")))
	return b.String()
}

var gradeAlgos = []QueryParam{
	{"filter[algos][]", "etf"},
	{"filter[algos][]", "dividends"},
	{"filter[algos][]", "main_quant"},
	{"filter[algos][]", "reit"},
	{"filter[algos][]", "reit_dividend"},
}

// DefaultCatalog returns the metric bundles fetched per screener page.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Name:   "ratings",
			Path:   metricsAPIPath,
			Fields: []string{"marketcap_display", "dividend_yield", "quant_rating", "authors_rating", "sell_side_rating"},
		},
		{
			Name:   "factor_grades",
			Path:   gradesAPIPath,
			Params: gradeAlgos,
			Fields: []string{"value_category", "growth_category", "profitability_category", "momentum_category", "eps_revisions_category"},
		},
		{
			Name:   "earnings",
			Path:   metricsAPIPath,
			Fields: []string{"earning_announce_date", "eps_estimate_fy1", "revenue_estimate", "eps_normalized_actual", "eps_surprise", "revenue_actual", "revenue_surprise"},
		},
		{
			Name:   "dividend_grades",
			Path:   metricsAPIPath,
			Fields: []string{"div_growth_category", "div_safety_category", "div_yield_category", "div_consistency_category"},
		},
		{
			Name:   "dividends",
			Path:   metricsAPIPath,
			Fields: []string{"last_div_date", "div_pay_date", "dividend_yield", "div_yield_fwd", "div_yield_4y", "div_rate_ttm", "div_rate_fwd", "payout_ratio", "payout_ratio_4y", "div_grow_rate3", "div_grow_rate5", "dividend_growth"},
		},
		{
			Name:   "revisions",
			Path:   metricsAPIPath,
			Fields: []string{"eps_revisions_category"},
		},
		{
			Name:   "valuation",
			Path:   metricsAPIPath,
			Fields: []string{"marketcap_display", "tev", "pe_ratio", "pe_nongaap_fy1", "peg_gaap", "peg_nongaap_fy1", "ps_ratio", "ev_12m_sales_ratio", "ev_ebitda", "pb_ratio", "price_cf_ratio"},
		},
		{
			Name:   "growth",
			Path:   metricsAPIPath,
			Fields: []string{"revenue_growth", "revenue_change_display", "revenue_growth3", "revenue_growth5", "ebitda_yoy", "ebitda_change_display", "ebitda_3y_cagr", "net_income_3y_cagr", "diluted_eps_growth", "eps_change_display", "earnings_growth_3y_cagr", "tangible_book_value_3y_cagr", "total_assets_3y_cagr", "levered_free_cash_flow_3y_cagr"},
		},
		{
			Name:   "profitability",
			Path:   metricsAPIPath,
			Fields: []string{"total_revenue", "net_income", "cash_from_operations_as_reported", "gross_margin", "ebit_margin", "ebitda_margin", "net_margin", "levered_fcf_margin", "roe", "return_on_avg_tot_assets", "return_on_total_capital", "assets_turnover", "net_inc_per_employee", "capex_to_sales"},
		},
		{
			Name:   "momentum_risk",
			Path:   metricsAPIPath,
			Fields: []string{"short_interest_percent_of_float", "last_closing_shares_short", "short_interest_coverage_ratio", "beta24", "beta60", "altman_z_score"},
		},
		{
			Name:   "ownership",
			Path:   metricsAPIPath,
			Fields: []string{"shares", "float_percent", "insiders_shares", "insiders_share_percent", "institutions_shares", "institutions_share_percent"},
		},
		{
			Name:   "debt",
			Path:   metricsAPIPath,
			Fields: []string{"total_debt", "debt_short_term", "debt_long_term", "total_cash", "debt_fcf", "current_ratio", "quick_ratio", "interest_coverage_ratio", "debt_eq", "long_term_debt_per_capital"},
		},
	}
}

// CatalogFields lists every field the catalog requests, first occurrence
// first.
func CatalogFields(catalog []CatalogEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range catalog {
		for _, f := range e.Fields {
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
