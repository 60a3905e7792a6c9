package screener

// otcExchanges are the over-the-counter venues the provider reports.
var otcExchanges = map[string]bool{
	"OTCQX":             true,
	"OTCQB":             true,
	"OTC Markets":       true,
	"Grey Market":       true,
	"Pink No Info":      true,
	"Pink Current Info": true,
}

// IsOTC reports whether exchange is an OTC, grey or pink sheet venue.
func IsOTC(exchange string) bool {
	return otcExchanges[exchange]
}
