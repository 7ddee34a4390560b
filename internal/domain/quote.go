package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Quote is one security's latest trade snapshot from the daily trade stat feed.
// Fields the feed carries beyond these are ignored.
type Quote struct {
	Symbol          string           `json:"symbol"`
	SecurityName    string           `json:"securityName,omitempty"`
	LastTradedPrice *decimal.Decimal `json:"lastTradedPrice"` // nil when the feed omits it
}

// NormalizeSymbol trims and upper-cases a ticker symbol (e.g. " nabil " -> "NABIL").
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// FindQuote returns the first quote whose symbol matches case-insensitively,
// or nil. Order follows the feed, so duplicates resolve to the earliest entry.
func FindQuote(quotes []Quote, symbol string) *Quote {
	want := NormalizeSymbol(symbol)
	for i := range quotes {
		if NormalizeSymbol(quotes[i].Symbol) == want {
			return &quotes[i]
		}
	}
	return nil
}
