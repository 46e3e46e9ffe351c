package valueobject

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	EUR Currency = "EUR" // Euro (default base)
	USD Currency = "USD" // US Dollar
	GBP Currency = "GBP" // British Pound
	CHF Currency = "CHF" // Swiss Franc
	JPY Currency = "JPY" // Japanese Yen
	SEK Currency = "SEK" // Swedish Krona
)

// DefaultCurrency is the fallback base currency for orgs without one set
const DefaultCurrency = EUR

// IsValid reports whether the code looks like an ISO 4217 code. Rates for
// codes outside the const list are still accepted; the check is purely
// structural.
func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
