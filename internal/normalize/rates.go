package normalize

// RateTable converts observed currencies into the canonical currency.
// It is configuration: loaded once, never mutated after construction.
type RateTable struct {
	canonical string
	rates     map[string]float64 // currency -> multiplier into canonical
}

// NewRateTable creates a rate table with the given canonical currency.
// The canonical currency always converts at 1.0.
func NewRateTable(canonical string, rates map[string]float64) *RateTable {
	cp := make(map[string]float64, len(rates)+1)
	for currency, rate := range rates {
		cp[currency] = rate
	}
	cp[canonical] = 1.0
	return &RateTable{canonical: canonical, rates: cp}
}

// Canonical returns the canonical currency code.
func (t *RateTable) Canonical() string {
	return t.canonical
}

// Convert converts a price into the canonical currency.
// Returns false when the currency is unknown; callers must reject the
// observation rather than coerce it.
func (t *RateTable) Convert(price float64, currency string) (float64, bool) {
	rate, ok := t.rates[currency]
	if !ok {
		return 0, false
	}
	return price * rate, true
}
