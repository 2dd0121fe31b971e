package models

import "fmt"

// Currency is an ISO-4217 style currency code. Only codes listed in
// supportedCurrencies are accepted at the API boundary, so balance maps
// never accumulate typo'd or unbounded keys.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
)

var supportedCurrencies = map[Currency]struct{}{
	USD: {},
	EUR: {},
	GBP: {},
	JPY: {},
	CAD: {},
	AUD: {},
}

// ParseCurrency validates a raw currency code and returns the typed value.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(code)
	if !c.Valid() {
		return "", fmt.Errorf("unsupported currency %q", code)
	}
	return c, nil
}

// Valid reports whether the currency is one of the supported codes.
func (c Currency) Valid() bool {
	_, ok := supportedCurrencies[c]
	return ok
}

func (c Currency) String() string {
	return string(c)
}
