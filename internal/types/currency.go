package types

// CurrencyConfig holds the display symbol and the number of decimal
// places amounts in this currency are rounded to.
type CurrencyConfig struct {
	Symbol    string
	Precision int32
}

// CURRENCY_CONFIG is a map of 3 digit ISO currency codes (lowercase) to their config
// TODO add more currencies or look for a library
var CURRENCY_CONFIG = map[string]CurrencyConfig{
	"usd": {Symbol: "$", Precision: 2},
	"eur": {Symbol: "€", Precision: 2},
	"gbp": {Symbol: "£", Precision: 2},
	"aud": {Symbol: "AU$", Precision: 2},
	"cad": {Symbol: "CA$", Precision: 2},
	"chf": {Symbol: "CHF", Precision: 2},
	"sek": {Symbol: "kr", Precision: 2},
	"nzd": {Symbol: "NZ$", Precision: 2},
	"sgd": {Symbol: "S$", Precision: 2},
	"jpy": {Symbol: "¥", Precision: 0},
	"cny": {Symbol: "¥", Precision: 2},
	"inr": {Symbol: "₹", Precision: 2},
	"brl": {Symbol: "R$", Precision: 2},
	"mxn": {Symbol: "MX$", Precision: 2},
	"krw": {Symbol: "₩", Precision: 0},
	"zar": {Symbol: "R", Precision: 2},
}

// DefaultCurrencyConfig is used for currency codes not present in the table
var DefaultCurrencyConfig = CurrencyConfig{Symbol: "", Precision: 2}

// GetCurrencyConfig returns the config for a given currency code
func GetCurrencyConfig(code string) CurrencyConfig {
	if config, ok := CURRENCY_CONFIG[code]; ok {
		return config
	}
	cfg := DefaultCurrencyConfig
	cfg.Symbol = code
	return cfg
}

// GetCurrencyPrecision returns the decimal precision for a given currency code
func GetCurrencyPrecision(code string) int32 {
	return GetCurrencyConfig(code).Precision
}

// GetCurrencySymbol returns the symbol for a given currency code
// if the code is not found, it returns the code itself
func GetCurrencySymbol(code string) string {
	return GetCurrencyConfig(code).Symbol
}
