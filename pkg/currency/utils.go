package currency

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CryptoPlaces is the precision used for displayed and copied crypto amounts.
const CryptoPlaces = 6

type CurrencyUtils struct{}

func NewCurrencyUtils() *CurrencyUtils {
	return &CurrencyUtils{}
}

// FiatToCrypto converts a fiat amount to crypto units at rate (fiat per crypto unit),
// rounded half away from zero to CryptoPlaces. A non-positive rate yields zero.
func (u *CurrencyUtils) FiatToCrypto(fiat, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return fiat.Div(rate).Round(CryptoPlaces)
}

// FormatCrypto renders an amount with exactly CryptoPlaces decimals, e.g. "0.055556".
func (u *CurrencyUtils) FormatCrypto(amount decimal.Decimal) string {
	return amount.Round(CryptoPlaces).StringFixed(CryptoPlaces)
}

// FiatToTokens converts a fiat amount to whole tokens, flooring any remainder.
func (u *CurrencyUtils) FiatToTokens(fiat decimal.Decimal, tokensPerFiat int64) int64 {
	if tokensPerFiat <= 0 || !fiat.IsPositive() {
		return 0
	}
	return fiat.Mul(decimal.NewFromInt(tokensPerFiat)).Floor().IntPart()
}

// FormatUSD formats a fiat amount as a USD string
func (u *CurrencyUtils) FormatUSD(amount decimal.Decimal) string {
	return fmt.Sprintf("$%s", amount.StringFixed(2))
}

// ParseAmount parses a user-entered amount, rejecting negatives.
func (u *CurrencyUtils) ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: negative", s)
	}
	return d, nil
}
