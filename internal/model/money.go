package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

func ParseCurrency(s string) (Currency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", fmt.Errorf("invalid currency %q, expected a 3-letter code", s)
	}
	return Currency(s), nil
}

// Money is an amount in a single currency, kept at 2 decimal places.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

func NewMoney(amount float64, c Currency) Money {
	return Money{Amount: decimal.NewFromFloat(amount).Round(2), Currency: c}
}

// ParseMoney parses "1000000 USD" or "1_000_000 USD".
func ParseMoney(s string) (Money, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Money{}, fmt.Errorf("invalid money %q, expected \"<amount> <currency>\"", s)
	}
	amt, err := decimal.NewFromString(strings.ReplaceAll(parts[0], "_", ""))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount in %q: %w", s, err)
	}
	c, err := ParseCurrency(parts[1])
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amt.Round(2), Currency: c}, nil
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + string(m.Currency)
}
