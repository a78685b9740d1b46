package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Venue string

type Symbol string

// InstrumentID identifies an instrument at a venue, e.g. "EUR/USD.SIM".
type InstrumentID struct {
	Symbol Symbol
	Venue  Venue
}

func (id InstrumentID) String() string {
	return string(id.Symbol) + "." + string(id.Venue)
}

func (id InstrumentID) IsZero() bool {
	return id.Symbol == "" && id.Venue == ""
}

func ParseInstrumentID(s string) (InstrumentID, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return InstrumentID{}, fmt.Errorf("invalid instrument id %q, expected SYMBOL.VENUE", s)
	}
	return InstrumentID{Symbol: Symbol(s[:i]), Venue: Venue(s[i+1:])}, nil
}

// Instrument holds the static trading parameters of a tradable pair.
type Instrument struct {
	ID            InstrumentID
	BaseCurrency  Currency
	QuoteCurrency Currency

	PricePrecision int32
	SizePrecision  int32

	// LotSize is the minimum tradable size increment.
	LotSize decimal.Decimal
	// MarginInit is the initial margin rate charged against the account on entry.
	MarginInit decimal.Decimal
}

func (i *Instrument) Validate() error {
	if i.ID.IsZero() {
		return errors.New("instrument id is required")
	}
	if i.BaseCurrency == "" || i.QuoteCurrency == "" {
		return errors.New("instrument currencies are required")
	}
	if i.PricePrecision < 0 || i.SizePrecision < 0 {
		return errors.New("instrument precisions must be >= 0")
	}
	if !i.LotSize.IsPositive() {
		return errors.New("instrument lot size must be > 0")
	}
	if i.MarginInit.IsNegative() {
		return errors.New("instrument margin must be >= 0")
	}
	return nil
}

// DefaultFXPair builds a spot FX instrument such as "EUR/USD" at venue.
// JPY-quoted pairs get 3 price decimals, everything else 5.
func DefaultFXPair(symbol string, venue Venue) (*Instrument, error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid fx symbol %q, expected BASE/QUOTE", symbol)
	}
	base, err := ParseCurrency(parts[0])
	if err != nil {
		return nil, err
	}
	quote, err := ParseCurrency(parts[1])
	if err != nil {
		return nil, err
	}
	precision := int32(5)
	if quote == JPY {
		precision = 3
	}
	inst := &Instrument{
		ID:             InstrumentID{Symbol: Symbol(symbol), Venue: venue},
		BaseCurrency:   base,
		QuoteCurrency:  quote,
		PricePrecision: precision,
		SizePrecision:  0,
		LotSize:        decimal.NewFromInt(1000),
		MarginInit:     decimal.NewFromFloat(0.03),
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}
