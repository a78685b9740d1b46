package strategy

import (
	"backtest-leakcheck/internal/model"

	"github.com/shopspring/decimal"
)

type Context struct {
	Index int
	Bar   model.Bar
	// Position is the net signed quantity the strategy holds on the bar's instrument.
	Position decimal.Decimal
}

// Decision is what a strategy wants done after a bar closes.
// A zero Quantity with Flatten unset means hold.
type Decision struct {
	// Flatten closes every open position on the instrument before any entry.
	Flatten  bool
	Side     model.OrderSide
	Quantity decimal.Decimal
}

func Hold() Decision { return Decision{} }

func (d Decision) IsHold() bool { return !d.Flatten && d.Quantity.IsZero() }

type Strategy interface {
	Name() string
	InstrumentID() model.InstrumentID
	BarType() model.BarType
	Decide(ctx Context) Decision
}
