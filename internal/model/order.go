package model

import (
	"github.com/shopspring/decimal"
)

// Order is a market order submitted by a strategy.
type Order struct {
	ID           string
	StrategyName string
	InstrumentID InstrumentID
	Side         OrderSide
	Quantity     decimal.Decimal

	// PositionID targets an existing position when closing under HEDGING.
	PositionID string

	TsInit int64
}

// Fill is an execution against the simulated book.
type Fill struct {
	OrderID      string
	PositionID   string
	InstrumentID InstrumentID
	Side         OrderSide
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	TsEvent      int64
}

// Position tracks a signed quantity and its average entry price.
// Quantity is positive for long and negative for short.
type Position struct {
	ID           string
	InstrumentID InstrumentID
	Quantity     decimal.Decimal
	AvgPx        decimal.Decimal
	RealizedPnL  decimal.Decimal
	OpenedAt     int64
	ClosedAt     int64
}

func (p *Position) Side() PositionSide { return PositionSideFromQuantity(p.Quantity) }

func (p *Position) IsOpen() bool { return !p.Quantity.IsZero() }

// Apply updates the position for a fill and returns the PnL realized by it.
func (p *Position) Apply(f Fill) decimal.Decimal {
	signed := f.Quantity.Mul(f.Side.Sign())
	realized := decimal.Zero

	switch {
	case p.Quantity.IsZero() || p.Quantity.Sign() == signed.Sign():
		// Opening or adding: weighted average entry.
		total := p.Quantity.Add(signed)
		p.AvgPx = p.AvgPx.Mul(p.Quantity.Abs()).Add(f.Price.Mul(signed.Abs())).Div(total.Abs())
		p.Quantity = total
		if p.OpenedAt == 0 {
			p.OpenedAt = f.TsEvent
		}
	default:
		// Reducing, closing or flipping.
		closing := decimal.Min(p.Quantity.Abs(), signed.Abs())
		realized = f.Price.Sub(p.AvgPx).Mul(closing).Mul(decimal.NewFromInt(int64(p.Quantity.Sign())))
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		remaining := p.Quantity.Add(signed)
		if remaining.Sign() != 0 && remaining.Sign() != p.Quantity.Sign() {
			p.AvgPx = f.Price
		}
		p.Quantity = remaining
		if p.Quantity.IsZero() {
			p.ClosedAt = f.TsEvent
			p.AvgPx = decimal.Zero
		}
	}
	return realized
}
