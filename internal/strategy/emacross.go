package strategy

import (
	"errors"
	"fmt"

	"backtest-leakcheck/internal/model"

	"github.com/shopspring/decimal"
)

// EMACrossParams configures a dual moving average crossover:
// - fast EMA at or above slow EMA: go long (flattening any short first)
// - fast EMA below slow EMA: go short (flattening any long first)
//
// Bars of any other bar type are ignored.
type EMACrossParams struct {
	InstrumentID model.InstrumentID
	BarType      model.BarType
	TradeSize    decimal.Decimal
	FastPeriod   int
	SlowPeriod   int
}

func (p EMACrossParams) Validate() error {
	if p.InstrumentID.IsZero() {
		return errors.New("instrument id is required")
	}
	if p.BarType.InstrumentID != p.InstrumentID {
		return fmt.Errorf("bar type %s does not match instrument %s", p.BarType, p.InstrumentID)
	}
	if !p.TradeSize.IsPositive() {
		return errors.New("trade size must be > 0")
	}
	if p.FastPeriod <= 0 || p.SlowPeriod <= 0 {
		return errors.New("ema periods must be > 0")
	}
	if p.FastPeriod >= p.SlowPeriod {
		return fmt.Errorf("fast period %d must be less than slow period %d", p.FastPeriod, p.SlowPeriod)
	}
	return nil
}

type EMACross struct {
	Params EMACrossParams

	fast *ExponentialMovingAverage
	slow *ExponentialMovingAverage
}

func NewEMACross(params EMACrossParams) (*EMACross, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("ema cross: %w", err)
	}
	return &EMACross{
		Params: params,
		fast:   NewExponentialMovingAverage(params.FastPeriod),
		slow:   NewExponentialMovingAverage(params.SlowPeriod),
	}, nil
}

func (s *EMACross) Name() string { return "ema_cross" }

func (s *EMACross) InstrumentID() model.InstrumentID { return s.Params.InstrumentID }

func (s *EMACross) BarType() model.BarType { return s.Params.BarType }

func (s *EMACross) Decide(ctx Context) Decision {
	if ctx.Bar.Type != s.Params.BarType {
		return Hold()
	}

	px := ctx.Bar.Close.InexactFloat64()
	s.fast.Update(px)
	s.slow.Update(px)

	if !s.slow.Initialized() {
		return Hold()
	}

	side := model.PositionSideFromQuantity(ctx.Position)
	if s.fast.Value() >= s.slow.Value() {
		switch side {
		case model.PositionFlat:
			return Decision{Side: model.SideBuy, Quantity: s.Params.TradeSize}
		case model.PositionShort:
			return Decision{Flatten: true, Side: model.SideBuy, Quantity: s.Params.TradeSize}
		}
		return Hold()
	}

	switch side {
	case model.PositionFlat:
		return Decision{Side: model.SideSell, Quantity: s.Params.TradeSize}
	case model.PositionLong:
		return Decision{Flatten: true, Side: model.SideSell, Quantity: s.Params.TradeSize}
	}
	return Hold()
}
