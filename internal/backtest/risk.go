package backtest

import (
	"errors"
	"fmt"

	"backtest-leakcheck/internal/model"
)

var ErrOrderDenied = errors.New("order denied")

type riskEngine struct {
	cfg RiskEngineConfig
}

// check runs pre-trade checks. Denials wrap ErrOrderDenied.
func (r *riskEngine) check(o *model.Order, inst *model.Instrument, q model.QuoteTick, acct *account) error {
	if r.cfg.Bypass {
		return nil
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity %s must be > 0", ErrOrderDenied, o.Quantity)
	}
	if !o.Quantity.Mod(inst.LotSize).IsZero() {
		return fmt.Errorf("%w: quantity %s is not a multiple of lot size %s", ErrOrderDenied, o.Quantity, inst.LotSize)
	}
	// Reducing orders never need fresh margin.
	if o.PositionID != "" {
		return nil
	}
	px := q.AskPrice.Value
	if o.Side == model.SideSell {
		px = q.BidPrice.Value
	}
	required := o.Quantity.Mul(px)
	if acct.typ == model.AccountMargin {
		required = required.Mul(inst.MarginInit)
	}
	if free := acct.free(inst.QuoteCurrency); required.GreaterThan(free) {
		return fmt.Errorf("%w: requires %s %s, free %s", ErrOrderDenied, required.StringFixed(2), inst.QuoteCurrency, free.StringFixed(2))
	}
	return nil
}
