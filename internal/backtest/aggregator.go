package backtest

import (
	"backtest-leakcheck/internal/model"

	"github.com/shopspring/decimal"
)

// timeBarAggregator builds fixed-interval bars from quotes.
// A bar is emitted when the first quote of the next window arrives;
// the last, still-open window is never emitted.
type timeBarAggregator struct {
	barType  model.BarType
	interval int64

	started     bool
	windowStart int64
	open        decimal.Decimal
	high        decimal.Decimal
	low         decimal.Decimal
	close       decimal.Decimal
	volume      decimal.Decimal
}

func newTimeBarAggregator(bt model.BarType) *timeBarAggregator {
	return &timeBarAggregator{
		barType:  bt,
		interval: bt.Spec.Interval().Nanoseconds(),
	}
}

// Handle folds q into the current window and returns a bar if one closed.
func (a *timeBarAggregator) Handle(q model.QuoteTick) (model.Bar, bool) {
	px := q.Extract(a.barType.Spec.PriceType)
	size := q.ExtractSize(a.barType.Spec.PriceType)
	win := floorDiv(q.TsEvent, a.interval) * a.interval

	var (
		out    model.Bar
		closed bool
	)
	if a.started && win != a.windowStart {
		out = a.build()
		closed = true
		a.started = false
	}

	if !a.started {
		a.started = true
		a.windowStart = win
		a.open, a.high, a.low, a.close = px, px, px, px
		a.volume = size
		return out, closed
	}

	if px.GreaterThan(a.high) {
		a.high = px
	}
	if px.LessThan(a.low) {
		a.low = px
	}
	a.close = px
	a.volume = a.volume.Add(size)
	return out, closed
}

func (a *timeBarAggregator) build() model.Bar {
	ts := a.windowStart + a.interval
	return model.Bar{
		Type:    a.barType,
		Open:    a.open,
		High:    a.high,
		Low:     a.low,
		Close:   a.close,
		Volume:  a.volume,
		TsEvent: ts,
		TsInit:  ts,
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
