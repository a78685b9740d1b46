package strategy

import (
	"math"
	"testing"

	"backtest-leakcheck/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams(t *testing.T) EMACrossParams {
	t.Helper()
	bt, err := model.ParseBarType("EUR/USD.SIM-1-HOUR-ASK-EXTERNAL")
	require.NoError(t, err)
	return EMACrossParams{
		InstrumentID: bt.InstrumentID,
		BarType:      bt,
		TradeSize:    decimal.NewFromInt(100_000),
		FastPeriod:   2,
		SlowPeriod:   3,
	}
}

func bar(bt model.BarType, close float64) model.Bar {
	c := decimal.NewFromFloat(close)
	return model.Bar{Type: bt, Open: c, High: c, Low: c, Close: c}
}

func TestEMA(t *testing.T) {
	ema := NewExponentialMovingAverage(3)
	ema.Update(1)
	assert.False(t, ema.Initialized())
	ema.Update(2)
	ema.Update(3)
	assert.True(t, ema.Initialized())
	// alpha = 0.5: 1 -> 1.5 -> 2.25
	assert.InDelta(t, 2.25, ema.Value(), 1e-12)

	ema.Reset()
	assert.False(t, ema.Initialized())
}

func TestEMACrossParamsValidate(t *testing.T) {
	p := testParams(t)
	require.NoError(t, p.Validate())

	bad := p
	bad.FastPeriod = 3
	assert.Error(t, bad.Validate())

	bad = p
	bad.TradeSize = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = p
	bad.InstrumentID = model.InstrumentID{Symbol: "GBP/USD", Venue: "SIM"}
	assert.Error(t, bad.Validate())
}

func TestEMACrossDecisions(t *testing.T) {
	p := testParams(t)
	s, err := NewEMACross(p)
	require.NoError(t, err)

	// Warm-up: holds until the slow EMA has seen 3 bars.
	assert.True(t, s.Decide(Context{Bar: bar(p.BarType, 1.0)}).IsHold())
	assert.True(t, s.Decide(Context{Bar: bar(p.BarType, 1.0)}).IsHold())

	// Rising prices while flat: enter long.
	d := s.Decide(Context{Bar: bar(p.BarType, 1.5)})
	assert.Equal(t, model.SideBuy, d.Side)
	assert.False(t, d.Flatten)
	assert.True(t, d.Quantity.Equal(p.TradeSize))

	// Already long and still rising: hold.
	long := p.TradeSize
	assert.True(t, s.Decide(Context{Bar: bar(p.BarType, 2.0), Position: long}).IsHold())

	// Sharp drop while long: flatten and go short.
	d = s.Decide(Context{Bar: bar(p.BarType, 0.1), Position: long})
	assert.True(t, d.Flatten)
	assert.Equal(t, model.SideSell, d.Side)
}

func TestEMACrossIgnoresOtherBarTypes(t *testing.T) {
	p := testParams(t)
	s, err := NewEMACross(p)
	require.NoError(t, err)

	other := p.BarType
	other.Spec.PriceType = model.PriceBid
	for i := 0; i < 10; i++ {
		assert.True(t, s.Decide(Context{Bar: bar(other, math.Pow(1.1, float64(i)))}).IsHold())
	}
	assert.False(t, s.slow.Initialized())
}
