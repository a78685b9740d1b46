package data

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateResetTimestamps(t *testing.T) {
	g := NewQuoteGenerator(DefaultQuoteSpec(), TimestampsReset)

	batch := g.Generate(100, 500)
	require.Len(t, batch, 100)
	for i, q := range batch {
		assert.Equal(t, int64(i), q.TsEvent)
		assert.Equal(t, int64(i), q.TsInit)
		assert.Equal(t, "EUR/USD.SIM", q.InstrumentID.String())
		assert.Equal(t, "1.2340", q.BidPrice.String())
		assert.Equal(t, "1.2340", q.AskPrice.String())
		assert.Equal(t, "5", q.BidSize.String())
		assert.Equal(t, "5", q.AskSize.String())
	}
}

func TestGenerateContinuousTimestamps(t *testing.T) {
	g := NewQuoteGenerator(DefaultQuoteSpec(), TimestampsContinuous)

	batch := g.Generate(10, 200)
	require.Len(t, batch, 10)
	assert.Equal(t, int64(200), batch[0].TsInit)
	assert.Equal(t, int64(209), batch[9].TsInit)
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := NewQuoteGenerator(DefaultQuoteSpec(), TimestampsReset)
	assert.Equal(t, g.Generate(25, 0), g.Generate(25, 1000))
}

func TestGenerateEmpty(t *testing.T) {
	g := NewQuoteGenerator(DefaultQuoteSpec(), TimestampsReset)
	assert.Empty(t, g.Generate(0, 0))
	assert.Empty(t, g.Generate(-3, 0))
}

func TestParseTimestampMode(t *testing.T) {
	m, err := ParseTimestampMode("")
	require.NoError(t, err)
	assert.Equal(t, TimestampsReset, m)

	m, err = ParseTimestampMode("Continuous")
	require.NoError(t, err)
	assert.Equal(t, TimestampsContinuous, m)

	_, err = ParseTimestampMode("wallclock")
	assert.Error(t, err)
}

func TestProperty_BatchShape(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("batch has batchSize strictly increasing timestamps", prop.ForAll(
		func(size int, start int64, continuous bool) bool {
			mode := TimestampsReset
			if continuous {
				mode = TimestampsContinuous
			}
			batch := NewQuoteGenerator(DefaultQuoteSpec(), mode).Generate(size, start)
			if len(batch) != size {
				return false
			}
			for i := 1; i < len(batch); i++ {
				if batch[i].TsInit != batch[i-1].TsInit+1 {
					return false
				}
			}
			if size > 0 && !continuous && batch[0].TsInit != 0 {
				return false
			}
			return true
		},
		gen.IntRange(0, 300),
		gen.Int64Range(0, 1_000_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
