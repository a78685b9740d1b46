package analysis

import (
	"testing"

	"backtest-leakcheck/internal/harness"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearRows(n int, base, perBatch float64) []harness.MeasurementRow {
	rows := make([]harness.MeasurementRow, n)
	for i := range rows {
		rows[i] = harness.MeasurementRow{
			Processed:     1_000_000 * (i + 1),
			MemoryUsageGB: base + perBatch*float64(i),
			ElapsedSecs:   float64(i + 1),
		}
	}
	return rows
}

func TestComputeGrowth_Linear(t *testing.T) {
	g := ComputeGrowth(linearRows(5, 1.0, 0.25))
	assert.Equal(t, 5, g.Batches)
	assert.Equal(t, 5_000_000, g.Processed)
	assert.InDelta(t, 1.0, g.FirstGB, 1e-12)
	assert.InDelta(t, 2.0, g.LastGB, 1e-12)
	assert.InDelta(t, 1.0, g.DeltaGB, 1e-12)
	assert.InDelta(t, 0.25, g.SlopeGBPerMillion, 1e-9)
	assert.InDelta(t, 1.5, g.MeanGB, 1e-12)
	assert.InDelta(t, 1_000_000, g.ItemsPerSec, 1e-6)
	assert.True(t, g.Exceeds(0.5))
	assert.False(t, g.Exceeds(0))
}

func TestComputeGrowth_Flat(t *testing.T) {
	g := ComputeGrowth(linearRows(10, 0.3, 0))
	assert.InDelta(t, 0, g.DeltaGB, 1e-12)
	assert.InDelta(t, 0, g.SlopeGBPerMillion, 1e-12)
	assert.InDelta(t, 0.3, g.P95GB, 1e-12)
	assert.False(t, g.Exceeds(0.01))
}

func TestComputeGrowth_Empty(t *testing.T) {
	assert.Equal(t, Growth{}, ComputeGrowth(nil))

	g := ComputeGrowth(linearRows(1, 0.7, 0))
	assert.Zero(t, g.SlopeGBPerMillion)
	assert.InDelta(t, 0.7, g.MinGB, 1e-12)
}

func TestPercentileSorted(t *testing.T) {
	vals := []float64{0, 10}
	assert.Equal(t, 0.0, percentileSorted(vals, 0))
	assert.Equal(t, 10.0, percentileSorted(vals, 1))
	assert.InDelta(t, 5.0, percentileSorted(vals, 0.5), 1e-12)
	assert.Zero(t, percentileSorted(nil, 0.5))
}

func TestRankStepsByGrowth(t *testing.T) {
	rows := []harness.MeasurementRow{
		{Processed: 1, MemoryUsageGB: 1.0},
		{Processed: 2, MemoryUsageGB: 1.1},
		{Processed: 3, MemoryUsageGB: 1.6},
		{Processed: 4, MemoryUsageGB: 1.5},
	}
	steps := RankStepsByGrowth(rows)
	require.Len(t, steps, 3)
	// Batch is the zero-based row index of the later sample.
	assert.Equal(t, 2, steps[0].Batch)
	assert.InDelta(t, 0.5, steps[0].DeltaGB, 1e-9)
	assert.Equal(t, 3, steps[2].Batch)
	assert.Nil(t, RankStepsByGrowth(rows[:1]))
}
