package analysis

import (
	"math"
	"sort"

	"backtest-leakcheck/internal/harness"
)

// Growth summarises how resident memory moved over a run.
type Growth struct {
	Batches   int
	Processed int

	FirstGB float64
	LastGB  float64
	MinGB   float64
	MaxGB   float64
	MeanGB  float64
	P05GB   float64
	P95GB   float64

	// DeltaGB is last minus first. Steady state is close to zero.
	DeltaGB float64
	// SlopeGBPerMillion is the least-squares fit of memory against processed
	// items, per million items.
	SlopeGBPerMillion float64

	ElapsedSecs float64
	ItemsPerSec float64
}

func ComputeGrowth(rows []harness.MeasurementRow) Growth {
	g := Growth{}
	if len(rows) == 0 {
		return g
	}
	first, last := rows[0], rows[len(rows)-1]
	g.Batches = len(rows)
	g.Processed = last.Processed
	g.FirstGB = first.MemoryUsageGB
	g.LastGB = last.MemoryUsageGB
	g.DeltaGB = g.LastGB - g.FirstGB
	g.ElapsedSecs = last.ElapsedSecs
	if g.ElapsedSecs > 0 {
		g.ItemsPerSec = float64(g.Processed) / g.ElapsedSecs
	}

	sum := 0.0
	minv := math.Inf(1)
	maxv := math.Inf(-1)
	vals := make([]float64, 0, len(rows))
	for _, r := range rows {
		v := r.MemoryUsageGB
		vals = append(vals, v)
		sum += v
		minv = math.Min(minv, v)
		maxv = math.Max(maxv, v)
	}
	sort.Float64s(vals)
	g.MinGB = minv
	g.MaxGB = maxv
	g.MeanGB = sum / float64(len(vals))
	g.P05GB = percentileSorted(vals, 0.05)
	g.P95GB = percentileSorted(vals, 0.95)
	g.SlopeGBPerMillion = slope(rows) * 1e6
	return g
}

// Exceeds reports whether the run grew by more than limitGB. A limit <= 0
// disables the check.
func (g Growth) Exceeds(limitGB float64) bool {
	return limitGB > 0 && g.DeltaGB > limitGB
}

func slope(rows []harness.MeasurementRow) float64 {
	n := float64(len(rows))
	if n < 2 {
		return 0
	}
	var sx, sy float64
	for _, r := range rows {
		sx += float64(r.Processed)
		sy += r.MemoryUsageGB
	}
	mx, my := sx/n, sy/n
	var num, den float64
	for _, r := range rows {
		dx := float64(r.Processed) - mx
		num += dx * (r.MemoryUsageGB - my)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
