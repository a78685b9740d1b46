package analysis

import (
	"sort"

	"backtest-leakcheck/internal/harness"
)

// Step is the memory change across one batch.
type Step struct {
	// Batch is the zero-based row index; reports print it one-based.
	Batch     int
	Processed int
	DeltaGB   float64
}

// RankStepsByGrowth returns per-batch increments, largest first. The first
// batch has no predecessor and is left out.
func RankStepsByGrowth(rows []harness.MeasurementRow) []Step {
	if len(rows) < 2 {
		return nil
	}
	out := make([]Step, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		out = append(out, Step{
			Batch:     i,
			Processed: rows[i].Processed,
			DeltaGB:   rows[i].MemoryUsageGB - rows[i-1].MemoryUsageGB,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeltaGB > out[j].DeltaGB
	})
	return out
}
