// Package report formats a memory series and its growth summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"backtest-leakcheck/internal/analysis"
	"backtest-leakcheck/internal/harness"
	"backtest-leakcheck/internal/history"
)

// Series writes the measurement rows as a markdown table.
func Series(w io.Writer, title string, rows []harness.MeasurementRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("no rows to report")
	}

	fmt.Fprintf(w, "## %s\n\n", title)
	fmt.Fprintln(w, "| Batch | Processed | Memory (GB) | Elapsed (s) |")
	fmt.Fprintln(w, "|-------|-----------|-------------|-------------|")

	for i, r := range rows {
		fmt.Fprintf(w, "| %d | %d | %.6f | %.6f |\n",
			i+1,
			r.Processed,
			r.MemoryUsageGB,
			r.ElapsedSecs,
		)
	}

	return nil
}

// Summary writes the growth figures for a series. limitGB <= 0 omits the
// verdict line.
func Summary(w io.Writer, g analysis.Growth, limitGB float64) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Batches | Processed | First | Last | Peak | Delta | Slope (GB/M items) | Items/s |")
	fmt.Fprintln(w, "|---------|-----------|-------|------|------|-------|--------------------|---------|")
	fmt.Fprintf(w, "| %d | %d | %s | %s | %s | %s | %.6f | %.0f |\n",
		g.Batches,
		g.Processed,
		formatGB(g.FirstGB),
		formatGB(g.LastGB),
		formatGB(g.MaxGB),
		formatSignedGB(g.DeltaGB),
		g.SlopeGBPerMillion,
		g.ItemsPerSec,
	)

	if limitGB <= 0 {
		return
	}
	fmt.Fprintln(w)
	if g.Exceeds(limitGB) {
		fmt.Fprintf(w, "Memory growth: **EXCEEDED** (%s > %s)\n", formatSignedGB(g.DeltaGB), formatGB(limitGB))
	} else {
		fmt.Fprintf(w, "Memory growth: **ok** (%s <= %s)\n", formatSignedGB(g.DeltaGB), formatGB(limitGB))
	}
}

// TopSteps writes the n largest per-batch increments.
func TopSteps(w io.Writer, steps []analysis.Step, n int) {
	if len(steps) == 0 || n <= 0 {
		return
	}
	if n > len(steps) {
		n = len(steps)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Batch | Processed | Delta |")
	fmt.Fprintln(w, "|-------|-----------|-------|")
	for _, s := range steps[:n] {
		fmt.Fprintf(w, "| %d | %d | %s |\n", s.Batch+1, s.Processed, formatSignedGB(s.DeltaGB))
	}
}

// History writes recorded runs, newest first, as a markdown table.
func History(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		return fmt.Errorf("no recorded runs")
	}

	fmt.Fprintln(w, "| Run | Test | Engine | Started (UTC) | Batches | Processed | First | Last | Delta | Wall |")
	fmt.Fprintln(w, "|-----|------|--------|---------------|---------|-----------|-------|------|-------|------|")

	for _, r := range runs {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %d | %d | %s | %s | %s | %.2fs |\n",
			shortID(r.ID),
			r.TestName,
			r.Engine,
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			r.Growth.Batches,
			r.Growth.Processed,
			formatGB(r.Growth.FirstGB),
			formatGB(r.Growth.LastGB),
			formatSignedGB(r.Growth.DeltaGB),
			r.Wall.Seconds(),
		)
	}

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type jsonReport struct {
	RunID        string                   `json:"run_id,omitempty"`
	TestName     string                   `json:"test_name,omitempty"`
	ArtifactPath string                   `json:"artifact_path,omitempty"`
	Rows         []harness.MeasurementRow `json:"rows"`
	Growth       analysis.Growth          `json:"growth"`
}

// GenerateJSON writes the outcome and its growth summary as JSON to w.
func GenerateJSON(w io.Writer, out *harness.Outcome, g analysis.Growth) error {
	r := jsonReport{Growth: g}
	if out != nil {
		r.RunID = out.RunID.String()
		r.TestName = out.TestName
		r.ArtifactPath = out.ArtifactPath
		r.Rows = out.Rows
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

func formatGB(v float64) string {
	return fmt.Sprintf("%.3f GB", v)
}

func formatSignedGB(v float64) string {
	return fmt.Sprintf("%+.3f GB", v)
}
