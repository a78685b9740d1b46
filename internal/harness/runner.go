package harness

import (
	"context"
	"time"

	"backtest-leakcheck/internal/model"
)

// Runner feeds one batch to one engine and times the run step.
type Runner struct {
	now func() time.Time
}

func NewRunner() *Runner {
	return &Runner{now: time.Now}
}

// Run loads batch into engine and runs it to completion. The returned
// duration covers Run only, not Load. Failures are KindEngineRun.
func (r *Runner) Run(ctx context.Context, engine Engine, batch []model.QuoteTick) (time.Duration, error) {
	if err := engine.Load(batch); err != nil {
		return 0, newError(KindEngineRun, "load batch", err)
	}

	start := r.now()
	if err := engine.Run(ctx); err != nil {
		return 0, newError(KindEngineRun, "run", err)
	}
	return r.now().Sub(start), nil
}
