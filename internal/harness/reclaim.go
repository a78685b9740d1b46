package harness

import (
	"runtime/debug"

	"backtest-leakcheck/internal/model"
)

// Reclaimer releases an engine and its batch and forces a full collection,
// so a memory sample taken afterwards reflects only live state.
type Reclaimer struct {
	collect func()
}

func NewReclaimer() *Reclaimer {
	return &Reclaimer{collect: debug.FreeOSMemory}
}

// Release disposes engine and zeroes batch. The iteration that acquired
// them defers this.
func (r *Reclaimer) Release(engine Engine, batch []model.QuoteTick) {
	if engine != nil {
		engine.Dispose()
	}
	clear(batch)
}

// Collect runs a synchronous GC and returns freed pages to the OS.
// Call it only once no frame still references the released objects.
func (r *Reclaimer) Collect() {
	r.collect()
}

func (r *Reclaimer) Reclaim(engine Engine, batch []model.QuoteTick) {
	r.Release(engine, batch)
	r.Collect()
}
