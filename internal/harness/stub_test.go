package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"backtest-leakcheck/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tracker counts live stub engines so tests can assert reclamation order.
type tracker struct {
	created  int
	live     int
	firstTs  []int64
	runErrAt int // 1-based run that fails; 0 never
}

type stubEngine struct {
	t     *tracker
	batch []model.QuoteTick
	ran   bool
}

func (e *stubEngine) Load(batch []model.QuoteTick) error {
	if len(batch) == 0 {
		return errors.New("empty batch")
	}
	e.batch = batch
	e.t.firstTs = append(e.t.firstTs, batch[0].TsInit)
	return nil
}

func (e *stubEngine) Run(ctx context.Context) error {
	if e.t.runErrAt > 0 && e.t.created == e.t.runErrAt {
		return errors.New("boom")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.ran = true
	return nil
}

func (e *stubEngine) Dispose() {
	if e.t == nil {
		return
	}
	e.t.live--
	e.batch = nil
	e.t = nil
}

func (t *tracker) factory() EngineFactory {
	return EngineFactoryFunc(func(context.Context) (Engine, error) {
		t.created++
		t.live++
		return &stubEngine{t: t}, nil
	})
}

// stubSampler returns a growing RSS and records how many engines were live.
type stubSampler struct {
	t        *tracker
	next     uint64
	step     uint64
	liveSeen []int
	err      error
	failAt   int
	calls    int
}

func (s *stubSampler) Sample() (MemorySample, error) {
	s.calls++
	if s.err != nil && (s.failAt == 0 || s.calls == s.failAt) {
		return MemorySample{}, s.err
	}
	if s.t != nil {
		s.liveSeen = append(s.liveSeen, s.t.live)
	}
	v := s.next
	s.next += s.step
	return MemorySample{ResidentBytes: v}, nil
}

func noopReclaimer() *Reclaimer {
	return &Reclaimer{collect: func() {}}
}
