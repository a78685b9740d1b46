package harness

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"backtest-leakcheck/internal/model"

	"github.com/google/uuid"
)

type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BatchGenerator produces the input for one batch. startSeq is the number of
// items processed by earlier batches.
type BatchGenerator interface {
	Generate(batchSize int, startSeq int64) []model.QuoteTick
}

type LoopConfig struct {
	Run       RunConfig
	OutputDir string

	Generator BatchGenerator
	Factory   EngineFactory
	Sampler   MemorySampler

	// Optional; defaults are NewRunner and NewReclaimer.
	Runner    *Runner
	Reclaimer *Reclaimer

	// OnFailure receives the rows recorded before a fatal error.
	OnFailure func(partial []MeasurementRow, err error)
}

// Outcome describes a completed run.
type Outcome struct {
	RunID        uuid.UUID
	TestName     string
	ArtifactPath string
	BatchSize    int
	Rows         []MeasurementRow
	StartedAt    time.Time
	FinishedAt   time.Time
	Wall         time.Duration
}

// Loop runs every batch on a fresh engine and samples memory in between.
// A Loop runs once.
type Loop struct {
	cfg    LoopConfig
	logger *slog.Logger
	state  atomic.Int32
	sink   *Sink
}

func NewLoop(cfg LoopConfig, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = NewRunner()
	}
	if cfg.Reclaimer == nil {
		cfg.Reclaimer = NewReclaimer()
	}
	return &Loop{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "harness"), slog.String("test_name", cfg.Run.TestName)),
		sink:   NewSink(0),
	}
}

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

// Rows returns the series recorded so far.
func (l *Loop) Rows() []MeasurementRow { return l.sink.Rows() }

// Run executes the whole measurement. On failure nothing is persisted and
// any stale artifact stays deleted.
func (l *Loop) Run(ctx context.Context) (*Outcome, error) {
	if l.State() != StateIdle {
		return nil, newError(KindConfig, "run", errors.New("loop already started"))
	}
	started := time.Now()
	runID := uuid.New()
	logger := l.logger.With(slog.String("run_id", runID.String()))

	l.setState(StateInitializing)
	path, err := l.initialize()
	if err != nil {
		return nil, l.fail(logger, err)
	}

	rc := l.cfg.Run
	size := rc.BatchSize()
	l.sink = NewSink(rc.BatchCount)
	logger.Info("run started",
		slog.Int("total_items", rc.TotalItems),
		slog.Int("batch_count", rc.BatchCount),
		slog.Int("batch_size", size),
		slog.String("artifact", path))

	l.setState(StateRunning)
	var elapsed time.Duration
	for i := 0; i < rc.BatchCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, l.fail(logger, atBatch(newError(KindEngineRun, "canceled", err), i))
		}

		d, err := l.runBatch(ctx, i, size)
		if err != nil {
			return nil, l.fail(logger, atBatch(err, i))
		}
		// The engine and batch are unreachable once runBatch returns.
		l.cfg.Reclaimer.Collect()

		sample, err := l.sample()
		if err != nil {
			return nil, l.fail(logger, atBatch(err, i))
		}

		elapsed += d
		row := MeasurementRow{
			Processed:     size * (i + 1),
			MemoryUsageGB: sample.GB(),
			ElapsedSecs:   elapsed.Seconds(),
		}
		if err := l.sink.Append(row); err != nil {
			return nil, l.fail(logger, atBatch(newError(KindFilesystem, "append row", err), i))
		}
		logger.Info("batch done",
			slog.Int("batch", i+1),
			slog.Int("processed", row.Processed),
			slog.Float64("memory_gb", row.MemoryUsageGB),
			slog.Float64("elapsed_secs", row.ElapsedSecs))
	}

	l.setState(StateFinalizing)
	if err := l.sink.Persist(path); err != nil {
		return nil, l.fail(logger, err)
	}
	l.setState(StateDone)

	finished := time.Now()
	out := &Outcome{
		RunID:        runID,
		TestName:     rc.TestName,
		ArtifactPath: path,
		BatchSize:    size,
		Rows:         l.sink.Rows(),
		StartedAt:    started,
		FinishedAt:   finished,
		Wall:         finished.Sub(started),
	}
	logger.Info("run finished", slog.Int("rows", len(out.Rows)), slog.Duration("wall", out.Wall))
	return out, nil
}

func (l *Loop) initialize() (string, error) {
	cfg := l.cfg
	if err := cfg.Run.Validate(); err != nil {
		return "", newError(KindConfig, "validate", err)
	}
	switch {
	case cfg.Generator == nil:
		return "", newError(KindConfig, "validate", errors.New("generator is required"))
	case cfg.Factory == nil:
		return "", newError(KindConfig, "validate", errors.New("engine factory is required"))
	case cfg.Sampler == nil:
		return "", newError(KindEnvironmentUnavailable, "validate", errors.New("memory sampler is required"))
	}

	dir := cfg.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", newError(KindFilesystem, "create output dir", err)
	}
	path := ArtifactPath(dir, cfg.Run.TestName)
	if err := RemoveStale(path); err != nil {
		return "", err
	}
	if _, err := l.sample(); err != nil {
		return "", err
	}
	return path, nil
}

// runBatch owns the engine and batch for one iteration and releases both
// before returning.
func (l *Loop) runBatch(ctx context.Context, i, size int) (time.Duration, error) {
	batch := l.cfg.Generator.Generate(size, int64(i)*int64(size))

	engine, err := l.cfg.Factory.Create(ctx)
	if err != nil {
		clear(batch)
		return 0, newError(KindEngineConstruction, "create engine", err)
	}
	defer l.cfg.Reclaimer.Release(engine, batch)

	return l.cfg.Runner.Run(ctx, engine, batch)
}

func (l *Loop) sample() (MemorySample, error) {
	s, err := l.cfg.Sampler.Sample()
	if err != nil {
		if KindOf(err) == 0 {
			err = newError(KindEnvironmentUnavailable, "sample memory", err)
		}
		return MemorySample{}, err
	}
	return s, nil
}

func (l *Loop) fail(logger *slog.Logger, err error) error {
	l.setState(StateFailed)
	partial := l.sink.Rows()
	logger.Error("run failed", slog.Int("rows", len(partial)), slog.Any("error", err))
	if l.cfg.OnFailure != nil {
		l.cfg.OnFailure(partial, err)
	}
	return err
}
