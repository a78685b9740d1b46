package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"backtest-leakcheck/internal/data"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T, rc RunConfig, tr *tracker, s MemorySampler) (*Loop, string) {
	t.Helper()
	dir := t.TempDir()
	l := NewLoop(LoopConfig{
		Run:       rc,
		OutputDir: dir,
		Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), data.TimestampsReset),
		Factory:   tr.factory(),
		Sampler:   s,
		Reclaimer: noopReclaimer(),
	}, discardLogger())
	return l, dir
}

func TestLoop_EndToEnd(t *testing.T) {
	tr := &tracker{}
	s := &stubSampler{t: tr, next: 100_000_000, step: 1_000_000}
	l, dir := newTestLoop(t, RunConfig{TestName: "memory", TotalItems: 1000, BatchCount: 10}, tr, s)

	out, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, l.State())
	assert.Equal(t, 10, tr.created)
	assert.Equal(t, 0, tr.live)
	assert.Equal(t, 100, out.BatchSize)
	assert.Equal(t, filepath.Join(dir, "memory.csv"), out.ArtifactPath)

	require.Len(t, out.Rows, 10)
	for i, r := range out.Rows {
		assert.Equal(t, 100*(i+1), r.Processed)
		if i > 0 {
			assert.GreaterOrEqual(t, r.ElapsedSecs, out.Rows[i-1].ElapsedSecs)
		}
	}
	// First sample after the probe.
	assert.InDelta(t, 0.101, out.Rows[0].MemoryUsageGB, 1e-9)

	persisted, err := ReadCSVFile(out.ArtifactPath)
	require.NoError(t, err)
	require.Len(t, persisted, 10)
	assert.Equal(t, 1000, persisted[9].Processed)
	assert.InDelta(t, out.Rows[9].MemoryUsageGB, persisted[9].MemoryUsageGB, 1e-6)
}

func TestLoop_EnginesReleasedBeforeSampling(t *testing.T) {
	tr := &tracker{}
	s := &stubSampler{t: tr, step: 1}
	var liveAtCollect []int

	dir := t.TempDir()
	l := NewLoop(LoopConfig{
		Run:       RunConfig{TestName: "iso", TotalItems: 50, BatchCount: 5},
		OutputDir: dir,
		Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), data.TimestampsReset),
		Factory:   tr.factory(),
		Sampler:   s,
		Reclaimer: &Reclaimer{collect: func() { liveAtCollect = append(liveAtCollect, tr.live) }},
	}, discardLogger())

	_, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, liveAtCollect)
	// The probe plus one sample per batch.
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, s.liveSeen)
}

func TestLoop_RunFailure(t *testing.T) {
	tr := &tracker{runErrAt: 3}
	s := &stubSampler{step: 1}
	dir := t.TempDir()
	stale := filepath.Join(dir, "memory.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	var partial []MeasurementRow
	l := NewLoop(LoopConfig{
		Run:       RunConfig{TestName: "memory", TotalItems: 100, BatchCount: 5},
		OutputDir: dir,
		Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), data.TimestampsReset),
		Factory:   tr.factory(),
		Sampler:   s,
		Reclaimer: noopReclaimer(),
		OnFailure: func(rows []MeasurementRow, _ error) { partial = rows },
	}, discardLogger())

	out, err := l.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrEngineRun))
	assert.False(t, errors.Is(err, ErrEngineConstruction))

	var he *Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 2, he.Batch)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, StateFailed, l.State())
	require.Len(t, partial, 2)
	assert.Equal(t, 40, partial[1].Processed)
	assert.Equal(t, 0, tr.live)
	assert.NoFileExists(t, stale)
}

func TestLoop_ConstructionFailure(t *testing.T) {
	s := &stubSampler{step: 1}
	dir := t.TempDir()
	l := NewLoop(LoopConfig{
		Run:       RunConfig{TestName: "memory", TotalItems: 10, BatchCount: 2},
		OutputDir: dir,
		Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), data.TimestampsReset),
		Factory: EngineFactoryFunc(func(context.Context) (Engine, error) {
			return nil, errors.New("no venue")
		}),
		Sampler:   s,
		Reclaimer: noopReclaimer(),
	}, discardLogger())

	_, err := l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineConstruction))
	assert.Equal(t, KindEngineConstruction, KindOf(err))
	assert.Empty(t, l.Rows())
	assert.NoFileExists(t, filepath.Join(dir, "memory.csv"))
}

func TestLoop_SamplerUnavailable(t *testing.T) {
	tr := &tracker{}
	s := &stubSampler{err: errors.New("no /proc")}
	l, _ := newTestLoop(t, RunConfig{TestName: "memory", TotalItems: 10, BatchCount: 2}, tr, s)

	_, err := l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnvironmentUnavailable))
	assert.Zero(t, tr.created)
}

func TestLoop_SamplerFailsMidRun(t *testing.T) {
	tr := &tracker{}
	s := &stubSampler{err: errors.New("gone"), failAt: 3, step: 1}
	l, dir := newTestLoop(t, RunConfig{TestName: "memory", TotalItems: 10, BatchCount: 5}, tr, s)

	_, err := l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnvironmentUnavailable))
	assert.Len(t, l.Rows(), 1)
	assert.NoFileExists(t, filepath.Join(dir, "memory.csv"))
}

func TestLoop_InvalidConfig(t *testing.T) {
	for name, rc := range map[string]RunConfig{
		"zero batches":      {TestName: "memory", TotalItems: 10, BatchCount: 0},
		"oversized batches": {TestName: "memory", TotalItems: 10, BatchCount: 1 << 60},
	} {
		t.Run(name, func(t *testing.T) {
			tr := &tracker{}
			l, _ := newTestLoop(t, rc, tr, &stubSampler{})

			_, err := l.Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
			assert.Equal(t, StateFailed, l.State())
			assert.Zero(t, tr.created)
		})
	}
}

func TestLoop_SamplerSentinelNotModified(t *testing.T) {
	before := ErrEnvironmentUnavailable.Error()
	tr := &tracker{}
	s := &stubSampler{err: ErrEnvironmentUnavailable, failAt: 3, step: 1}
	l, _ := newTestLoop(t, RunConfig{TestName: "memory", TotalItems: 10, BatchCount: 5}, tr, s)

	_, err := l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnvironmentUnavailable))
	assert.Contains(t, err.Error(), "(batch 1)")
	assert.Equal(t, before, ErrEnvironmentUnavailable.Error())
	assert.Equal(t, noBatch, ErrEnvironmentUnavailable.Batch)
}

func TestLoop_Canceled(t *testing.T) {
	tr := &tracker{}
	l, _ := newTestLoop(t, RunConfig{TestName: "memory", TotalItems: 10, BatchCount: 2}, tr, &stubSampler{step: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineRun))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, tr.created)
}

func TestLoop_RunsOnce(t *testing.T) {
	tr := &tracker{}
	l, _ := newTestLoop(t, RunConfig{TestName: "memory", TotalItems: 10, BatchCount: 2}, tr, &stubSampler{step: 1})

	_, err := l.Run(context.Background())
	require.NoError(t, err)
	_, err = l.Run(context.Background())
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestLoop_RerunReplacesArtifact(t *testing.T) {
	dir := t.TempDir()
	run := func(total int) []MeasurementRow {
		tr := &tracker{}
		l := NewLoop(LoopConfig{
			Run:       RunConfig{TestName: "memory", TotalItems: total, BatchCount: 2},
			OutputDir: dir,
			Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), data.TimestampsReset),
			Factory:   tr.factory(),
			Sampler:   &stubSampler{step: 1},
			Reclaimer: noopReclaimer(),
		}, discardLogger())
		out, err := l.Run(context.Background())
		require.NoError(t, err)
		rows, err := ReadCSVFile(out.ArtifactPath)
		require.NoError(t, err)
		return rows
	}

	first := run(10)
	second := run(40)
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, 10, first[1].Processed)
	assert.Equal(t, 40, second[1].Processed)
}

func TestLoop_TimestampModes(t *testing.T) {
	for _, tc := range []struct {
		mode data.TimestampMode
		want []int64
	}{
		{data.TimestampsReset, []int64{0, 0, 0}},
		{data.TimestampsContinuous, []int64{0, 4, 8}},
	} {
		t.Run(string(tc.mode), func(t *testing.T) {
			tr := &tracker{}
			l := NewLoop(LoopConfig{
				Run:       RunConfig{TestName: "ts", TotalItems: 12, BatchCount: 3},
				OutputDir: t.TempDir(),
				Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), tc.mode),
				Factory:   tr.factory(),
				Sampler:   &stubSampler{step: 1},
				Reclaimer: noopReclaimer(),
			}, discardLogger())
			_, err := l.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, tr.firstTs)
		})
	}
}

func TestLoop_BacktestEngineIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the real engine")
	}
	sampler, err := NewProcessSampler()
	require.NoError(t, err)

	dir := t.TempDir()
	l := NewLoop(LoopConfig{
		Run:       RunConfig{TestName: "memory", TotalItems: 2000, BatchCount: 4},
		OutputDir: dir,
		Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), data.TimestampsReset),
		Factory:   NewBacktestFactory(DefaultFixture(), discardLogger()),
		Sampler:   sampler,
	}, discardLogger())

	out, err := l.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Rows, 4)
	for _, r := range out.Rows {
		assert.Greater(t, r.MemoryUsageGB, 0.0)
	}
	assert.Equal(t, 2000, out.Rows[3].Processed)
	assert.FileExists(t, out.ArtifactPath)
}

func TestLoop_RowsMatchBatchArithmetic(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("one row per batch, processed = size*(i+1)", prop.ForAll(
		func(count, extra int) bool {
			total := count + extra
			tr := &tracker{}
			l := NewLoop(LoopConfig{
				Run:       RunConfig{TestName: "prop", TotalItems: total, BatchCount: count},
				OutputDir: t.TempDir(),
				Generator: data.NewQuoteGenerator(data.DefaultQuoteSpec(), data.TimestampsReset),
				Factory:   tr.factory(),
				Sampler:   &stubSampler{step: 1},
				Reclaimer: noopReclaimer(),
			}, discardLogger())
			out, err := l.Run(context.Background())
			if err != nil || len(out.Rows) != count || tr.live != 0 {
				return false
			}
			size := total / count
			for i, r := range out.Rows {
				if r.Processed != size*(i+1) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}
