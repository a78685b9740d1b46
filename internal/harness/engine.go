package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"backtest-leakcheck/internal/backtest"
	"backtest-leakcheck/internal/model"
	"backtest-leakcheck/internal/strategy"

	"github.com/shopspring/decimal"
)

// Engine is one disposable engine instance. After Dispose it must hold no
// references to anything it was given or built.
type Engine interface {
	Load(batch []model.QuoteTick) error
	Run(ctx context.Context) error
	Dispose()
}

// EngineFactory builds a fresh, independently owned Engine per call.
type EngineFactory interface {
	Create(ctx context.Context) (Engine, error)
}

type EngineFactoryFunc func(ctx context.Context) (Engine, error)

func (f EngineFactoryFunc) Create(ctx context.Context) (Engine, error) { return f(ctx) }

// Fixture is the fixed setup every backtest engine is built with.
type Fixture struct {
	Engine backtest.EngineConfig

	Symbol          string
	Venue           model.Venue
	OMSType         model.OMSType
	AccountType     model.AccountType
	BaseCurrency    model.Currency
	StartingBalance model.Money
	ProbSlippage    float64
	FillSeed        int64

	BarType    string
	TradeSize  decimal.Decimal
	FastPeriod int
	SlowPeriod int
}

// DefaultFixture bypasses risk checks and keeps one tick and one bar in the
// cache, so the engine cannot legitimately retain earlier data.
func DefaultFixture() Fixture {
	cfg := backtest.DefaultEngineConfig()
	cfg.RiskEngine.Bypass = true
	cfg.Cache = backtest.CacheConfig{TickCapacity: 1, BarCapacity: 1}
	cfg.LogLevel = backtest.LogWarning

	return Fixture{
		Engine:          cfg,
		Symbol:          "EUR/USD",
		Venue:           "SIM",
		OMSType:         model.OMSHedging,
		AccountType:     model.AccountMargin,
		BaseCurrency:    model.USD,
		StartingBalance: model.NewMoney(1_000_000, model.USD),
		BarType:         "EUR/USD.SIM-1-HOUR-ASK-EXTERNAL",
		TradeSize:       decimal.NewFromInt(100_000),
		FastPeriod:      10,
		SlowPeriod:      20,
	}
}

// BacktestFactory builds backtest engines from a Fixture.
type BacktestFactory struct {
	Fixture Fixture
	Logger  *slog.Logger
}

func NewBacktestFactory(fixture Fixture, logger *slog.Logger) *BacktestFactory {
	return &BacktestFactory{Fixture: fixture, Logger: logger}
}

// Create builds every fixture object anew so no two engines share state.
func (f *BacktestFactory) Create(_ context.Context) (Engine, error) {
	fx := f.Fixture

	e, err := backtest.New(fx.Engine, f.Logger)
	if err != nil {
		return nil, err
	}
	if err := f.configure(e); err != nil {
		e.Dispose()
		return nil, err
	}
	return &backtestEngine{engine: e}, nil
}

func (f *BacktestFactory) configure(e *backtest.Engine) error {
	fx := f.Fixture

	inst, err := model.DefaultFXPair(fx.Symbol, fx.Venue)
	if err != nil {
		return fmt.Errorf("instrument: %w", err)
	}
	bt, err := model.ParseBarType(fx.BarType)
	if err != nil {
		return fmt.Errorf("bar type: %w", err)
	}
	strat, err := strategy.NewEMACross(strategy.EMACrossParams{
		InstrumentID: inst.ID,
		BarType:      bt,
		TradeSize:    fx.TradeSize,
		FastPeriod:   fx.FastPeriod,
		SlowPeriod:   fx.SlowPeriod,
	})
	if err != nil {
		return err
	}
	fm, err := backtest.NewFillModel(fx.ProbSlippage, fx.FillSeed)
	if err != nil {
		return err
	}

	if err := e.AddStrategy(strat); err != nil {
		return err
	}
	if err := e.AddVenue(backtest.VenueConfig{
		Venue:            fx.Venue,
		OMSType:          fx.OMSType,
		AccountType:      fx.AccountType,
		BaseCurrency:     fx.BaseCurrency,
		StartingBalances: []model.Money{fx.StartingBalance},
		FillModel:        fm,
	}); err != nil {
		return err
	}
	return e.AddInstrument(inst)
}

type backtestEngine struct {
	engine *backtest.Engine
}

func (b *backtestEngine) Load(batch []model.QuoteTick) error {
	if b.engine == nil {
		return backtest.ErrDisposed
	}
	return b.engine.AddData(batch)
}

func (b *backtestEngine) Run(ctx context.Context) error {
	if b.engine == nil {
		return backtest.ErrDisposed
	}
	res, err := b.engine.Run(ctx)
	if err != nil {
		return err
	}
	if res.Ticks == 0 {
		return errors.New("engine processed no ticks")
	}
	return nil
}

func (b *backtestEngine) Dispose() {
	if b.engine == nil {
		return
	}
	b.engine.Dispose()
	b.engine = nil
}
