package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"backtest-leakcheck/internal/model"
	"backtest-leakcheck/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrDisposed   = errors.New("engine disposed")
	ErrAlreadyRun = errors.New("engine already run")
)

// ctxCheckEvery is how many quotes are processed between context checks.
const ctxCheckEvery = 4096

// Engine replays quotes through a simulated venue and a set of strategies.
// An Engine runs once; Dispose releases everything it holds.
type Engine struct {
	ID string

	cfg    EngineConfig
	logger *slog.Logger

	cache       *Cache
	risk        *riskEngine
	venues      map[model.Venue]*simulatedExchange
	instruments map[model.InstrumentID]*model.Instrument
	strategies  []strategy.Strategy
	data        []model.QuoteTick

	ledger   []LedgerRow
	cumPnL   decimal.Decimal
	orderSeq int
	denied   int
	bars     int

	ran      bool
	disposed bool
}

func New(cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = slog.New(levelHandler{level: cfg.LogLevel.Slog(), Handler: logger.Handler()}).
		With(slog.String("trader_id", cfg.TraderID), slog.String("engine_id", id))

	return &Engine{
		ID:          id,
		cfg:         cfg,
		logger:      logger,
		cache:       NewCache(cfg.Cache),
		risk:        &riskEngine{cfg: cfg.RiskEngine},
		venues:      map[model.Venue]*simulatedExchange{},
		instruments: map[model.InstrumentID]*model.Instrument{},
	}, nil
}

func (e *Engine) AddVenue(v VenueConfig) error {
	if e.disposed {
		return ErrDisposed
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("add venue: %w", err)
	}
	if _, ok := e.venues[v.Venue]; ok {
		return fmt.Errorf("add venue: venue %s already added", v.Venue)
	}
	e.venues[v.Venue] = newSimulatedExchange(v, e.cache)
	e.logger.Debug("venue added", slog.String("venue", string(v.Venue)), slog.String("oms_type", string(v.OMSType)))
	return nil
}

func (e *Engine) AddInstrument(inst *model.Instrument) error {
	if e.disposed {
		return ErrDisposed
	}
	if inst == nil {
		return errors.New("add instrument: instrument is nil")
	}
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("add instrument: %w", err)
	}
	if _, ok := e.venues[inst.ID.Venue]; !ok {
		return fmt.Errorf("add instrument: venue %s not added", inst.ID.Venue)
	}
	e.instruments[inst.ID] = inst
	return nil
}

func (e *Engine) AddStrategy(s strategy.Strategy) error {
	if e.disposed {
		return ErrDisposed
	}
	if s == nil {
		return errors.New("add strategy: strategy is nil")
	}
	e.strategies = append(e.strategies, s)
	return nil
}

// AddData copies ticks into the engine. Every tick's instrument must already be added.
func (e *Engine) AddData(ticks []model.QuoteTick) error {
	if e.disposed {
		return ErrDisposed
	}
	if len(ticks) == 0 {
		return errors.New("add data: no ticks")
	}
	for i := range ticks {
		if _, ok := e.instruments[ticks[i].InstrumentID]; !ok {
			return fmt.Errorf("add data: tick %d: instrument %s not added", i, ticks[i].InstrumentID)
		}
	}
	e.data = slices.Grow(e.data, len(ticks))
	e.data = append(e.data, ticks...)
	return nil
}

// Run replays all added data to completion.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.disposed {
		return nil, ErrDisposed
	}
	if e.ran {
		return nil, ErrAlreadyRun
	}
	e.ran = true

	if len(e.venues) == 0 {
		return nil, errors.New("run: no venues added")
	}
	if len(e.strategies) == 0 {
		return nil, errors.New("run: no strategies added")
	}
	if len(e.data) == 0 {
		return nil, errors.New("run: no data added")
	}
	aggs := make([]*timeBarAggregator, 0, len(e.strategies))
	for _, s := range e.strategies {
		if _, ok := e.instruments[s.InstrumentID()]; !ok {
			return nil, fmt.Errorf("run: strategy %s: instrument %s not added", s.Name(), s.InstrumentID())
		}
		if !slices.ContainsFunc(aggs, func(a *timeBarAggregator) bool { return a.barType == s.BarType() }) {
			aggs = append(aggs, newTimeBarAggregator(s.BarType()))
		}
	}

	slices.SortStableFunc(e.data, func(a, b model.QuoteTick) int {
		switch {
		case a.TsInit < b.TsInit:
			return -1
		case a.TsInit > b.TsInit:
			return 1
		default:
			return 0
		}
	})

	start := time.Now()
	e.logger.Info("backtest run started", slog.Int("ticks", len(e.data)), slog.Int("strategies", len(e.strategies)))

	for i, q := range e.data {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("run: %w", err)
			}
		}
		e.cache.AddQuote(q)

		for _, agg := range aggs {
			if agg.barType.InstrumentID != q.InstrumentID {
				continue
			}
			bar, ok := agg.Handle(q)
			if !ok {
				continue
			}
			e.cache.AddBar(bar)
			if err := e.onBar(bar, q); err != nil {
				return nil, fmt.Errorf("run: bar %d: %w", e.bars, err)
			}
			e.bars++
		}
	}

	res := e.result(time.Since(start))
	e.logger.Info("backtest run complete",
		slog.Int("ticks", res.Ticks),
		slog.Int("bars", res.Bars),
		slog.Int("fills", res.Fills),
		slog.String("pnl", res.TotalPnL.StringFixed(2)),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (e *Engine) onBar(bar model.Bar, q model.QuoteTick) error {
	for _, s := range e.strategies {
		if s.BarType() != bar.Type {
			continue
		}
		id := s.InstrumentID()
		net := decimal.Zero
		for _, p := range e.cache.OpenPositions(id) {
			net = net.Add(p.Quantity)
		}
		d := s.Decide(strategy.Context{Index: e.bars, Bar: bar, Position: net})
		if d.IsHold() {
			continue
		}
		if err := e.execute(s, d, q); err != nil {
			return fmt.Errorf("strategy %s: %w", s.Name(), err)
		}
	}
	return nil
}

func (e *Engine) execute(s strategy.Strategy, d strategy.Decision, q model.QuoteTick) error {
	id := s.InstrumentID()
	if d.Flatten {
		for _, p := range e.cache.OpenPositions(id) {
			side := model.SideSell
			if p.Side() == model.PositionShort {
				side = model.SideBuy
			}
			if err := e.submit(e.newOrder(s, side, p.Quantity.Abs(), p.ID, q.TsInit), q); err != nil {
				return err
			}
		}
	}
	if d.Quantity.IsPositive() {
		return e.submit(e.newOrder(s, d.Side, d.Quantity, "", q.TsInit), q)
	}
	return nil
}

func (e *Engine) newOrder(s strategy.Strategy, side model.OrderSide, qty decimal.Decimal, positionID string, ts int64) *model.Order {
	e.orderSeq++
	return &model.Order{
		ID:           fmt.Sprintf("O-%d-%s-%d", ts, e.cfg.TraderID, e.orderSeq),
		StrategyName: s.Name(),
		InstrumentID: s.InstrumentID(),
		Side:         side,
		Quantity:     qty,
		PositionID:   positionID,
		TsInit:       ts,
	}
}

func (e *Engine) submit(o *model.Order, q model.QuoteTick) error {
	e.cache.AddOrder(o)
	inst := e.instruments[o.InstrumentID]
	venue, ok := e.venues[o.InstrumentID.Venue]
	if !ok {
		return fmt.Errorf("order %s: venue %s not added", o.ID, o.InstrumentID.Venue)
	}

	if err := e.risk.check(o, inst, q, venue.account); err != nil {
		if errors.Is(err, ErrOrderDenied) {
			e.denied++
			e.logger.Warn("order denied", slog.String("order_id", o.ID), slog.String("reason", err.Error()))
			return nil
		}
		return err
	}

	fill, realized, err := venue.execute(o, inst, q)
	if err != nil {
		return err
	}
	e.cumPnL = e.cumPnL.Add(realized)
	e.ledger = append(e.ledger, LedgerRow{
		Index:       len(e.ledger),
		TsEvent:     fill.TsEvent,
		OrderID:     fill.OrderID,
		PositionID:  fill.PositionID,
		Instrument:  fill.InstrumentID,
		Side:        fill.Side,
		Quantity:    fill.Quantity,
		Price:       fill.Price,
		RealizedPnL: realized,
		CumPnL:      e.cumPnL,
	})
	e.logger.Debug("order filled",
		slog.String("order_id", fill.OrderID),
		slog.String("side", string(fill.Side)),
		slog.String("px", fill.Price.String()),
	)
	return nil
}

func (e *Engine) result(elapsed time.Duration) *Result {
	res := &Result{
		EngineID:     e.ID,
		Ticks:        len(e.data),
		Bars:         e.bars,
		Orders:       e.cache.OrderCount(),
		DeniedOrders: e.denied,
		Fills:        len(e.ledger),
		Positions:    e.cache.PositionCount(),
		Ledger:       slices.Clone(e.ledger),
		TotalPnL:     e.cumPnL,
		Elapsed:      elapsed,
	}
	for id := range e.instruments {
		res.OpenPositions += len(e.cache.OpenPositions(id))
	}
	venues := make([]model.Venue, 0, len(e.venues))
	for v := range e.venues {
		venues = append(venues, v)
	}
	slices.Sort(venues)
	for _, v := range venues {
		res.Balances = append(res.Balances, e.venues[v].balances()...)
	}
	return res
}

// Dispose drops every reference the engine holds. It is safe to call more than once.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	e.cache.Reset()
	clear(e.data)
	e.data = nil
	clear(e.ledger)
	e.ledger = nil
	e.strategies = nil
	e.venues = nil
	e.instruments = nil
	e.logger.Debug("engine disposed")
}

func (e *Engine) Disposed() bool { return e.disposed }
