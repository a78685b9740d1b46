package backtest

import (
	"errors"
	"fmt"
	"math/rand"

	"backtest-leakcheck/internal/model"

	"github.com/shopspring/decimal"
)

// FillModel decides how market orders fill against the simulated book.
// With probability ProbSlippage a market order fills one price increment
// worse than the top of book.
type FillModel struct {
	ProbSlippage float64
	RandomSeed   int64

	rng *rand.Rand
}

func NewFillModel(probSlippage float64, seed int64) (*FillModel, error) {
	if probSlippage < 0 || probSlippage > 1 {
		return nil, fmt.Errorf("prob_slippage must be in [0, 1], got %v", probSlippage)
	}
	return &FillModel{ProbSlippage: probSlippage, RandomSeed: seed}, nil
}

func (m *FillModel) slipped() bool {
	if m == nil || m.ProbSlippage == 0 {
		return false
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(m.RandomSeed))
	}
	return m.rng.Float64() < m.ProbSlippage
}

type VenueConfig struct {
	Venue            model.Venue
	OMSType          model.OMSType
	AccountType      model.AccountType
	BaseCurrency     model.Currency
	StartingBalances []model.Money
	FillModel        *FillModel
}

func (v VenueConfig) Validate() error {
	if v.Venue == "" {
		return errors.New("venue is required")
	}
	if _, err := model.ParseOMSType(string(v.OMSType)); err != nil {
		return err
	}
	if _, err := model.ParseAccountType(string(v.AccountType)); err != nil {
		return err
	}
	if len(v.StartingBalances) == 0 {
		return errors.New("at least one starting balance is required")
	}
	for _, b := range v.StartingBalances {
		if b.Amount.IsNegative() {
			return fmt.Errorf("starting balance %s must be >= 0", b)
		}
		if v.BaseCurrency != "" && b.Currency != v.BaseCurrency {
			return fmt.Errorf("starting balance %s does not match base currency %s", b, v.BaseCurrency)
		}
	}
	return nil
}

type account struct {
	typ      model.AccountType
	balances map[model.Currency]decimal.Decimal
	// margin is the initial margin currently locked against open positions.
	margin map[model.Currency]decimal.Decimal
}

func newAccount(cfg VenueConfig) *account {
	a := &account{
		typ:      cfg.AccountType,
		balances: map[model.Currency]decimal.Decimal{},
		margin:   map[model.Currency]decimal.Decimal{},
	}
	for _, b := range cfg.StartingBalances {
		a.balances[b.Currency] = a.balances[b.Currency].Add(b.Amount)
	}
	return a
}

func (a *account) free(c model.Currency) decimal.Decimal {
	return a.balances[c].Sub(a.margin[c])
}

// simulatedExchange fills market orders immediately at the latest quote.
type simulatedExchange struct {
	cfg     VenueConfig
	account *account
	cache   *Cache

	positionSeq int
}

func newSimulatedExchange(cfg VenueConfig, cache *Cache) *simulatedExchange {
	return &simulatedExchange{
		cfg:     cfg,
		account: newAccount(cfg),
		cache:   cache,
	}
}

// execute fills o at the top of book of q and returns the fill and the PnL it realized.
func (x *simulatedExchange) execute(o *model.Order, inst *model.Instrument, q model.QuoteTick) (model.Fill, decimal.Decimal, error) {
	increment := decimal.New(1, -inst.PricePrecision)
	px := q.AskPrice.Value
	if o.Side == model.SideSell {
		px = q.BidPrice.Value
	}
	if x.cfg.FillModel.slipped() {
		if o.Side == model.SideBuy {
			px = px.Add(increment)
		} else {
			px = px.Sub(increment)
		}
	}

	pos, err := x.positionFor(o, q.TsEvent)
	if err != nil {
		return model.Fill{}, decimal.Zero, err
	}

	fill := model.Fill{
		OrderID:      o.ID,
		PositionID:   pos.ID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Quantity:     o.Quantity,
		Price:        px,
		TsEvent:      q.TsEvent,
	}
	realized := pos.Apply(fill)

	ccy := inst.QuoteCurrency
	x.account.balances[ccy] = x.account.balances[ccy].Add(realized)
	if x.account.typ == model.AccountMargin {
		x.account.margin[ccy] = x.lockedMargin(inst)
	}
	return fill, realized, nil
}

func (x *simulatedExchange) positionFor(o *model.Order, ts int64) (*model.Position, error) {
	switch x.cfg.OMSType {
	case model.OMSNetting:
		id := o.InstrumentID.String() + "-NET"
		if p, ok := x.cache.Position(id); ok {
			return p, nil
		}
		p := &model.Position{ID: id, InstrumentID: o.InstrumentID, OpenedAt: ts}
		x.cache.AddPosition(p)
		return p, nil
	default:
		if o.PositionID != "" {
			p, ok := x.cache.Position(o.PositionID)
			if !ok {
				return nil, fmt.Errorf("order %s targets unknown position %s", o.ID, o.PositionID)
			}
			return p, nil
		}
		x.positionSeq++
		p := &model.Position{
			ID:           fmt.Sprintf("%s-%03d", o.InstrumentID, x.positionSeq),
			InstrumentID: o.InstrumentID,
			OpenedAt:     ts,
		}
		x.cache.AddPosition(p)
		return p, nil
	}
}

func (x *simulatedExchange) lockedMargin(inst *model.Instrument) decimal.Decimal {
	total := decimal.Zero
	for _, p := range x.cache.OpenPositions(inst.ID) {
		total = total.Add(p.Quantity.Abs().Mul(p.AvgPx).Mul(inst.MarginInit))
	}
	return total
}

func (x *simulatedExchange) balances() []model.Money {
	out := make([]model.Money, 0, len(x.account.balances))
	for _, b := range x.cfg.StartingBalances {
		out = append(out, model.Money{Amount: x.account.balances[b.Currency], Currency: b.Currency})
	}
	return out
}
