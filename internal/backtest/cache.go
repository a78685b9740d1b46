package backtest

import (
	"sort"

	"backtest-leakcheck/internal/model"
)

// ring keeps the most recent capacity items.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) Push(v T) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring[T]) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *ring[T]) Last() (T, bool) {
	var zero T
	if r.Len() == 0 {
		return zero, false
	}
	i := r.next - 1
	if i < 0 {
		i = len(r.buf) - 1
	}
	return r.buf[i], true
}

// Items returns the retained items, oldest first.
func (r *ring[T]) Items() []T {
	out := make([]T, 0, r.Len())
	if r.full {
		out = append(out, r.buf[r.next:]...)
	}
	return append(out, r.buf[:r.next]...)
}

func (r *ring[T]) Clear() {
	clear(r.buf)
	r.next = 0
	r.full = false
}

// Cache holds the engine's working state: bounded market data plus every
// order and position created during the run.
type Cache struct {
	cfg CacheConfig

	quotes    map[model.InstrumentID]*ring[model.QuoteTick]
	bars      map[model.BarType]*ring[model.Bar]
	orders    map[string]*model.Order
	positions map[string]*model.Position
}

func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		cfg:       cfg,
		quotes:    map[model.InstrumentID]*ring[model.QuoteTick]{},
		bars:      map[model.BarType]*ring[model.Bar]{},
		orders:    map[string]*model.Order{},
		positions: map[string]*model.Position{},
	}
}

func (c *Cache) AddQuote(q model.QuoteTick) {
	r, ok := c.quotes[q.InstrumentID]
	if !ok {
		r = newRing[model.QuoteTick](c.cfg.TickCapacity)
		c.quotes[q.InstrumentID] = r
	}
	r.Push(q)
}

func (c *Cache) Quote(id model.InstrumentID) (model.QuoteTick, bool) {
	r, ok := c.quotes[id]
	if !ok {
		return model.QuoteTick{}, false
	}
	return r.Last()
}

func (c *Cache) Quotes(id model.InstrumentID) []model.QuoteTick {
	if r, ok := c.quotes[id]; ok {
		return r.Items()
	}
	return nil
}

func (c *Cache) AddBar(b model.Bar) {
	r, ok := c.bars[b.Type]
	if !ok {
		r = newRing[model.Bar](c.cfg.BarCapacity)
		c.bars[b.Type] = r
	}
	r.Push(b)
}

func (c *Cache) Bars(bt model.BarType) []model.Bar {
	if r, ok := c.bars[bt]; ok {
		return r.Items()
	}
	return nil
}

func (c *Cache) AddOrder(o *model.Order) { c.orders[o.ID] = o }

func (c *Cache) Order(id string) (*model.Order, bool) {
	o, ok := c.orders[id]
	return o, ok
}

func (c *Cache) OrderCount() int { return len(c.orders) }

func (c *Cache) AddPosition(p *model.Position) { c.positions[p.ID] = p }

func (c *Cache) Position(id string) (*model.Position, bool) {
	p, ok := c.positions[id]
	return p, ok
}

func (c *Cache) PositionCount() int { return len(c.positions) }

// OpenPositions returns open positions on the instrument ordered by id.
func (c *Cache) OpenPositions(id model.InstrumentID) []*model.Position {
	var out []*model.Position
	for _, p := range c.positions {
		if p.InstrumentID == id && p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset drops every reference the cache holds.
func (c *Cache) Reset() {
	for _, r := range c.quotes {
		r.Clear()
	}
	for _, r := range c.bars {
		r.Clear()
	}
	c.quotes = map[model.InstrumentID]*ring[model.QuoteTick]{}
	c.bars = map[model.BarType]*ring[model.Bar]{}
	c.orders = map[string]*model.Order{}
	c.positions = map[string]*model.Position{}
}
