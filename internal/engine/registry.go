package engine

import (
	"sync"

	"wave_trader/internal/core"
)

// Registry holds the shared lookup tables mutated by the concurrently
// delivered event streams: targets by id, orders by id and by instrument,
// and the latest market-data snapshot per instrument. Entries are inserted
// fully constructed; a reader never observes a partial entity.
type Registry struct {
	mu           sync.RWMutex
	targets      map[int64]*Target
	orders       map[string]*Order
	byInstrument map[string][]*Order
	marketData   map[string]core.Fields
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		targets:      make(map[int64]*Target),
		orders:       make(map[string]*Order),
		byInstrument: make(map[string][]*Order),
		marketData:   make(map[string]core.Fields),
	}
}

// AddTarget registers a target
func (r *Registry) AddTarget(t *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.ID()] = t
}

// Target looks up a target by id
func (r *Registry) Target(id int64) (*Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	return t, ok
}

// AddOrder registers an order under its id and instrument
func (r *Registry) AddOrder(o *Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID()] = o
	r.byInstrument[o.Instrument()] = append(r.byInstrument[o.Instrument()], o)
}

// Order looks up an order by id
func (r *Registry) Order(id string) (*Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	return o, ok
}

// OrdersForInstrument returns a snapshot of the orders tracked for an
// instrument; safe to iterate without holding the registry lock.
func (r *Registry) OrdersForInstrument(instrument string) []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orders := r.byInstrument[instrument]
	out := make([]*Order, len(orders))
	copy(out, orders)
	return out
}

// SetMarketData replaces the market snapshot for an instrument wholesale
func (r *Registry) SetMarketData(instrument string, fields core.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marketData[instrument] = fields
}

// MarketData returns the latest snapshot for an instrument, if any
func (r *Registry) MarketData(instrument string) (core.Fields, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.marketData[instrument]
	return f, ok
}

// TargetCount returns the number of registered targets
func (r *Registry) TargetCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// OrderCount returns the number of registered orders
func (r *Registry) OrderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
