package engine

import (
	"context"
	"sync"

	"wave_trader/internal/core"
	"wave_trader/pkg/concurrency"
)

// Router demultiplexes the three inbound event feeds to the right Target or
// Order instance via the shared registry. Events referencing unknown ids
// are logged and dropped, never fatal.
type Router struct {
	registry   *Registry
	deps       Deps
	completion *sync.WaitGroup
	pool       *concurrency.WorkerPool
	logger     core.ILogger
}

// NewRouter creates a router. pool may be nil, in which case market-data
// fan-out runs inline on the delivering goroutine.
func NewRouter(registry *Registry, deps Deps, completion *sync.WaitGroup, pool *concurrency.WorkerPool) *Router {
	return &Router{
		registry:   registry,
		deps:       deps,
		completion: completion,
		pool:       pool,
		logger:     deps.Logger.WithField("component", "router"),
	}
}

// HandleTargetEvent routes a target lifecycle event
func (rt *Router) HandleTargetEvent(ctx context.Context, ev core.TargetEvent) {
	switch ev.Kind {
	case core.EventAdded:
		target := NewTarget(ev.TargetID, ev.Fields, rt.completion, rt.deps)
		rt.registry.AddTarget(target)
		rt.logger.Info("New target added", "target_id", ev.TargetID)
	case core.EventUpdated:
		target, ok := rt.registry.Target(ev.TargetID)
		if !ok {
			rt.logger.Warn("Update for unknown target", "target_id", ev.TargetID)
			return
		}
		target.OnUpdated(ctx, ev.Fields)
	}
}

// HandleOrderEvent routes an order lifecycle event. For an add, the parent
// target and the instrument's current market snapshot are resolved before
// the order is constructed.
func (rt *Router) HandleOrderEvent(ctx context.Context, ev core.OrderEvent) {
	switch ev.Kind {
	case core.EventAdded:
		targetID := int64(ev.Fields.NumberOr(core.FieldTgtID, -1))
		instrument := ev.Fields.StringOr(core.FieldInstrument, "")

		target, ok := rt.registry.Target(targetID)
		if !ok {
			rt.logger.Warn("Order added for unknown target",
				"order_id", ev.OrderID,
				"target_id", targetID)
			return
		}

		marketData, _ := rt.registry.MarketData(instrument)
		order := NewOrder(ctx, ev.OrderID, instrument, target, ev.Fields, marketData, rt.deps)
		rt.registry.AddOrder(order)
	case core.EventUpdated:
		order, ok := rt.registry.Order(ev.OrderID)
		if !ok {
			rt.logger.Warn("Update for unknown order", "order_id", ev.OrderID)
			return
		}
		order.OnUpdated(ctx, ev.Fields)
	}
}

// HandleMarketData stores the instrument snapshot first, then forwards the
// tick to every tracked order for the instrument. Each per-order call is
// independent and idempotent, so fan-out order is not significant.
func (rt *Router) HandleMarketData(ctx context.Context, ev core.MarketDataEvent) {
	rt.registry.SetMarketData(ev.Instrument, ev.Fields)

	for _, order := range rt.registry.OrdersForInstrument(ev.Instrument) {
		o := order
		if rt.pool == nil {
			o.OnMarketData(ctx, ev.Fields)
			continue
		}
		if err := rt.pool.Submit(func() {
			o.OnMarketData(ctx, ev.Fields)
		}); err != nil {
			rt.logger.Warn("Market data fan-out dropped",
				"instrument", ev.Instrument,
				"order_id", o.ID(),
				"error", err)
		}
	}
}
