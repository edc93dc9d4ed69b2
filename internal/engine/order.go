package engine

import (
	"context"
	"sync"

	"wave_trader/internal/core"
	"wave_trader/pkg/scheduler"

	"github.com/shopspring/decimal"
)

// Order is the per-child-order state machine. Escalation is monotonic and
// one-directional:
//
//	Working@Limit -> Working@MidPrice -> Working@Market -> Closed
//
// with Closed reachable directly from any state via a fill or cancel
// confirmation. A price of zero is the market sentinel. Exactly one of the
// mid-price timer and the market timer is armed while the order is open and
// not yet at market.
type Order struct {
	mu sync.Mutex

	id         string
	instrument string
	target     *Target

	closed bool
	price  decimal.Decimal
	midPx  decimal.Decimal
	hasMid bool

	midTask    *scheduler.Task
	marketTask *scheduler.Task

	dispatcher core.Dispatcher
	sched      *scheduler.Scheduler
	cfg        Config
	logger     core.ILogger

	// runCtx backs commands issued from timer callbacks, which have no
	// delivering event to borrow a context from.
	runCtx context.Context
}

// NewOrder constructs an Order from an "order added" event. It arms the
// mid-price escalation timer, notifies the owning target, and finally
// re-evaluates the add fields in case the fill confirmation raced ahead of
// the add event.
func NewOrder(ctx context.Context, orderID, instrument string, target *Target, fields, marketData core.Fields, deps Deps) *Order {
	o := &Order{
		id:         orderID,
		instrument: instrument,
		target:     target,
		price:      decimal.NewFromFloat(fields.NumberOr(core.FieldOrdPx, 0)),
		dispatcher: deps.Dispatcher,
		sched:      deps.Scheduler,
		cfg:        deps.Config,
		logger: deps.Logger.WithField("component", "order").
			WithField("order_id", orderID).
			WithField("target_id", target.ID()),
		runCtx: ctx,
	}

	if marketData != nil {
		if v, ok := marketData.Number(core.FieldMidPx); ok {
			o.midPx = decimal.NewFromFloat(v)
			o.hasMid = true
		}
	}

	o.mu.Lock()
	o.midTask = o.sched.Schedule(o.cfg.MidPriceDelay, func() {
		o.escalateToMid(o.runCtx, "timer")
	})
	o.mu.Unlock()

	o.logger.Info("New order added", "price", o.price, "instrument", instrument)
	target.OnOrderAdded(ctx, orderID)

	// The order may already be fully filled by the time the add event is
	// observed.
	o.OnUpdated(ctx, fields)
	return o
}

// ID returns the order id
func (o *Order) ID() string { return o.id }

// Instrument returns the order's instrument
func (o *Order) Instrument() string { return o.instrument }

// OnUpdated applies an "order updated" event. A Leaves field of zero closes
// the order: both escalation timers are released and the owning target is
// notified exactly once. An event without a Leaves field is informational
// only.
func (o *Order) OnUpdated(ctx context.Context, fields core.Fields) {
	leaves, ok := fields.Number(core.FieldLeaves)
	if !ok || leaves != 0 {
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.logger.Debug("Ignoring update for already closed order")
		return
	}
	o.closed = true
	o.midTask.Cancel()
	o.midTask = nil
	o.marketTask.Cancel()
	o.marketTask = nil
	o.mu.Unlock()

	o.logger.Info("Order is closed")
	o.target.OnOrderClosed(ctx, o.id)
}

// OnMarketData refreshes the cached midpoint and, while the order still
// works at a limit price, checks the last trade price against it. A relative
// deviation beyond the threshold escalates to the midpoint immediately,
// superseding the pending mid-price timer.
func (o *Order) OnMarketData(ctx context.Context, fields core.Fields) {
	o.mu.Lock()
	if v, ok := fields.Number(core.FieldMidPx); ok {
		o.midPx = decimal.NewFromFloat(v)
		o.hasMid = true
	}

	if o.closed || !o.price.IsPositive() {
		o.mu.Unlock()
		return
	}

	lastPx, ok := fields.Number(core.FieldLastPx)
	if !ok || lastPx <= 0 {
		// No usable last trade price; the tick is snapshot-only.
		o.mu.Unlock()
		return
	}

	last := decimal.NewFromFloat(lastPx)
	deviation := last.Sub(o.price).Div(last).Abs()
	threshold := decimal.NewFromFloat(o.cfg.DeviationThreshold)
	o.mu.Unlock()

	if deviation.GreaterThan(threshold) {
		o.logger.Info("Market price changed significantly",
			"last_px", last,
			"deviation", deviation)
		o.escalateToMid(ctx, "deviation")
	}
}

// escalateToMid moves the order to the market midpoint. It runs from either
// the mid-price timer or a deviation trigger; whichever fires first cancels
// the other path via the task claim. The market timer is armed here exactly
// once. When no valid midpoint is known the price modify is skipped but the
// market timer is still armed, so escalation timing does not depend on
// market-data availability.
func (o *Order) escalateToMid(ctx context.Context, trigger string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}

	o.midTask.Cancel()
	o.midTask = nil

	if o.marketTask == nil {
		o.marketTask = o.sched.Schedule(o.cfg.MarketDelay, func() {
			o.escalateToMarket(o.runCtx)
		})
	}

	midPx := o.midPx
	apply := o.hasMid && midPx.IsPositive()
	if apply {
		o.price = midPx
	}
	o.mu.Unlock()

	if !apply {
		o.logger.Warn("No valid midpoint known, price modify skipped", "trigger", trigger)
		return
	}

	o.logger.Info("Changing order price to midpoint", "mid_px", midPx, "trigger", trigger)
	if err := o.dispatcher.ModifyOrderPrice(ctx, o.id, midPx); err != nil {
		o.logger.Error("Failed to modify order price", "error", err)
	}
}

// escalateToMarket converts the order to a market order. Timer-driven only;
// the final escalation stage before closure.
func (o *Order) escalateToMarket(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.marketTask = nil
	o.price = decimal.Zero // market sentinel, disables further deviation checks
	o.mu.Unlock()

	o.logger.Info("Changing order type to market")
	if err := o.dispatcher.ModifyOrderType(ctx, o.id, core.OrderTypeMarket); err != nil {
		o.logger.Error("Failed to modify order type", "error", err)
	}
}

// Closed reports whether the order has closed
func (o *Order) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Price returns the order's current working price; zero means market
func (o *Order) Price() decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price
}

// MidPrice returns the cached midpoint and whether one is known
func (o *Order) MidPrice() (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.midPx, o.hasMid
}
