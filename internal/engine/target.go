package engine

import (
	"context"
	"fmt"
	"sync"

	"wave_trader/internal/alert"
	"wave_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Target is the per-parent-target state machine. It tracks the quantity not
// yet released to the venue, holds at most one open child order at a time,
// and counts down the run completion latch when fully done.
//
// State transitions: Active -> Stopped (one way, via a STOP text update) and
// Active/Stopped -> Completed (via the last order closing with nothing left
// to release). Completed is terminal.
type Target struct {
	mu sync.Mutex

	id          int64
	unreleased  decimal.Decimal
	stopped     bool
	completed   bool
	openOrderID string

	dispatcher core.Dispatcher
	alerts     *alert.Manager
	completion *sync.WaitGroup
	logger     core.ILogger
}

// NewTarget constructs a Target from a "target added" event. The unreleased
// quantity is read from the Unreleased field, defaulting to 0.
func NewTarget(id int64, fields core.Fields, completion *sync.WaitGroup, deps Deps) *Target {
	return &Target{
		id:         id,
		unreleased: decimal.NewFromFloat(fields.NumberOr(core.FieldUnreleased, 0)),
		dispatcher: deps.Dispatcher,
		alerts:     deps.Alerts,
		completion: completion,
		logger:     deps.Logger.WithField("component", "target").WithField("target_id", id),
	}
}

// ID returns the target id
func (t *Target) ID() int64 { return t.id }

// OnUpdated applies a "target updated" event. While not stopped, the
// unreleased quantity is refreshed from the Unreleased field, keeping the
// previous value when the field is absent. A Text field equal to "STOP"
// stops the target: unreleased is clamped to 0 and the open order, if any,
// is cancelled.
func (t *Target) OnUpdated(ctx context.Context, fields core.Fields) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		t.logger.Debug("Ignoring update for completed target")
		return
	}

	if !t.stopped {
		if v, ok := fields.Number(core.FieldUnreleased); ok {
			t.unreleased = decimal.NewFromFloat(v)
		}
	}

	if fields.StringOr(core.FieldText, "") == core.TextStop {
		t.stop(ctx)
	}
}

// stop transitions to Stopped. Caller holds t.mu.
func (t *Target) stop(ctx context.Context) {
	t.stopped = true // unreleased is frozen from here on
	t.unreleased = decimal.Zero

	if t.openOrderID == "" {
		t.logger.Warn("Cannot stop target, it has no open orders")
		return
	}

	t.logger.Info("Stopping target", "order_id", t.openOrderID)
	if err := t.dispatcher.CancelOrders(ctx, t.openOrderID); err != nil {
		t.logger.Error("Failed to cancel order for stopped target",
			"order_id", t.openOrderID,
			"error", err)
	}
}

// OnOrderAdded records an order as the target's open order. A second add
// while one is already open is a logged anomaly and the new id wins. An
// order added to an already-stopped target is cancelled immediately.
func (t *Target) OnOrderAdded(ctx context.Context, orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		t.logger.Warn("Order added to completed target", "order_id", orderID)
		return
	}

	if t.openOrderID != "" {
		t.logger.Warn("Target already has an open order",
			"open_order_id", t.openOrderID,
			"order_id", orderID)
	}
	t.openOrderID = orderID

	if t.stopped {
		t.logger.Warn("New order added to already stopped target, canceling",
			"order_id", orderID)
		if err := t.dispatcher.CancelOrders(ctx, orderID); err != nil {
			t.logger.Error("Failed to cancel order on stopped target",
				"order_id", orderID,
				"error", err)
		}
	}
}

// OnOrderClosed reacts to the open order closing. With quantity left to
// release it requests the next wave; otherwise the target completes. A close
// for a mismatched or unknown order id is a logged anomaly.
func (t *Target) OnOrderClosed(ctx context.Context, orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		t.logger.Debug("Ignoring order close for completed target", "order_id", orderID)
		return
	}

	switch {
	case t.openOrderID != "" && orderID == t.openOrderID:
		t.openOrderID = ""
		if t.unreleased.IsPositive() {
			t.logger.Info("Sending next wave", "unreleased", t.unreleased)
			if err := t.dispatcher.SendWave(ctx, t.id); err != nil {
				t.logger.Error("Failed to send next wave", "error", err)
			}
		} else {
			t.complete(ctx)
		}
	case t.openOrderID != "":
		t.logger.Warn("Target has another open order",
			"open_order_id", t.openOrderID,
			"order_id", orderID)
	default:
		t.logger.Warn("Target has no open order", "order_id", orderID)
	}
}

// complete transitions to the terminal Completed state. Caller holds t.mu.
// The completion alert is delivered synchronously before the latch counts
// down: the run may tear the session down the moment the last target
// completes, and an in-flight notification would be lost.
func (t *Target) complete(ctx context.Context) {
	t.completed = true
	t.logger.Info("Target is completed")

	t.alerts.AlertSync(ctx,
		"Target completed",
		fmt.Sprintf("Target %d is completed", t.id),
		alert.Info,
		map[string]string{"target_id": fmt.Sprintf("%d", t.id)})

	t.completion.Done()
}

// Unreleased returns the quantity not yet released to the venue
func (t *Target) Unreleased() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unreleased
}

// Stopped reports whether the target has been stopped
func (t *Target) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Completed reports whether the target has completed
func (t *Target) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// OpenOrderID returns the currently open order id, if any
func (t *Target) OpenOrderID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openOrderID
}
