package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wave_trader/internal/core"
	"wave_trader/internal/mock"
)

func TestCoordinatorRunsUntilAllTargetsComplete(t *testing.T) {
	disp := mock.NewDispatcher()
	source := mock.NewEventSource()
	deps := newTestDepsWithConfig(t, disp, Config{
		MidPriceDelay:      time.Hour,
		MarketDelay:        time.Hour,
		DeviationThreshold: 0.01,
	})

	coordinator := NewCoordinator(source, Subscriptions{}, 1, nil, deps)

	done := make(chan error, 1)
	go func() {
		done <- coordinator.Run(context.Background())
	}()

	<-coordinator.Subscribed()

	// The feeds are consumed concurrently; short gaps keep the delivery
	// order deterministic for the assertion.
	source.TargetCh <- core.TargetEvent{
		Kind:     core.EventAdded,
		TargetID: 1,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(0)},
	}
	time.Sleep(20 * time.Millisecond)

	source.OrderCh <- core.OrderEvent{
		Kind:    core.EventAdded,
		OrderID: "o1",
		Fields: core.Fields{
			core.FieldTgtID:      core.Num(1),
			core.FieldInstrument: core.Str("MSFT"),
			core.FieldOrdPx:      core.Num(100),
			core.FieldLeaves:     core.Num(50),
		},
	}
	time.Sleep(20 * time.Millisecond)

	source.OrderCh <- core.OrderEvent{
		Kind:    core.EventUpdated,
		OrderID: "o1",
		Fields:  core.Fields{core.FieldLeaves: core.Num(0)},
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not finish after the last target completed")
	}

	assert.Equal(t, 1, coordinator.Registry().TargetCount())
	assert.Equal(t, 1, coordinator.Registry().OrderCount())
	assert.Empty(t, disp.Waves())
}

func TestCoordinatorStopsOnContextCancel(t *testing.T) {
	disp := mock.NewDispatcher()
	source := mock.NewEventSource()
	deps := newTestDepsWithConfig(t, disp, Config{
		MidPriceDelay:      time.Hour,
		MarketDelay:        time.Hour,
		DeviationThreshold: 0.01,
	})

	coordinator := NewCoordinator(source, Subscriptions{}, 1, nil, deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- coordinator.Run(ctx)
	}()

	<-coordinator.Subscribed()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop on cancellation")
	}
}

func TestCoordinatorSurvivesFeedClose(t *testing.T) {
	disp := mock.NewDispatcher()
	source := mock.NewEventSource()
	deps := newTestDepsWithConfig(t, disp, Config{
		MidPriceDelay:      time.Hour,
		MarketDelay:        time.Hour,
		DeviationThreshold: 0.01,
	})

	coordinator := NewCoordinator(source, Subscriptions{}, 1, nil, deps)

	done := make(chan error, 1)
	go func() {
		done <- coordinator.Run(context.Background())
	}()

	<-coordinator.Subscribed()

	// Losing the market-data feed degrades escalation quality but must not
	// end the run; target and order processing continues.
	close(source.MarketCh)

	source.TargetCh <- core.TargetEvent{
		Kind:     core.EventAdded,
		TargetID: 1,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(0)},
	}
	time.Sleep(20 * time.Millisecond)

	source.OrderCh <- core.OrderEvent{
		Kind:    core.EventAdded,
		OrderID: "o1",
		Fields: core.Fields{
			core.FieldTgtID:      core.Num(1),
			core.FieldInstrument: core.Str("MSFT"),
			core.FieldOrdPx:      core.Num(100),
			core.FieldLeaves:     core.Num(0),
		},
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not finish after the market feed closed")
	}
}
