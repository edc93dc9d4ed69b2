package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wave_trader/internal/core"
	"wave_trader/internal/mock"
)

func newTestRouter(t *testing.T, disp *mock.Dispatcher) (*Router, *Registry, *sync.WaitGroup) {
	t.Helper()
	deps := newTestDepsWithConfig(t, disp, Config{
		MidPriceDelay:      time.Hour,
		MarketDelay:        time.Hour,
		DeviationThreshold: 0.01,
	})
	registry := NewRegistry()
	var wg sync.WaitGroup
	return NewRouter(registry, deps, &wg, nil), registry, &wg
}

func TestRouterRegistersAddedTarget(t *testing.T) {
	router, registry, wg := newTestRouter(t, mock.NewDispatcher())
	wg.Add(1)

	router.HandleTargetEvent(context.Background(), core.TargetEvent{
		Kind:     core.EventAdded,
		TargetID: 42,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(300)},
	})

	target, ok := registry.Target(42)
	require.True(t, ok)
	assert.Equal(t, "300", target.Unreleased().String())
}

func TestRouterRoutesTargetUpdate(t *testing.T) {
	router, registry, wg := newTestRouter(t, mock.NewDispatcher())
	wg.Add(1)
	ctx := context.Background()

	router.HandleTargetEvent(ctx, core.TargetEvent{
		Kind:     core.EventAdded,
		TargetID: 42,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(300)},
	})
	router.HandleTargetEvent(ctx, core.TargetEvent{
		Kind:     core.EventUpdated,
		TargetID: 42,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(150)},
	})

	target, _ := registry.Target(42)
	assert.Equal(t, "150", target.Unreleased().String())
}

func TestRouterDropsUpdateForUnknownTarget(t *testing.T) {
	router, registry, _ := newTestRouter(t, mock.NewDispatcher())

	router.HandleTargetEvent(context.Background(), core.TargetEvent{
		Kind:     core.EventUpdated,
		TargetID: 99,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(10)},
	})

	assert.Equal(t, 0, registry.TargetCount())
}

func TestRouterDropsOrderForUnknownTarget(t *testing.T) {
	router, registry, _ := newTestRouter(t, mock.NewDispatcher())

	router.HandleOrderEvent(context.Background(), core.OrderEvent{
		Kind:    core.EventAdded,
		OrderID: "o1",
		Fields: core.Fields{
			core.FieldTgtID:      core.Num(99),
			core.FieldInstrument: core.Str("MSFT"),
		},
	})

	assert.Equal(t, 0, registry.OrderCount())
}

func TestRouterWiresOrderToTargetAndMarketSnapshot(t *testing.T) {
	router, registry, wg := newTestRouter(t, mock.NewDispatcher())
	wg.Add(1)
	ctx := context.Background()

	router.HandleTargetEvent(ctx, core.TargetEvent{
		Kind:     core.EventAdded,
		TargetID: 42,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(300)},
	})
	router.HandleMarketData(ctx, core.MarketDataEvent{
		Instrument: "MSFT",
		Fields:     core.Fields{core.FieldMidPx: core.Num(100.5)},
	})
	router.HandleOrderEvent(ctx, core.OrderEvent{
		Kind:    core.EventAdded,
		OrderID: "o1",
		Fields: core.Fields{
			core.FieldTgtID:      core.Num(42),
			core.FieldInstrument: core.Str("MSFT"),
			core.FieldOrdPx:      core.Num(100),
			core.FieldLeaves:     core.Num(50),
		},
	})

	order, ok := registry.Order("o1")
	require.True(t, ok)
	assert.Equal(t, "MSFT", order.Instrument())

	// The snapshot taken at add time seeds the order's midpoint.
	mid, hasMid := order.MidPrice()
	require.True(t, hasMid)
	assert.Equal(t, "100.5", mid.String())

	target, _ := registry.Target(42)
	assert.Equal(t, "o1", target.OpenOrderID())
}

func TestRouterFansOutMarketDataToOrders(t *testing.T) {
	disp := mock.NewDispatcher()
	router, _, wg := newTestRouter(t, disp)
	wg.Add(1)
	ctx := context.Background()

	router.HandleTargetEvent(ctx, core.TargetEvent{
		Kind:     core.EventAdded,
		TargetID: 42,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(300)},
	})
	router.HandleOrderEvent(ctx, core.OrderEvent{
		Kind:    core.EventAdded,
		OrderID: "o1",
		Fields: core.Fields{
			core.FieldTgtID:      core.Num(42),
			core.FieldInstrument: core.Str("MSFT"),
			core.FieldOrdPx:      core.Num(100),
			core.FieldLeaves:     core.Num(50),
		},
	})

	router.HandleMarketData(ctx, core.MarketDataEvent{
		Instrument: "MSFT",
		Fields: core.Fields{
			core.FieldMidPx:  core.Num(103),
			core.FieldLastPx: core.Num(104),
		},
	})

	mods := disp.PriceMods()
	require.Len(t, mods, 1)
	assert.Equal(t, "103", mods[0].Price.String())
}

func TestRouterRoutesOrderUpdate(t *testing.T) {
	disp := mock.NewDispatcher()
	router, registry, wg := newTestRouter(t, disp)
	wg.Add(1)
	ctx := context.Background()

	router.HandleTargetEvent(ctx, core.TargetEvent{
		Kind:     core.EventAdded,
		TargetID: 42,
		Fields:   core.Fields{core.FieldUnreleased: core.Num(300)},
	})
	router.HandleOrderEvent(ctx, core.OrderEvent{
		Kind:    core.EventAdded,
		OrderID: "o1",
		Fields: core.Fields{
			core.FieldTgtID:      core.Num(42),
			core.FieldInstrument: core.Str("MSFT"),
			core.FieldOrdPx:      core.Num(100),
			core.FieldLeaves:     core.Num(50),
		},
	})
	router.HandleOrderEvent(ctx, core.OrderEvent{
		Kind:    core.EventUpdated,
		OrderID: "o1",
		Fields:  core.Fields{core.FieldLeaves: core.Num(0)},
	})

	order, _ := registry.Order("o1")
	assert.True(t, order.Closed())
	require.Len(t, disp.Waves(), 1)
	assert.Equal(t, []int64{42}, disp.Waves()[0])
}
