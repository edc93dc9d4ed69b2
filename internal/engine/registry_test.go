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

func TestRegistryLookups(t *testing.T) {
	disp := mock.NewDispatcher()
	deps := newTestDepsWithConfig(t, disp, Config{
		MidPriceDelay:      time.Hour,
		MarketDelay:        time.Hour,
		DeviationThreshold: 0.01,
	})
	registry := NewRegistry()
	var wg sync.WaitGroup
	wg.Add(1)

	_, missing := registry.Target(1)
	assert.False(t, missing)

	target := NewTarget(1, core.Fields{core.FieldUnreleased: core.Num(100)}, &wg, deps)
	registry.AddTarget(target)

	got, ok := registry.Target(1)
	require.True(t, ok)
	assert.Same(t, target, got)
	assert.Equal(t, 1, registry.TargetCount())
}

func TestRegistryIndexesOrdersByInstrument(t *testing.T) {
	disp := mock.NewDispatcher()
	deps := newTestDepsWithConfig(t, disp, Config{
		MidPriceDelay:      time.Hour,
		MarketDelay:        time.Hour,
		DeviationThreshold: 0.01,
	})
	registry := NewRegistry()
	var wg sync.WaitGroup
	wg.Add(2)

	t1 := NewTarget(1, core.Fields{core.FieldUnreleased: core.Num(100)}, &wg, deps)
	t2 := NewTarget(2, core.Fields{core.FieldUnreleased: core.Num(100)}, &wg, deps)

	ctx := context.Background()
	o1 := NewOrder(ctx, "o1", "MSFT", t1, core.Fields{core.FieldOrdPx: core.Num(10), core.FieldLeaves: core.Num(5)}, nil, deps)
	o2 := NewOrder(ctx, "o2", "MSFT", t2, core.Fields{core.FieldOrdPx: core.Num(10), core.FieldLeaves: core.Num(5)}, nil, deps)
	registry.AddOrder(o1)
	registry.AddOrder(o2)

	orders := registry.OrdersForInstrument("MSFT")
	assert.Len(t, orders, 2)
	assert.Empty(t, registry.OrdersForInstrument("AAPL"))
	assert.Equal(t, 2, registry.OrderCount())
}

func TestRegistryMarketDataSnapshot(t *testing.T) {
	registry := NewRegistry()

	_, ok := registry.MarketData("MSFT")
	assert.False(t, ok)

	registry.SetMarketData("MSFT", core.Fields{core.FieldMidPx: core.Num(101)})
	fields, ok := registry.MarketData("MSFT")
	require.True(t, ok)
	mid, _ := fields.Number(core.FieldMidPx)
	assert.Equal(t, 101.0, mid)
}
