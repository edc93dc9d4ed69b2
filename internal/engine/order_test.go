package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wave_trader/internal/alert"
	"wave_trader/internal/core"
	"wave_trader/internal/mock"
	"wave_trader/pkg/logging"
	"wave_trader/pkg/scheduler"
)

func newTestDepsWithConfig(t *testing.T, disp *mock.Dispatcher, cfg Config) Deps {
	t.Helper()
	sched := scheduler.New(logging.NewNop())
	t.Cleanup(sched.Stop)
	return Deps{
		Dispatcher: disp,
		Scheduler:  sched,
		Alerts:     alert.NewManager(logging.NewNop()),
		Logger:     logging.NewNop(),
		Config:     cfg,
	}
}

func newWorkingOrder(t *testing.T, disp *mock.Dispatcher, cfg Config, marketData core.Fields) (*Order, *Target) {
	t.Helper()
	deps := newTestDepsWithConfig(t, disp, cfg)
	var wg sync.WaitGroup
	wg.Add(1)
	target := NewTarget(1, core.Fields{core.FieldUnreleased: core.Num(1000)}, &wg, deps)

	order := NewOrder(context.Background(), "o1", "MSFT", target,
		core.Fields{
			core.FieldOrdPx:      core.Num(100),
			core.FieldTgtID:      core.Num(1),
			core.FieldInstrument: core.Str("MSFT"),
			core.FieldLeaves:     core.Num(100),
		}, marketData, deps)
	return order, target
}

func TestOrderEscalatesToMidThenMarket(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: 15 * time.Millisecond, MarketDelay: 15 * time.Millisecond, DeviationThreshold: 0.01}

	order, _ := newWorkingOrder(t, disp, cfg, core.Fields{core.FieldMidPx: core.Num(100.5)})

	require.Eventually(t, func() bool {
		return len(disp.PriceMods()) == 1
	}, time.Second, time.Millisecond)

	mods := disp.PriceMods()
	assert.Equal(t, "o1", mods[0].OrderID)
	assert.Equal(t, "100.5", mods[0].Price.String())

	require.Eventually(t, func() bool {
		return len(disp.TypeMods()) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, core.OrderTypeMarket, disp.TypeMods()[0].OrdType)
	assert.True(t, order.Price().IsZero())

	// No further escalation happens after market conversion.
	time.Sleep(40 * time.Millisecond)
	assert.Len(t, disp.PriceMods(), 1)
	assert.Len(t, disp.TypeMods(), 1)
}

func TestDeviationTriggersEarlyMidEscalation(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: time.Hour, MarketDelay: 15 * time.Millisecond, DeviationThreshold: 0.01}

	order, _ := newWorkingOrder(t, disp, cfg, nil)

	// |102 - 100| / 102 is just under 2 percent, above the threshold.
	order.OnMarketData(context.Background(), core.Fields{
		core.FieldMidPx:  core.Num(101),
		core.FieldLastPx: core.Num(102),
	})

	mods := disp.PriceMods()
	require.Len(t, mods, 1)
	assert.Equal(t, "101", mods[0].Price.String())

	require.Eventually(t, func() bool {
		return len(disp.TypeMods()) == 1
	}, time.Second, time.Millisecond)
}

func TestDeviationWithinThresholdKeepsLimitPrice(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: time.Hour, MarketDelay: time.Hour, DeviationThreshold: 0.01}

	order, _ := newWorkingOrder(t, disp, cfg, nil)

	order.OnMarketData(context.Background(), core.Fields{
		core.FieldMidPx:  core.Num(100.2),
		core.FieldLastPx: core.Num(100.5),
	})

	assert.Empty(t, disp.PriceMods())
	assert.Equal(t, "100", order.Price().String())
}

func TestTickWithoutLastPriceSkipsDeviationCheck(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: time.Hour, MarketDelay: time.Hour, DeviationThreshold: 0.01}

	order, _ := newWorkingOrder(t, disp, cfg, nil)

	order.OnMarketData(context.Background(), core.Fields{core.FieldMidPx: core.Num(150)})

	assert.Empty(t, disp.PriceMods())
	mid, ok := order.MidPrice()
	require.True(t, ok)
	assert.Equal(t, "150", mid.String())
}

func TestOrderCloseReleasesEscalationTimers(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: 25 * time.Millisecond, MarketDelay: 25 * time.Millisecond, DeviationThreshold: 0.01}

	order, target := newWorkingOrder(t, disp, cfg, core.Fields{core.FieldMidPx: core.Num(100.5)})

	order.OnUpdated(context.Background(), core.Fields{core.FieldLeaves: core.Num(0)})
	require.True(t, order.Closed())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, disp.PriceMods())
	assert.Empty(t, disp.TypeMods())

	// Closing the only order with quantity remaining requests the next wave.
	require.Len(t, disp.Waves(), 1)
	assert.Equal(t, "", target.OpenOrderID())
}

func TestOrderAlreadyFilledOnAdd(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: time.Hour, MarketDelay: time.Hour, DeviationThreshold: 0.01}
	deps := newTestDepsWithConfig(t, disp, cfg)
	var wg sync.WaitGroup
	wg.Add(1)
	target := NewTarget(1, core.Fields{core.FieldUnreleased: core.Num(500)}, &wg, deps)

	order := NewOrder(context.Background(), "o1", "MSFT", target,
		core.Fields{
			core.FieldOrdPx:  core.Num(100),
			core.FieldLeaves: core.Num(0),
		}, nil, deps)

	assert.True(t, order.Closed())
	require.Len(t, disp.Waves(), 1)
}

func TestDuplicateCloseNotifiesTargetOnce(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: time.Hour, MarketDelay: time.Hour, DeviationThreshold: 0.01}

	order, _ := newWorkingOrder(t, disp, cfg, nil)

	order.OnUpdated(context.Background(), core.Fields{core.FieldLeaves: core.Num(0)})
	order.OnUpdated(context.Background(), core.Fields{core.FieldLeaves: core.Num(0)})

	assert.Len(t, disp.Waves(), 1)
}

func TestUpdateWithoutLeavesIsInformational(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: time.Hour, MarketDelay: time.Hour, DeviationThreshold: 0.01}

	order, _ := newWorkingOrder(t, disp, cfg, nil)

	order.OnUpdated(context.Background(), core.Fields{core.FieldOrdPx: core.Num(99)})
	assert.False(t, order.Closed())
}

func TestEscalationWithoutMidpointStillReachesMarket(t *testing.T) {
	disp := mock.NewDispatcher()
	cfg := Config{MidPriceDelay: 10 * time.Millisecond, MarketDelay: 10 * time.Millisecond, DeviationThreshold: 0.01}

	newWorkingOrder(t, disp, cfg, nil)

	require.Eventually(t, func() bool {
		return len(disp.TypeMods()) == 1
	}, time.Second, time.Millisecond)

	// No midpoint was ever known, so the price modify never happened.
	assert.Empty(t, disp.PriceMods())
}
