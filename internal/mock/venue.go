// Package mock provides in-memory venue doubles for tests.
package mock

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"wave_trader/internal/core"
)

// PriceMod records one ModifyOrderPrice call
type PriceMod struct {
	OrderID string
	Price   decimal.Decimal
}

// TypeMod records one ModifyOrderType call
type TypeMod struct {
	OrderID string
	OrdType core.OrderType
}

// TargetMod records one ModifyTargets call
type TargetMod struct {
	TargetIDs []int64
	Fields    core.Fields
}

// Dispatcher is a recording core.Dispatcher. Every call is appended under a
// mutex; Err, when set, is returned by all methods.
type Dispatcher struct {
	mu sync.Mutex

	waves      [][]int64
	priceMods  []PriceMod
	typeMods   []TypeMod
	cancels    [][]string
	targetMods []TargetMod
	alerts     []core.Alert

	Err error
}

// NewDispatcher creates an empty recording dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) SendWave(ctx context.Context, targetIDs ...int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, len(targetIDs))
	copy(ids, targetIDs)
	d.waves = append(d.waves, ids)
	return d.Err
}

func (d *Dispatcher) ModifyOrderPrice(ctx context.Context, orderID string, price decimal.Decimal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.priceMods = append(d.priceMods, PriceMod{OrderID: orderID, Price: price})
	return d.Err
}

func (d *Dispatcher) ModifyOrderType(ctx context.Context, orderID string, ordType core.OrderType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typeMods = append(d.typeMods, TypeMod{OrderID: orderID, OrdType: ordType})
	return d.Err
}

func (d *Dispatcher) CancelOrders(ctx context.Context, orderIDs ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, len(orderIDs))
	copy(ids, orderIDs)
	d.cancels = append(d.cancels, ids)
	return d.Err
}

func (d *Dispatcher) ModifyTargets(ctx context.Context, targetIDs []int64, fields core.Fields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, len(targetIDs))
	copy(ids, targetIDs)
	d.targetMods = append(d.targetMods, TargetMod{TargetIDs: ids, Fields: fields})
	return d.Err
}

func (d *Dispatcher) PostAlert(ctx context.Context, alert core.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
	return d.Err
}

func (d *Dispatcher) Waves() [][]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]int64, len(d.waves))
	copy(out, d.waves)
	return out
}

func (d *Dispatcher) PriceMods() []PriceMod {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PriceMod, len(d.priceMods))
	copy(out, d.priceMods)
	return out
}

func (d *Dispatcher) TypeMods() []TypeMod {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TypeMod, len(d.typeMods))
	copy(out, d.typeMods)
	return out
}

func (d *Dispatcher) Cancels() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]string, len(d.cancels))
	copy(out, d.cancels)
	return out
}

func (d *Dispatcher) TargetMods() []TargetMod {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TargetMod, len(d.targetMods))
	copy(out, d.targetMods)
	return out
}

func (d *Dispatcher) Alerts() []core.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]core.Alert, len(d.alerts))
	copy(out, d.alerts)
	return out
}

// EventSource is a core.EventSource whose streams are fed by the test
type EventSource struct {
	TargetCh chan core.TargetEvent
	OrderCh  chan core.OrderEvent
	MarketCh chan core.MarketDataEvent
}

// NewEventSource creates buffered test streams
func NewEventSource() *EventSource {
	return &EventSource{
		TargetCh: make(chan core.TargetEvent, 64),
		OrderCh:  make(chan core.OrderEvent, 64),
		MarketCh: make(chan core.MarketDataEvent, 64),
	}
}

func (s *EventSource) SubscribeTargets(ctx context.Context, sub core.TargetSubscription) (<-chan core.TargetEvent, error) {
	return s.TargetCh, nil
}

func (s *EventSource) SubscribeOrders(ctx context.Context, sub core.OrderSubscription) (<-chan core.OrderEvent, error) {
	return s.OrderCh, nil
}

func (s *EventSource) SubscribeMarketData(ctx context.Context, sub core.MarketDataSubscription) (<-chan core.MarketDataEvent, error) {
	return s.MarketCh, nil
}
