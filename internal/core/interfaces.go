package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// Alert is a user notification posted to the venue
type Alert struct {
	User        string
	Type        string
	Description string
	Urgent      bool
}

// Dispatcher is the outbound command capability handed to the engine
// entities. Implementations deliver commands to the execution venue.
type Dispatcher interface {
	// SendWave releases the next wave of orders for the given targets
	SendWave(ctx context.Context, targetIDs ...int64) error

	// ModifyOrderPrice reprices an open order
	ModifyOrderPrice(ctx context.Context, orderID string, price decimal.Decimal) error

	// ModifyOrderType converts an open order to the given order type
	ModifyOrderType(ctx context.Context, orderID string, ordType OrderType) error

	// CancelOrders cancels open orders by id
	CancelOrders(ctx context.Context, orderIDs ...string) error

	// ModifyTargets applies the fields to the given targets
	ModifyTargets(ctx context.Context, targetIDs []int64, fields Fields) error

	// PostAlert posts a user notification
	PostAlert(ctx context.Context, alert Alert) error
}

// TargetSubscription selects the target events to receive
type TargetSubscription struct {
	Filter string
	Fields []string
}

// OrderSubscription selects the order events to receive
type OrderSubscription struct {
	Filter string
	Fields []string
}

// MarketDataSubscription selects the instruments and fields to receive
type MarketDataSubscription struct {
	Instruments []string
	Fields      []string
}

// EventSource provides the three independently-cancellable venue event
// streams. Each channel is closed when its stream ends, whether by context
// cancellation or a delivery error; streams are never resubscribed.
type EventSource interface {
	SubscribeTargets(ctx context.Context, sub TargetSubscription) (<-chan TargetEvent, error)
	SubscribeOrders(ctx context.Context, sub OrderSubscription) (<-chan OrderEvent, error)
	SubscribeMarketData(ctx context.Context, sub MarketDataSubscription) (<-chan MarketDataEvent, error)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
