// Package engine implements the target and order state machines that work a
// batch of trading targets against the execution venue: wave release
// accounting per target, and time- or market-data-driven price escalation
// per child order.
package engine

import (
	"time"

	"wave_trader/internal/alert"
	"wave_trader/internal/core"
	"wave_trader/pkg/scheduler"
)

// Config holds the escalation policy parameters
type Config struct {
	// MidPriceDelay is how long an order may rest at its limit price
	// before being repriced to the market midpoint.
	MidPriceDelay time.Duration

	// MarketDelay is how long an order may rest at the midpoint before
	// being converted to a market order.
	MarketDelay time.Duration

	// DeviationThreshold is the relative last-price deviation that
	// triggers early midpoint escalation.
	DeviationThreshold float64
}

// DefaultConfig mirrors the venue sample timings
func DefaultConfig() Config {
	return Config{
		MidPriceDelay:      2 * time.Second,
		MarketDelay:        3 * time.Second,
		DeviationThreshold: 0.01,
	}
}

// Deps bundles the collaborators injected into Target and Order instances
type Deps struct {
	Dispatcher core.Dispatcher
	Scheduler  *scheduler.Scheduler
	Alerts     *alert.Manager
	Logger     core.ILogger
	Config     Config
}
