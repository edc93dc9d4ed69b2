package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"wave_trader/internal/core"
	"wave_trader/pkg/concurrency"
)

// Subscriptions names the three event feeds a run consumes
type Subscriptions struct {
	Targets    core.TargetSubscription
	Orders     core.OrderSubscription
	MarketData core.MarketDataSubscription
}

// Coordinator drives one batch run: it subscribes the target, order and
// market-data feeds, routes every event through the shared registry, and
// returns once every expected target has completed.
type Coordinator struct {
	source     core.EventSource
	subs       Subscriptions
	registry   *Registry
	router     *Router
	completion sync.WaitGroup
	subscribed chan struct{}
	pool       *concurrency.WorkerPool
	deps       Deps
	logger     core.ILogger
}

// NewCoordinator creates a coordinator expecting expectedTargets completions.
// pool, when non-nil, absorbs market-data fan-out off the feed goroutine.
func NewCoordinator(source core.EventSource, subs Subscriptions, expectedTargets int, pool *concurrency.WorkerPool, deps Deps) *Coordinator {
	c := &Coordinator{
		source:     source,
		subs:       subs,
		registry:   NewRegistry(),
		subscribed: make(chan struct{}),
		pool:       pool,
		deps:       deps,
		logger:     deps.Logger.WithField("component", "coordinator"),
	}
	c.completion.Add(expectedTargets)
	c.router = NewRouter(c.registry, deps, &c.completion, pool)
	return c
}

// Registry exposes the run's registry, mainly for inspection in tests
func (c *Coordinator) Registry() *Registry { return c.registry }

// Subscribed is closed once all three feeds are established. Waiting on it
// before releasing the first wave guarantees no event is missed.
func (c *Coordinator) Subscribed() <-chan struct{} { return c.subscribed }

// Run consumes the three feeds until every expected target completes or the
// context is cancelled. A feed closing early is logged and the run continues
// on the remaining feeds; pending timers are released on both exit paths.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	defer c.deps.Scheduler.Stop()
	if c.pool != nil {
		defer c.pool.StopAndWait()
	}
	// Stop the feed consumers before draining the pool and scheduler.
	defer cancel()

	targetCh, err := c.source.SubscribeTargets(ctx, c.subs.Targets)
	if err != nil {
		return err
	}
	orderCh, err := c.source.SubscribeOrders(ctx, c.subs.Orders)
	if err != nil {
		return err
	}
	marketCh, err := c.source.SubscribeMarketData(ctx, c.subs.MarketData)
	if err != nil {
		return err
	}
	close(c.subscribed)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-targetCh:
				if !ok {
					c.logger.Warn("Target feed closed")
					return nil
				}
				c.router.HandleTargetEvent(gctx, ev)
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-orderCh:
				if !ok {
					c.logger.Warn("Order feed closed")
					return nil
				}
				c.router.HandleOrderEvent(gctx, ev)
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-marketCh:
				if !ok {
					c.logger.Warn("Market data feed closed")
					return nil
				}
				c.router.HandleMarketData(gctx, ev)
			}
		}
	})

	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("Feed consumer stopped", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		c.completion.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("All targets completed",
			"targets", c.registry.TargetCount(),
			"orders", c.registry.OrderCount())
		return nil
	case <-ctx.Done():
		c.logger.Warn("Run cancelled before all targets completed")
		return ctx.Err()
	}
}
