package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"wave_trader/internal/core"
	apperrors "wave_trader/pkg/errors"
	"wave_trader/pkg/telemetry"
)

// Config holds the venue session parameters
type Config struct {
	URL            string
	User           string
	Password       string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

type subscription[E any] struct {
	ch   chan E
	ctx  context.Context
	dead bool
}

// Client is a venue session over a single WebSocket connection. It
// implements both the outbound command surface (core.Dispatcher) and the
// inbound event streams (core.EventSource). Commands are correlated to
// responses by a generated id; there is no reconnection, a lost connection
// ends the session.
type Client struct {
	cfg    Config
	logger core.ILogger

	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Envelope

	streamsMu sync.Mutex
	targetSub *subscription[core.TargetEvent]
	orderSub  *subscription[core.OrderEvent]
	marketSub *subscription[core.MarketDataEvent]

	sessionMu sync.Mutex
	loggedIn  bool

	limiter *rate.Limiter
	done    chan struct{}
	wg      sync.WaitGroup

	tracer      trace.Tracer
	cmdCounter  metric.Int64Counter
	errCounter  metric.Int64Counter
	evtCounter  metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// Dial connects to the venue. Transient connect failures are retried with
// backoff; the read loop is running when Dial returns.
func Dial(ctx context.Context, cfg Config, logger core.ILogger) (*Client, error) {
	dialPolicy := retrypolicy.NewBuilder[*websocket.Conn]().
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	conn, err := failsafe.With[*websocket.Conn](dialPolicy).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[*websocket.Conn]) (*websocket.Conn, error) {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
			return c, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to venue at %s: %w", cfg.URL, err)
	}

	tracer := telemetry.GetTracer("venue-client")
	meter := telemetry.GetMeter("venue-client")

	cmdCounter, _ := meter.Int64Counter("venue_commands_total",
		metric.WithDescription("Total number of commands sent to the venue"))
	errCounter, _ := meter.Int64Counter("venue_command_errors_total",
		metric.WithDescription("Total number of venue command failures"))
	evtCounter, _ := meter.Int64Counter("venue_events_total",
		metric.WithDescription("Total number of events received from the venue"))
	latencyHist, _ := meter.Float64Histogram("venue_command_duration_seconds",
		metric.WithDescription("Venue command round-trip latency in seconds"))

	c := &Client{
		cfg:         cfg,
		logger:      logger.WithField("component", "venue_client"),
		conn:        conn,
		pending:     make(map[string]chan Envelope),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		done:        make(chan struct{}),
		tracer:      tracer,
		cmdCounter:  cmdCounter,
		errCounter:  errCounter,
		evtCounter:  evtCounter,
		latencyHist: latencyHist,
	}

	c.wg.Add(1)
	go c.readLoop()

	c.logger.Info("Connected to venue", "url", cfg.URL)
	return c, nil
}

// Close ends the session. Pending calls fail with ErrStreamClosed and all
// event channels close.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.Close()
	c.writeMu.Unlock()
	c.wg.Wait()
	return err
}

// Done is closed when the session ends, for whatever reason
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Login authenticates the session. Required before any other command.
func (c *Client) Login(ctx context.Context) error {
	err := c.call(ctx, MethodLogin, LoginParams{
		User:     c.cfg.User,
		Password: c.cfg.Password,
	}, nil)
	if err != nil {
		return err
	}

	c.sessionMu.Lock()
	c.loggedIn = true
	c.sessionMu.Unlock()

	c.logger.Info("Logged in", "user", c.cfg.User)
	return nil
}

// CreatePortfolio creates a named portfolio on the venue
func (c *Client) CreatePortfolio(ctx context.Context, name string) error {
	return c.call(ctx, MethodCreatePortfolio, CreatePortfolioParams{Name: name}, nil)
}

// AddTargets loads targets into a portfolio and returns the venue-assigned
// target ids, in the order the targets were given.
func (c *Client) AddTargets(ctx context.Context, portfolio string, targets []core.Fields) ([]int64, error) {
	var result AddTargetsResult
	if err := c.call(ctx, MethodAddTargets, AddTargetsParams{
		Portfolio: portfolio,
		Targets:   targets,
	}, &result); err != nil {
		return nil, err
	}
	if len(result.TargetIDs) != len(targets) {
		return nil, fmt.Errorf("venue returned %d target ids for %d targets",
			len(result.TargetIDs), len(targets))
	}
	return result.TargetIDs, nil
}

// ModifyTargets applies the fields to the given targets
func (c *Client) ModifyTargets(ctx context.Context, targetIDs []int64, fields core.Fields) error {
	return c.call(ctx, MethodModifyTargets, ModifyTargetsParams{
		TargetIDs: targetIDs,
		Fields:    fields,
	}, nil)
}

// SendWave releases the next wave of child orders for the given targets
func (c *Client) SendWave(ctx context.Context, targetIDs ...int64) error {
	return c.call(ctx, MethodSendOrders, SendOrdersParams{TargetIDs: targetIDs}, nil)
}

// ModifyOrderPrice reprices an open order
func (c *Client) ModifyOrderPrice(ctx context.Context, orderID string, price decimal.Decimal) error {
	px, _ := price.Float64()
	return c.call(ctx, MethodModifyOrders, ModifyOrdersParams{
		OrderIDs: []string{orderID},
		Fields:   core.Fields{core.FieldOrdPx: core.Num(px)},
	}, nil)
}

// ModifyOrderType converts an open order to the given order type
func (c *Client) ModifyOrderType(ctx context.Context, orderID string, ordType core.OrderType) error {
	return c.call(ctx, MethodModifyOrders, ModifyOrdersParams{
		OrderIDs: []string{orderID},
		Fields:   core.Fields{core.FieldOrdType: core.Str(string(ordType))},
	}, nil)
}

// CancelOrders cancels open orders by id
func (c *Client) CancelOrders(ctx context.Context, orderIDs ...string) error {
	return c.call(ctx, MethodCancelOrders, CancelOrdersParams{OrderIDs: orderIDs}, nil)
}

// PostAlert posts a user notification to the venue
func (c *Client) PostAlert(ctx context.Context, alert core.Alert) error {
	return c.call(ctx, MethodPostAlert, PostAlertParams{
		User:        alert.User,
		Type:        alert.Type,
		Description: alert.Description,
		Urgent:      alert.Urgent,
	}, nil)
}

// SubscribeTargets opens the target event stream
func (c *Client) SubscribeTargets(ctx context.Context, sub core.TargetSubscription) (<-chan core.TargetEvent, error) {
	s := &subscription[core.TargetEvent]{ch: make(chan core.TargetEvent, 256), ctx: ctx}
	c.streamsMu.Lock()
	c.targetSub = s
	c.streamsMu.Unlock()

	if err := c.call(ctx, MethodSubscribeTargets, SubscribeParams{
		Filter: sub.Filter,
		Fields: sub.Fields,
	}, nil); err != nil {
		c.streamsMu.Lock()
		c.targetSub = nil
		c.streamsMu.Unlock()
		return nil, err
	}
	return s.ch, nil
}

// SubscribeOrders opens the order event stream
func (c *Client) SubscribeOrders(ctx context.Context, sub core.OrderSubscription) (<-chan core.OrderEvent, error) {
	s := &subscription[core.OrderEvent]{ch: make(chan core.OrderEvent, 256), ctx: ctx}
	c.streamsMu.Lock()
	c.orderSub = s
	c.streamsMu.Unlock()

	if err := c.call(ctx, MethodSubscribeOrders, SubscribeParams{
		Filter: sub.Filter,
		Fields: sub.Fields,
	}, nil); err != nil {
		c.streamsMu.Lock()
		c.orderSub = nil
		c.streamsMu.Unlock()
		return nil, err
	}
	return s.ch, nil
}

// SubscribeMarketData opens the market-data stream
func (c *Client) SubscribeMarketData(ctx context.Context, sub core.MarketDataSubscription) (<-chan core.MarketDataEvent, error) {
	s := &subscription[core.MarketDataEvent]{ch: make(chan core.MarketDataEvent, 256), ctx: ctx}
	c.streamsMu.Lock()
	c.marketSub = s
	c.streamsMu.Unlock()

	if err := c.call(ctx, MethodSubscribeMarketData, SubscribeParams{
		Instruments: sub.Instruments,
		Fields:      sub.Fields,
	}, nil); err != nil {
		c.streamsMu.Lock()
		c.marketSub = nil
		c.streamsMu.Unlock()
		return nil, err
	}
	return s.ch, nil
}

// call sends one command and waits for its correlated response
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if method != MethodLogin && !c.isLoggedIn() {
		return apperrors.ErrLoginRequired
	}
	select {
	case <-c.done:
		return fmt.Errorf("%s: %w", method, apperrors.ErrNotConnected)
	default:
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrRateLimitExceeded, err)
	}

	ctx, span := c.tracer.Start(ctx, "venue."+method,
		trace.WithAttributes(attribute.String("venue.method", method)))
	defer span.End()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	id := uuid.NewString()
	respCh := make(chan Envelope, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	start := time.Now()
	c.cmdCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))

	c.writeMu.Lock()
	err = c.conn.WriteJSON(Envelope{
		Type:   TypeCommand,
		ID:     id,
		Method: method,
		Params: raw,
	})
	c.writeMu.Unlock()
	if err != nil {
		span.RecordError(err)
		c.errCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	timeout := time.NewTimer(c.cfg.RequestTimeout)
	defer timeout.Stop()

	var resp Envelope
	select {
	case resp = <-respCh:
	case <-timeout.C:
		c.errCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
		return fmt.Errorf("%s: %w", method, apperrors.ErrRequestTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: %w", method, apperrors.ErrStreamClosed)
	}

	c.latencyHist.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("method", method)))

	if resp.Error != nil {
		err := apperrors.NewRemoteError(resp.Error.Code, resp.Error.ExceptionClass, resp.Error.ChildErrors)
		span.RecordError(err)
		c.errCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("code", resp.Error.Code)))
		return err
	}

	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) isLoggedIn() bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.loggedIn
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.closeStreams()
	defer close(c.done)

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.logger.Warn("Venue connection closed", "error", err)
			return
		}

		switch env.Type {
		case TypeResponse:
			c.pendingMu.Lock()
			ch, ok := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.pendingMu.Unlock()
			if !ok {
				c.logger.Warn("Response for unknown request", "id", env.ID)
				continue
			}
			ch <- env
		case TypeEvent:
			c.evtCounter.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("stream", env.Stream)))
			c.dispatchEvent(env)
		default:
			c.logger.Warn("Unexpected frame from venue", "type", env.Type)
		}
	}
}

// dispatchEvent runs on the read goroutine; a slow stream consumer
// backpressures the whole session once the channel buffer fills.
func (c *Client) dispatchEvent(env Envelope) {
	switch env.Stream {
	case StreamTargets:
		var body TargetEventBody
		if err := json.Unmarshal(env.Event, &body); err != nil {
			c.logger.Error("Malformed target event", "error", err)
			return
		}
		c.streamsMu.Lock()
		s := c.targetSub
		c.streamsMu.Unlock()
		if s == nil || s.dead {
			return
		}
		select {
		case s.ch <- core.TargetEvent{
			Kind:     eventKind(body.Kind),
			TargetID: body.TargetID,
			Fields:   body.Fields,
		}:
		case <-s.ctx.Done():
			s.dead = true
			close(s.ch)
		}
	case StreamOrders:
		var body OrderEventBody
		if err := json.Unmarshal(env.Event, &body); err != nil {
			c.logger.Error("Malformed order event", "error", err)
			return
		}
		c.streamsMu.Lock()
		s := c.orderSub
		c.streamsMu.Unlock()
		if s == nil || s.dead {
			return
		}
		select {
		case s.ch <- core.OrderEvent{
			Kind:    eventKind(body.Kind),
			OrderID: body.OrderID,
			Fields:  body.Fields,
		}:
		case <-s.ctx.Done():
			s.dead = true
			close(s.ch)
		}
	case StreamMarketData:
		var body MarketDataEventBody
		if err := json.Unmarshal(env.Event, &body); err != nil {
			c.logger.Error("Malformed market data event", "error", err)
			return
		}
		c.streamsMu.Lock()
		s := c.marketSub
		c.streamsMu.Unlock()
		if s == nil || s.dead {
			return
		}
		select {
		case s.ch <- core.MarketDataEvent{
			Instrument: body.Instrument,
			Fields:     body.Fields,
		}:
		case <-s.ctx.Done():
			s.dead = true
			close(s.ch)
		}
	default:
		c.logger.Warn("Event on unknown stream", "stream", env.Stream)
	}
}

func (c *Client) closeStreams() {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	if c.targetSub != nil && !c.targetSub.dead {
		c.targetSub.dead = true
		close(c.targetSub.ch)
	}
	if c.orderSub != nil && !c.orderSub.dead {
		c.orderSub.dead = true
		close(c.orderSub.ch)
	}
	if c.marketSub != nil && !c.marketSub.dead {
		c.marketSub.dead = true
		close(c.marketSub.ch)
	}
}

func eventKind(kind string) core.EventKind {
	if kind == EventKindUpdated {
		return core.EventUpdated
	}
	return core.EventAdded
}
