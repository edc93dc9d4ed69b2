// Package venue implements the JSON-over-WebSocket session with the
// execution venue: request/response commands correlated by id, and the
// target, order and market-data event streams.
package venue

import (
	"encoding/json"

	"wave_trader/internal/core"
)

// Envelope frame types
const (
	TypeCommand  = "command"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Command methods
const (
	MethodLogin               = "login"
	MethodCreatePortfolio     = "createPortfolio"
	MethodAddTargets          = "addTargets"
	MethodModifyTargets       = "modifyTargets"
	MethodSendOrders          = "sendOrders"
	MethodModifyOrders        = "modifyOrders"
	MethodCancelOrders        = "cancelOrders"
	MethodPostAlert           = "postAlert"
	MethodSubscribeTargets    = "subscribeTargets"
	MethodSubscribeOrders     = "subscribeOrders"
	MethodSubscribeMarketData = "subscribeMarketData"
)

// Event stream names
const (
	StreamTargets    = "targets"
	StreamOrders     = "orders"
	StreamMarketData = "marketData"
)

// Event kinds on the wire
const (
	EventKindAdded   = "added"
	EventKindUpdated = "updated"
)

// Envelope is the single frame shape exchanged with the venue. Commands
// carry ID, Method and Params; responses echo the ID with either Result or
// Error; events carry Stream and Event.
type Envelope struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
	Stream string          `json:"stream,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// ErrorBody is the venue's structured rejection payload
type ErrorBody struct {
	Code           string   `json:"code"`
	ExceptionClass string   `json:"exceptionClass,omitempty"`
	ChildErrors    []string `json:"childErrors,omitempty"`
}

type LoginParams struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type CreatePortfolioParams struct {
	Name string `json:"name"`
}

type AddTargetsParams struct {
	Portfolio string        `json:"portfolio"`
	Targets   []core.Fields `json:"targets"`
}

type AddTargetsResult struct {
	TargetIDs []int64 `json:"targetIds"`
}

type ModifyTargetsParams struct {
	TargetIDs []int64     `json:"targetIds"`
	Fields    core.Fields `json:"fields"`
}

type SendOrdersParams struct {
	TargetIDs []int64 `json:"targetIds"`
}

type ModifyOrdersParams struct {
	OrderIDs []string    `json:"orderIds"`
	Fields   core.Fields `json:"fields"`
}

type CancelOrdersParams struct {
	OrderIDs []string `json:"orderIds"`
}

type PostAlertParams struct {
	User        string `json:"user"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Urgent      bool   `json:"urgent"`
}

type SubscribeParams struct {
	Filter      string   `json:"filter,omitempty"`
	Instruments []string `json:"instruments,omitempty"`
	Fields      []string `json:"fields,omitempty"`
}

// TargetEventBody is the payload on the targets stream
type TargetEventBody struct {
	Kind     string      `json:"kind"`
	TargetID int64       `json:"targetId"`
	Fields   core.Fields `json:"fields"`
}

// OrderEventBody is the payload on the orders stream
type OrderEventBody struct {
	Kind    string      `json:"kind"`
	OrderID string      `json:"orderId"`
	Fields  core.Fields `json:"fields"`
}

// MarketDataEventBody is the payload on the market-data stream
type MarketDataEventBody struct {
	Instrument string      `json:"instrument"`
	Fields     core.Fields `json:"fields"`
}
