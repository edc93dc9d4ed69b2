package core

// EventKind distinguishes added and updated lifecycle events
type EventKind int

const (
	EventAdded EventKind = iota
	EventUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// TargetEvent is a target lifecycle event from the venue
type TargetEvent struct {
	Kind     EventKind
	TargetID int64
	Fields   Fields
}

// OrderEvent is an order lifecycle event from the venue. The owning target
// id and instrument travel inside the field bag.
type OrderEvent struct {
	Kind    EventKind
	OrderID string
	Fields  Fields
}

// MarketDataEvent is a per-instrument market data update
type MarketDataEvent struct {
	Instrument string
	Fields     Fields
}
