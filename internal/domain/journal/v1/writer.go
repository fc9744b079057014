package journalv1

import (
	"context"
	"encoding/json"

	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
)

// EventKind tags an event emitted through a Writer.
type EventKind string

const (
	// EventKindOrder is a full order snapshot append.
	EventKindOrder EventKind = "ORDER"
	// EventKindTrade is a trade append.
	EventKindTrade EventKind = "TRADE"
	// EventKindCancel is a cancel record.
	EventKindCancel EventKind = "CANCEL"
	// EventKindUpsertLive projects the open state of an order.
	EventKindUpsertLive EventKind = "UPS_LIVE"
	// EventKindRemoveLive removes an order from the open-order projection.
	EventKindRemoveLive EventKind = "REM_LIVE"
	// EventKindUpdateLive patches quantities on the open-order projection.
	EventKindUpdateLive EventKind = "UPDATE_LIVE"
)

// InstrumentRecord holds instrument metadata. Created exactly once, never mutated.
type InstrumentRecord struct {
	InstrumentID uint64 `json:"instrument_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	CreatedTime  int64  `json:"created_time"`
	CreatedBy    string `json:"created_by"`
}

// CancelEvent records that an open order was cancelled.
type CancelEvent struct {
	InstrumentID uint64 `json:"instrument_id"`
	OrderID      uint64 `json:"order_id"`
	PartyID      string `json:"party_id"`
	Timestamp    int64  `json:"timestamp"`
}

// QuantityUpdate patches the open-order projection after a partial fill.
type QuantityUpdate struct {
	InstrumentID uint64 `json:"instrument_id"`
	OrderID      uint64 `json:"order_id"`
	Filled       int64  `json:"filled_quantity"`
	Remaining    int64  `json:"remaining_quantity"`
}

// LiveOrderRef identifies an entry in the open-order projection.
type LiveOrderRef struct {
	InstrumentID uint64 `json:"instrument_id"`
	OrderID      uint64 `json:"order_id"`
}

// Envelope is the self-describing broadcast payload: subscribers need no
// prior state to decode one.
type Envelope struct {
	EventID      string          `json:"event_id"`
	Kind         EventKind       `json:"kind"`
	InstrumentID uint64          `json:"instrument_id"`
	Body         json.RawMessage `json:"body"`
}

// Writer fans durable events out of the matching engine.
//
// Hot-path methods (everything except CreateInstrument, IterOrders,
// ListInstruments and Close) are called inside a book's critical section and
// must not block: queue-backed implementations enqueue and return.
// CreateInstrument is called outside any book lock and may commit
// synchronously. For a single submit the events must
// reach every writer in order: taker order snapshot, trades in execution
// order, maker projection updates, then the resting residue upsert.
type Writer interface {
	// CreateInstrument persists instrument metadata and prepares the
	// per-instrument streams. Durable implementations commit before returning.
	CreateInstrument(record InstrumentRecord) error

	// RecordOrder appends a full order state snapshot, keyed by order id.
	RecordOrder(order orderbookv1.Order) error

	// RecordTrade appends a trade to the instrument's trade journal.
	RecordTrade(trade orderbookv1.Trade) error

	// RecordCancel records a cancel event.
	RecordCancel(cancel CancelEvent) error

	// UpsertLiveOrder projects the current open state of an order.
	UpsertLiveOrder(order orderbookv1.Order) error

	// RemoveLiveOrder drops an order from the open-order projection.
	RemoveLiveOrder(ref LiveOrderRef) error

	// UpdateOrderQuantity patches quantities on the open-order projection.
	UpdateOrderQuantity(update QuantityUpdate) error

	// IterOrders streams the full order journal ascending by order id.
	// Rebuild only; reads durable state synchronously.
	IterOrders(ctx context.Context, instrumentID uint64, fn func(orderbookv1.Order) error) error

	// ListInstruments returns every known instrument record. Rebuild only.
	ListInstruments(ctx context.Context) ([]InstrumentRecord, error)

	// Close drains pending events and releases resources.
	Close(ctx context.Context) error
}
