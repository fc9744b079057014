package orderbookv1

import (
	"errors"
	"fmt"
)

var (
	// ErrNilOrder is returned when an operation receives a nil order.
	ErrNilOrder = errors.New("order cannot be nil")
	// ErrInvalidPrice is returned when a price fails validation.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrInvalidQuantity is returned when a quantity fails validation.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrWrongInstrument is returned when an order reaches a book for another instrument.
	ErrWrongInstrument = errors.New("order sent to wrong book")
)

// Side represents which side of the book an order sits on.
type Side string

const (
	// SideBuy represents a buy (bid) order.
	SideBuy Side = "BUY"
	// SideSell represents a sell (ask) order.
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType represents the time-in-force of an order.
type OrderType string

const (
	// OrderTypeMarket matches against best available liquidity and never rests.
	OrderTypeMarket OrderType = "MARKET"
	// OrderTypeGTC matches immediately then rests any residue.
	OrderTypeGTC OrderType = "GTC"
	// OrderTypeIOC matches immediately and cancels any residue.
	OrderTypeIOC OrderType = "IOC"
)

// Valid reports whether the order type is one of the known values.
func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeGTC || t == OrderTypeIOC
}

// Order represents a single order owned by one book.
// Only the owning book mutates FilledQuantity, RemainingQuantity and Cancelled.
type Order struct {
	OrderID           uint64    `json:"order_id"`
	InstrumentID      uint64    `json:"instrument_id"`
	Side              Side      `json:"side"`
	Type              OrderType `json:"order_type"`
	PriceCents        int64     `json:"price_cents"`
	Quantity          int64     `json:"quantity"`
	FilledQuantity    int64     `json:"filled_quantity"`
	RemainingQuantity int64     `json:"remaining_quantity"`
	Cancelled         bool      `json:"cancelled"`
	PartyID           string    `json:"party_id"`
	Timestamp         int64     `json:"timestamp"`
}

// Fill moves quantity from remaining to filled. Overfilling an order is a
// programming error and panics: the book must never continue with negative
// remaining quantity.
func (o *Order) Fill(quantity int64) {
	if quantity > o.RemainingQuantity {
		panic(fmt.Sprintf("overfill order %d: fill %d > remaining %d",
			o.OrderID, quantity, o.RemainingQuantity))
	}
	o.FilledQuantity += quantity
	o.RemainingQuantity -= quantity
}

// Cancel flags the order cancelled. It stays cancelled forever after.
func (o *Order) Cancel() {
	o.Cancelled = true
}

// IsLive reports whether the order still belongs in the book.
func (o *Order) IsLive() bool {
	return o.RemainingQuantity > 0 && !o.Cancelled
}

// Snapshot returns an immutable copy of the order's current state.
func (o *Order) Snapshot() Order {
	return *o
}
