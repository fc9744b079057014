package exchange

import (
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/errors"
)

// Status discriminates every result returned by the invocation surface.
type Status string

const (
	// StatusCreated reports a new order book.
	StatusCreated Status = "CREATED"
	// StatusAccepted reports a processed order submission.
	StatusAccepted Status = "ACCEPTED"
	// StatusCancelled reports a successful cancel.
	StatusCancelled Status = "CANCELLED"
	// StatusCancelledAll reports a completed cancel-all sweep.
	StatusCancelledAll Status = "CANCELLED_ALL"
	// StatusError reports a rejected operation; Code and Details say why.
	StatusError Status = "ERROR"
)

// NewOrderRequest is a request to submit an order.
type NewOrderRequest struct {
	InstrumentID uint64                `json:"instrument_id"`
	Side         orderbookv1.Side      `json:"side"`
	Type         orderbookv1.OrderType `json:"order_type"`
	PriceCents   int64                 `json:"price_cents"`
	Quantity     int64                 `json:"quantity"`
	PartyID      string                `json:"party_id"`
}

// NewOrderResult reports the outcome of a submission.
type NewOrderResult struct {
	Status            Status              `json:"status"`
	Code              errors.ErrorCode    `json:"code,omitempty"`
	Details           string              `json:"details,omitempty"`
	OrderID           uint64              `json:"order_id,omitempty"`
	RemainingQuantity int64               `json:"remaining_quantity"`
	Cancelled         bool                `json:"cancelled"`
	Trades            []orderbookv1.Trade `json:"trades"`
}

// CreateBookResult reports the outcome of creating an order book.
type CreateBookResult struct {
	Status       Status           `json:"status"`
	Code         errors.ErrorCode `json:"code,omitempty"`
	Details      string           `json:"details,omitempty"`
	InstrumentID uint64           `json:"instrument_id,omitempty"`
}

// CancelResult reports the outcome of a single cancel.
type CancelResult struct {
	Status  Status           `json:"status"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Details string           `json:"details,omitempty"`
	OrderID uint64           `json:"order_id,omitempty"`
}

// CancelAllResult reports the outcome of a cancel-all sweep.
type CancelAllResult struct {
	Status       Status           `json:"status"`
	Code         errors.ErrorCode `json:"code,omitempty"`
	Details      string           `json:"details,omitempty"`
	CancelledIDs []uint64         `json:"cancelled_ids"`
	FailedIDs    []uint64         `json:"failed_ids"`
}

// validate checks field-level constraints. It never touches the books and
// consumes no order id.
func (r *NewOrderRequest) validate() string {
	if !r.Side.Valid() {
		return "invalid side"
	}
	if !r.Type.Valid() {
		return "invalid order_type"
	}
	if r.Quantity <= 0 {
		return "quantity must be positive"
	}
	switch r.Type {
	case orderbookv1.OrderTypeMarket:
		if r.PriceCents != 0 {
			return "price_cents must not be set for MARKET"
		}
	default:
		if r.PriceCents <= 0 {
			return "price_cents required for GTC/IOC"
		}
	}
	return ""
}
