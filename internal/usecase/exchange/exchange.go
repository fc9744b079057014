package exchange

import (
	"context"
	"sync"
	"time"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/internal/usecase/orderbook"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
	"github.com/akareen/RedleafExchange/pkg/sequence"
)

// Exchange owns the set of order books keyed by instrument id, the monotonic
// order-id sequencer and the composite writer. All mutating calls against one
// book are serialized under that book's mutex; writer events are emitted
// inside the critical section so event groups from concurrent submissions
// never interleave.
type Exchange struct {
	mu    sync.RWMutex
	books map[uint64]*bookHandle

	seq    *sequence.Sequencer
	writer journalv1.Writer
	log    *logger.Logger
}

// bookHandle pairs a book with the mutex that serializes access to it.
type bookHandle struct {
	mu   sync.Mutex
	book *orderbook.OrderBook
}

// New creates an exchange over the given composite writer. Call Rebuild
// before serving requests.
func New(writer journalv1.Writer, log *logger.Logger) *Exchange {
	return &Exchange{
		books:  make(map[uint64]*bookHandle),
		seq:    sequence.New(1),
		writer: writer,
		log:    log,
	}
}

// NextOrderID returns the id the next accepted order will receive.
func (e *Exchange) NextOrderID() uint64 {
	return e.seq.Current()
}

// CreateBook registers a new instrument with an empty book and persists its
// record. The instrument write is committed before success is returned.
func (e *Exchange) CreateBook(ctx context.Context, instrumentID uint64, name, description, adminPartyID string) CreateBookResult {
	e.mu.Lock()
	if _, exists := e.books[instrumentID]; exists {
		e.mu.Unlock()
		return CreateBookResult{
			Status:  StatusError,
			Code:    errors.InstrumentExistsError,
			Details: "instrument already exists",
		}
	}
	e.books[instrumentID] = &bookHandle{book: orderbook.NewOrderBook(instrumentID, e.log)}
	e.mu.Unlock()

	record := journalv1.InstrumentRecord{
		InstrumentID: instrumentID,
		Name:         name,
		Description:  description,
		CreatedTime:  time.Now().UnixNano(),
		CreatedBy:    adminPartyID,
	}
	if err := e.writer.CreateInstrument(record); err != nil {
		e.mu.Lock()
		delete(e.books, instrumentID)
		e.mu.Unlock()
		e.log.ErrorContext(ctx, errors.Wrap(err, "persist instrument failed"),
			logger.Field{Key: "instrument_id", Value: instrumentID},
		)
		return CreateBookResult{
			Status:  StatusError,
			Code:    errors.GeneralInternalServerError,
			Details: "could not persist instrument",
		}
	}

	e.log.InfoContext(ctx, "book created",
		logger.Field{Key: "instrument_id", Value: instrumentID},
		logger.Field{Key: "name", Value: name},
	)
	return CreateBookResult{Status: StatusCreated, InstrumentID: instrumentID}
}

// SubmitOrder validates the request, allocates an order id, matches the
// order and fans the resulting events out through the composite writer.
// A rejected request mutates nothing and consumes no id.
func (e *Exchange) SubmitOrder(ctx context.Context, req NewOrderRequest) NewOrderResult {
	if details := req.validate(); details != "" {
		e.log.WarnContext(ctx, "submit rejected",
			logger.Field{Key: "instrument_id", Value: req.InstrumentID},
			logger.Field{Key: "details", Value: details},
		)
		return NewOrderResult{Status: StatusError, Code: errors.InvalidRequestError, Details: details}
	}

	handle, ok := e.handle(req.InstrumentID)
	if !ok {
		return NewOrderResult{Status: StatusError, Code: errors.UnknownInstrumentError, Details: "unknown instrument"}
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()

	order := &orderbookv1.Order{
		OrderID:           e.seq.Next(),
		InstrumentID:      req.InstrumentID,
		Side:              req.Side,
		Type:              req.Type,
		PriceCents:        req.PriceCents,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		PartyID:           req.PartyID,
		Timestamp:         time.Now().UnixNano(),
	}

	trades, err := handle.book.Submit(order)
	if err != nil {
		e.log.ErrorContext(ctx, errors.Wrap(err, "order submit failed"),
			logger.Field{Key: "order_id", Value: order.OrderID},
		)
		return NewOrderResult{Status: StatusError, Code: errors.GeneralInternalServerError, Details: err.Error()}
	}

	e.emitSubmitEvents(order, trades, handle.book)

	e.log.InfoContext(ctx, "order accepted",
		logger.Field{Key: "order_id", Value: order.OrderID},
		logger.Field{Key: "remaining", Value: order.RemainingQuantity},
		logger.Field{Key: "trades", Value: len(trades)},
	)
	return NewOrderResult{
		Status:            StatusAccepted,
		OrderID:           order.OrderID,
		RemainingQuantity: order.RemainingQuantity,
		Cancelled:         order.Cancelled,
		Trades:            trades,
	}
}

// emitSubmitEvents fans out one submission's events in the contract order:
// taker snapshot, trades, maker projection updates, resting residue upsert.
// Called with the book's mutex held.
func (e *Exchange) emitSubmitEvents(order *orderbookv1.Order, trades []orderbookv1.Trade, book *orderbook.OrderBook) {
	e.emit(e.writer.RecordOrder(order.Snapshot()))
	for _, trade := range trades {
		e.emit(e.writer.RecordTrade(trade))
	}
	for _, trade := range trades {
		if trade.MakerIsFilled() {
			e.emit(e.writer.RemoveLiveOrder(journalv1.LiveOrderRef{
				InstrumentID: trade.InstrumentID,
				OrderID:      trade.MakerOrderID,
			}))
			continue
		}
		if maker, ok := book.LiveOrder(trade.MakerOrderID); ok {
			e.emit(e.writer.UpdateOrderQuantity(journalv1.QuantityUpdate{
				InstrumentID: maker.InstrumentID,
				OrderID:      maker.OrderID,
				Filled:       maker.FilledQuantity,
				Remaining:    maker.RemainingQuantity,
			}))
		}
	}
	if order.IsLive() {
		e.emit(e.writer.UpsertLiveOrder(order.Snapshot()))
	}
}

// CancelOrder cancels an open order owned by partyID. An unknown, filled,
// cancelled or foreign order reports not-open.
func (e *Exchange) CancelOrder(ctx context.Context, instrumentID, orderID uint64, partyID string) CancelResult {
	handle, ok := e.handle(instrumentID)
	if !ok {
		return CancelResult{Status: StatusError, Code: errors.UnknownInstrumentError, Details: "unknown instrument"}
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()

	snapshot, open := handle.book.LiveOrder(orderID)
	if !open || !handle.book.CancelForParty(orderID, partyID) {
		e.log.DebugContext(ctx, "cancel miss",
			logger.Field{Key: "order_id", Value: orderID},
		)
		return CancelResult{Status: StatusError, Code: errors.OrderNotOpenError, Details: "order not open"}
	}

	snapshot.Cancel()
	e.emit(e.writer.RecordCancel(journalv1.CancelEvent{
		InstrumentID: instrumentID,
		OrderID:      orderID,
		PartyID:      partyID,
		Timestamp:    time.Now().UnixNano(),
	}))
	e.emit(e.writer.RemoveLiveOrder(journalv1.LiveOrderRef{InstrumentID: instrumentID, OrderID: orderID}))
	// Amend the journal with the cancelled snapshot.
	e.emit(e.writer.RecordOrder(snapshot))

	e.log.InfoContext(ctx, "order cancelled",
		logger.Field{Key: "order_id", Value: orderID},
	)
	return CancelResult{Status: StatusCancelled, OrderID: orderID}
}

// CancelAllForParty cancels every open order the party holds on the
// instrument. The candidate set is snapshotted first; orders filled or
// cancelled between snapshot and sweep land in FailedIDs.
func (e *Exchange) CancelAllForParty(ctx context.Context, instrumentID uint64, partyID string) CancelAllResult {
	handle, ok := e.handle(instrumentID)
	if !ok {
		return CancelAllResult{Status: StatusError, Code: errors.UnknownInstrumentError, Details: "unknown instrument"}
	}

	handle.mu.Lock()
	ids := handle.book.OpenOrderIDsForParty(partyID)
	handle.mu.Unlock()

	return e.cancelAll(ctx, instrumentID, partyID, ids)
}

// cancelAll sweeps a candidate id list through CancelOrder, collecting
// successes and failures.
func (e *Exchange) cancelAll(ctx context.Context, instrumentID uint64, partyID string, ids []uint64) CancelAllResult {
	result := CancelAllResult{
		Status:       StatusCancelledAll,
		CancelledIDs: make([]uint64, 0, len(ids)),
		FailedIDs:    make([]uint64, 0),
	}
	for _, id := range ids {
		if e.CancelOrder(ctx, instrumentID, id, partyID).Status == StatusCancelled {
			result.CancelledIDs = append(result.CancelledIDs, id)
		} else {
			result.FailedIDs = append(result.FailedIDs, id)
		}
	}
	return result
}

// BestBid returns the instrument's best bid price.
func (e *Exchange) BestBid(instrumentID uint64) (int64, bool) {
	handle, ok := e.handle(instrumentID)
	if !ok {
		return 0, false
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.book.BestBid()
}

// BestAsk returns the instrument's best ask price.
func (e *Exchange) BestAsk(instrumentID uint64) (int64, bool) {
	handle, ok := e.handle(instrumentID)
	if !ok {
		return 0, false
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.book.BestAsk()
}

// LiveOrders returns snapshots of the instrument's resting orders,
// ascending by order id.
func (e *Exchange) LiveOrders(instrumentID uint64) []orderbookv1.Order {
	handle, ok := e.handle(instrumentID)
	if !ok {
		return nil
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.book.LiveOrders()
}

// Rebuild reconstructs every book from the primary writer's order journal.
// It runs once at startup, before any request is accepted, and emits no
// writer events. counterFloor is the durable counter high-water mark (zero
// when none); the sequencer resumes past both it and every observed id, so
// replay can never reissue a live id. Idempotent.
func (e *Exchange) Rebuild(ctx context.Context, counterFloor uint64) error {
	records, err := e.writer.ListInstruments(ctx)
	if err != nil {
		return errors.Wrap(err, "rebuild: list instruments")
	}

	next := counterFloor
	if next == 0 {
		next = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.books = make(map[uint64]*bookHandle, len(records))

	for _, record := range records {
		book := orderbook.NewOrderBook(record.InstrumentID, e.log)
		e.books[record.InstrumentID] = &bookHandle{book: book}

		count := 0
		err := e.writer.IterOrders(ctx, record.InstrumentID, func(snapshot orderbookv1.Order) error {
			if snapshot.OrderID >= next {
				next = snapshot.OrderID + 1
			}
			if snapshot.Cancelled || snapshot.RemainingQuantity == 0 {
				return nil
			}
			order := snapshot
			book.Rest(&order)
			count++
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "rebuild: iterate orders")
		}
		e.log.Info("book rebuilt",
			logger.Field{Key: "instrument_id", Value: record.InstrumentID},
			logger.Field{Key: "live_orders", Value: count},
		)
	}

	e.seq.Reset(next)
	e.log.Info("rebuild complete",
		logger.Field{Key: "instruments", Value: len(records)},
		logger.Field{Key: "next_order_id", Value: next},
	)
	return nil
}

func (e *Exchange) handle(instrumentID uint64) (*bookHandle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.books[instrumentID]
	return h, ok
}

// emit logs a rejected hot-path enqueue; the matching path never fails on
// writer errors.
func (e *Exchange) emit(err error) {
	if err != nil {
		e.log.Error(errors.Wrap(err, "writer event rejected"))
	}
}
