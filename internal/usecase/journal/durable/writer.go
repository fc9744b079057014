package durable

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

// Store is the durable state surface the writer applies mutations to.
type Store interface {
	PutInstrument(record journalv1.InstrumentRecord) error
	PutOrder(order orderbookv1.Order) error
	AppendTrade(trade orderbookv1.Trade, seq uint64) error
	PutLiveOrder(order orderbookv1.Order) error
	DeleteLiveOrder(instrumentID, orderID uint64) error
	UpdateLiveOrderQuantity(update journalv1.QuantityUpdate) error
	MarkOrderFilled(instrumentID, orderID uint64) error
	IterOrders(ctx context.Context, instrumentID uint64, fn func(orderbookv1.Order) error) error
	ListInstruments(ctx context.Context) ([]journalv1.InstrumentRecord, error)
}

// event is one tagged queue entry. Exactly one payload field is meaningful
// for a given kind.
type event struct {
	kind   journalv1.EventKind
	order  orderbookv1.Order
	trade  orderbookv1.Trade
	cancel journalv1.CancelEvent
	update journalv1.QuantityUpdate
	ref    journalv1.LiveOrderRef
	seq    uint64
}

// Writer is the queued durable writer: hot-path calls enqueue a tagged event
// and return immediately; a single background consumer drains the queue and
// applies mutations to the store strictly in enqueue order. Rebuild reads
// bypass the queue. Close drains synchronously.
type Writer struct {
	store Store
	log   *logger.Logger

	queue chan event

	mu     sync.RWMutex
	closed bool

	maxRetries int
	healthy    atomic.Bool
	tradeSeq   atomic.Uint64

	consumerDone chan struct{}
}

// Options tunes the writer.
type Options struct {
	QueueCapacity int
	MaxRetries    int
}

// DefaultOptions returns the default writer options.
func DefaultOptions() Options {
	return Options{
		QueueCapacity: 65536,
		MaxRetries:    3,
	}
}

// NewWriter starts the background consumer and returns the writer.
func NewWriter(store Store, log *logger.Logger, opts Options) *Writer {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultOptions().QueueCapacity
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	w := &Writer{
		store:        store,
		log:          log,
		queue:        make(chan event, opts.QueueCapacity),
		maxRetries:   opts.MaxRetries,
		consumerDone: make(chan struct{}),
	}
	w.healthy.Store(true)
	go w.consume()
	return w
}

// Healthy reports whether every event so far reached durable storage. It
// flips false when a poison event is dropped; matching continues regardless.
func (w *Writer) Healthy() bool {
	return w.healthy.Load()
}

// CreateInstrument commits the instrument record before returning. The
// per-instrument streams need no preparation: the store keyspace is created
// implicitly on first append.
func (w *Writer) CreateInstrument(record journalv1.InstrumentRecord) error {
	return w.store.PutInstrument(record)
}

// RecordOrder enqueues a full order snapshot append.
func (w *Writer) RecordOrder(order orderbookv1.Order) error {
	return w.enqueue(event{kind: journalv1.EventKindOrder, order: order})
}

// RecordTrade enqueues a trade append.
func (w *Writer) RecordTrade(trade orderbookv1.Trade) error {
	return w.enqueue(event{
		kind:  journalv1.EventKindTrade,
		trade: trade,
		seq:   w.tradeSeq.Add(1),
	})
}

// RecordCancel enqueues a cancel. The durable effect is dropping the order
// from the live projection; the journal amendment arrives as its own
// RecordOrder from the caller.
func (w *Writer) RecordCancel(cancel journalv1.CancelEvent) error {
	return w.enqueue(event{kind: journalv1.EventKindCancel, cancel: cancel})
}

// UpsertLiveOrder enqueues a live-projection upsert.
func (w *Writer) UpsertLiveOrder(order orderbookv1.Order) error {
	return w.enqueue(event{kind: journalv1.EventKindUpsertLive, order: order})
}

// RemoveLiveOrder enqueues a live-projection removal.
func (w *Writer) RemoveLiveOrder(ref journalv1.LiveOrderRef) error {
	return w.enqueue(event{kind: journalv1.EventKindRemoveLive, ref: ref})
}

// UpdateOrderQuantity enqueues a live-projection quantity patch.
func (w *Writer) UpdateOrderQuantity(update journalv1.QuantityUpdate) error {
	return w.enqueue(event{kind: journalv1.EventKindUpdateLive, update: update})
}

// IterOrders streams the order journal synchronously from the store.
func (w *Writer) IterOrders(ctx context.Context, instrumentID uint64, fn func(orderbookv1.Order) error) error {
	return w.store.IterOrders(ctx, instrumentID, fn)
}

// ListInstruments reads instrument records synchronously from the store.
func (w *Writer) ListInstruments(ctx context.Context) ([]journalv1.InstrumentRecord, error) {
	return w.store.ListInstruments(ctx)
}

// Close stops intake, drains every pending event to the store and stops the
// consumer. The store itself stays open; its owner closes it.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	select {
	case <-w.consumerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errWriterClosed = errors.New("durable writer closed")

// enqueue blocks only when the queue is full; that back-pressure is the
// bounded-queue signal rather than a dropped event.
func (w *Writer) enqueue(ev event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- ev
	return nil
}

// consume applies events in enqueue order until the queue is closed and empty.
func (w *Writer) consume() {
	defer close(w.consumerDone)
	for ev := range w.queue {
		w.applyWithRetry(ev)
	}
}

// applyWithRetry retries transient failures with doubling backoff. An event
// that keeps failing is logged and skipped to preserve liveness; the loss is
// surfaced through Healthy, not to the matching path.
func (w *Writer) applyWithRetry(ev event) {
	backoff := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		if err = w.apply(ev); err == nil {
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	w.healthy.Store(false)
	w.log.Error(errors.Wrap(err, "durable event dropped after retries").WithCode(errors.JournalAppendError),
		logger.Field{Key: "kind", Value: string(ev.kind)},
	)
}

func (w *Writer) apply(ev event) error {
	switch ev.kind {
	case journalv1.EventKindOrder:
		return w.store.PutOrder(ev.order)
	case journalv1.EventKindTrade:
		return w.store.AppendTrade(ev.trade, ev.seq)
	case journalv1.EventKindCancel:
		return w.store.DeleteLiveOrder(ev.cancel.InstrumentID, ev.cancel.OrderID)
	case journalv1.EventKindUpsertLive:
		return w.store.PutLiveOrder(ev.order)
	case journalv1.EventKindRemoveLive:
		if err := w.store.DeleteLiveOrder(ev.ref.InstrumentID, ev.ref.OrderID); err != nil {
			return err
		}
		// A removal outside the cancel path means the maker was fully
		// consumed; amend the journal so replay sees it filled. On the
		// cancel path the cancelled snapshot amendment follows and wins.
		return w.store.MarkOrderFilled(ev.ref.InstrumentID, ev.ref.OrderID)
	case journalv1.EventKindUpdateLive:
		return w.store.UpdateLiveOrderQuantity(ev.update)
	default:
		w.log.Warn("unknown event kind", logger.Field{Key: "kind", Value: string(ev.kind)})
		return nil
	}
}
