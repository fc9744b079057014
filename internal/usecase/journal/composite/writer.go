package composite

import (
	"context"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

// Writer fans every mutating call out to an ordered list of writers. The
// first writer is the primary: its result is surfaced and it serves the
// query operations. Failures from secondary writers are logged and swallowed
// so they can never affect primary durability.
type Writer struct {
	writers []journalv1.Writer
	log     *logger.Logger
}

// NewWriter builds a composite over writers; writers[0] is the primary.
func NewWriter(log *logger.Logger, writers ...journalv1.Writer) *Writer {
	if len(writers) == 0 {
		panic("composite writer needs at least one writer")
	}
	return &Writer{writers: writers, log: log}
}

// Primary returns the primary writer.
func (w *Writer) Primary() journalv1.Writer {
	return w.writers[0]
}

// CreateInstrument dispatches to every writer in order.
func (w *Writer) CreateInstrument(record journalv1.InstrumentRecord) error {
	return w.fanOut("create_instrument", func(dest journalv1.Writer) error {
		return dest.CreateInstrument(record)
	})
}

// RecordOrder dispatches to every writer in order.
func (w *Writer) RecordOrder(order orderbookv1.Order) error {
	return w.fanOut("record_order", func(dest journalv1.Writer) error {
		return dest.RecordOrder(order)
	})
}

// RecordTrade dispatches to every writer in order.
func (w *Writer) RecordTrade(trade orderbookv1.Trade) error {
	return w.fanOut("record_trade", func(dest journalv1.Writer) error {
		return dest.RecordTrade(trade)
	})
}

// RecordCancel dispatches to every writer in order.
func (w *Writer) RecordCancel(cancel journalv1.CancelEvent) error {
	return w.fanOut("record_cancel", func(dest journalv1.Writer) error {
		return dest.RecordCancel(cancel)
	})
}

// UpsertLiveOrder dispatches to every writer in order.
func (w *Writer) UpsertLiveOrder(order orderbookv1.Order) error {
	return w.fanOut("upsert_live_order", func(dest journalv1.Writer) error {
		return dest.UpsertLiveOrder(order)
	})
}

// RemoveLiveOrder dispatches to every writer in order.
func (w *Writer) RemoveLiveOrder(ref journalv1.LiveOrderRef) error {
	return w.fanOut("remove_live_order", func(dest journalv1.Writer) error {
		return dest.RemoveLiveOrder(ref)
	})
}

// UpdateOrderQuantity dispatches to every writer in order.
func (w *Writer) UpdateOrderQuantity(update journalv1.QuantityUpdate) error {
	return w.fanOut("update_order_quantity", func(dest journalv1.Writer) error {
		return dest.UpdateOrderQuantity(update)
	})
}

// IterOrders queries the primary only.
func (w *Writer) IterOrders(ctx context.Context, instrumentID uint64, fn func(orderbookv1.Order) error) error {
	return w.Primary().IterOrders(ctx, instrumentID, fn)
}

// ListInstruments queries the primary only.
func (w *Writer) ListInstruments(ctx context.Context) ([]journalv1.InstrumentRecord, error) {
	return w.Primary().ListInstruments(ctx)
}

// Close closes every writer; the primary's error is surfaced.
func (w *Writer) Close(ctx context.Context) error {
	primaryErr := w.writers[0].Close(ctx)
	for _, dest := range w.writers[1:] {
		if err := dest.Close(ctx); err != nil {
			w.log.Error(errors.Wrap(err, "secondary writer close failed"))
		}
	}
	return primaryErr
}

// fanOut calls op on the primary first and returns its result after
// dispatching to the secondaries.
func (w *Writer) fanOut(name string, op func(journalv1.Writer) error) error {
	primaryErr := op(w.writers[0])
	for _, dest := range w.writers[1:] {
		if err := op(dest); err != nil {
			w.log.Error(errors.Wrap(err, "secondary writer failed"),
				logger.Field{Key: "operation", Value: name},
			)
		}
	}
	return primaryErr
}
