package backup

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

var orderFields = []string{
	"order_type", "side", "instrument_id", "price_cents", "quantity",
	"timestamp", "order_id", "party_id", "cancelled",
	"filled_quantity", "remaining_quantity",
}

var tradeFields = []string{
	"instrument_id", "price_cents", "quantity", "timestamp",
	"maker_order_id", "maker_party_id", "taker_order_id", "taker_party_id",
	"maker_is_buyer", "maker_quantity_remaining", "taker_quantity_remaining",
}

var cancelFields = []string{"instrument_id", "order_id", "party_id", "timestamp"}

var liveFields = append([]string{"event_type"}, orderFields...)

// row is one append destined for a single backup file.
type row struct {
	path   string
	header []string
	record []string
}

// Writer appends one CSV line per event to an append-only journal on the
// local filesystem, one file per instrument per event kind. Appends happen
// on a worker goroutine, off the hot path. The files do not participate in
// replay and are not required to round-trip.
type Writer struct {
	dir string
	log *logger.Logger

	rows chan row

	mu     sync.RWMutex
	closed bool

	workerDone chan struct{}
}

// NewWriter creates the backup directory and starts the append worker.
func NewWriter(dir string, log *logger.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create backup dir").WithCode(errors.BackupWriteError)
	}
	w := &Writer{
		dir:        dir,
		log:        log,
		rows:       make(chan row, 4096),
		workerDone: make(chan struct{}),
	}
	go w.work()
	return w, nil
}

// CreateInstrument creates the four per-instrument files with headers.
func (w *Writer) CreateInstrument(record journalv1.InstrumentRecord) error {
	id := record.InstrumentID
	for _, f := range []struct {
		name   string
		header []string
	}{
		{fmt.Sprintf("orders_%d.csv", id), orderFields},
		{fmt.Sprintf("trades_%d.csv", id), tradeFields},
		{fmt.Sprintf("cancels_%d.csv", id), cancelFields},
		{fmt.Sprintf("live_events_%d.csv", id), liveFields},
	} {
		if err := ensureFile(filepath.Join(w.dir, f.name), f.header); err != nil {
			return err
		}
	}
	return nil
}

// RecordOrder appends to orders_<instrument>.csv.
func (w *Writer) RecordOrder(order orderbookv1.Order) error {
	return w.enqueue(row{
		path:   w.path("orders", order.InstrumentID),
		header: orderFields,
		record: orderRecord(order),
	})
}

// RecordTrade appends to trades_<instrument>.csv.
func (w *Writer) RecordTrade(trade orderbookv1.Trade) error {
	return w.enqueue(row{
		path:   w.path("trades", trade.InstrumentID),
		header: tradeFields,
		record: []string{
			strconv.FormatUint(trade.InstrumentID, 10),
			strconv.FormatInt(trade.PriceCents, 10),
			strconv.FormatInt(trade.Quantity, 10),
			strconv.FormatInt(trade.Timestamp, 10),
			strconv.FormatUint(trade.MakerOrderID, 10),
			trade.MakerPartyID,
			strconv.FormatUint(trade.TakerOrderID, 10),
			trade.TakerPartyID,
			strconv.FormatBool(trade.MakerIsBuyer),
			strconv.FormatInt(trade.MakerQuantityRemaining, 10),
			strconv.FormatInt(trade.TakerQuantityRemaining, 10),
		},
	})
}

// RecordCancel appends to cancels_<instrument>.csv.
func (w *Writer) RecordCancel(cancel journalv1.CancelEvent) error {
	return w.enqueue(row{
		path:   w.path("cancels", cancel.InstrumentID),
		header: cancelFields,
		record: []string{
			strconv.FormatUint(cancel.InstrumentID, 10),
			strconv.FormatUint(cancel.OrderID, 10),
			cancel.PartyID,
			strconv.FormatInt(cancel.Timestamp, 10),
		},
	})
}

// UpsertLiveOrder appends an UPS_LIVE row to live_events_<instrument>.csv.
func (w *Writer) UpsertLiveOrder(order orderbookv1.Order) error {
	return w.enqueue(row{
		path:   w.path("live_events", order.InstrumentID),
		header: liveFields,
		record: append([]string{string(journalv1.EventKindUpsertLive)}, orderRecord(order)...),
	})
}

// RemoveLiveOrder appends a REM_LIVE row; only the ids are known.
func (w *Writer) RemoveLiveOrder(ref journalv1.LiveOrderRef) error {
	record := make([]string, len(liveFields))
	record[0] = string(journalv1.EventKindRemoveLive)
	record[3] = strconv.FormatUint(ref.InstrumentID, 10)
	record[7] = strconv.FormatUint(ref.OrderID, 10)
	record[6] = strconv.FormatInt(time.Now().UnixNano(), 10)
	return w.enqueue(row{
		path:   w.path("live_events", ref.InstrumentID),
		header: liveFields,
		record: record,
	})
}

// UpdateOrderQuantity is not journalled here; the live_events stream already
// carries the upserts and removals that bracket it.
func (w *Writer) UpdateOrderQuantity(journalv1.QuantityUpdate) error { return nil }

// IterOrders yields nothing: backup files do not participate in replay.
func (w *Writer) IterOrders(context.Context, uint64, func(orderbookv1.Order) error) error {
	return nil
}

// ListInstruments yields nothing: backup files do not participate in replay.
func (w *Writer) ListInstruments(context.Context) ([]journalv1.InstrumentRecord, error) {
	return nil, nil
}

// Close stops intake and waits for the worker to flush every queued row.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.rows)
	w.mu.Unlock()

	select {
	case <-w.workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errWriterClosed = errors.New("backup writer closed")

func (w *Writer) enqueue(r row) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.rows <- r
	return nil
}

func (w *Writer) work() {
	defer close(w.workerDone)
	for r := range w.rows {
		if err := appendRow(r); err != nil {
			w.log.Error(errors.Wrap(err, "backup append failed").WithCode(errors.BackupWriteError),
				logger.Field{Key: "path", Value: r.path},
			)
		}
	}
}

func (w *Writer) path(kind string, instrumentID uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%d.csv", kind, instrumentID))
}

func orderRecord(order orderbookv1.Order) []string {
	return []string{
		string(order.Type),
		string(order.Side),
		strconv.FormatUint(order.InstrumentID, 10),
		strconv.FormatInt(order.PriceCents, 10),
		strconv.FormatInt(order.Quantity, 10),
		strconv.FormatInt(order.Timestamp, 10),
		strconv.FormatUint(order.OrderID, 10),
		order.PartyID,
		strconv.FormatBool(order.Cancelled),
		strconv.FormatInt(order.FilledQuantity, 10),
		strconv.FormatInt(order.RemainingQuantity, 10),
	}
}

func ensureFile(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.Wrap(err, "create backup file").WithCode(errors.BackupWriteError)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write backup header").WithCode(errors.BackupWriteError)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write backup header").WithCode(errors.BackupWriteError)
	}
	return f.Close()
}

func appendRow(r row) error {
	if err := ensureFile(r.path, r.header); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(r.record); err != nil {
		_ = f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
