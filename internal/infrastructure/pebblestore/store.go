package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

// Store persists the exchange's durable state in an embedded Pebble database:
// per-instrument order journal, live-order projection and trade journal, the
// instrument stream and the order-id high-water mark.
type Store struct {
	db  *pebble.DB
	log *logger.Logger
}

// Open opens (or creates) the store under dir.
func Open(dir string, log *logger.Logger) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open pebble store").WithCode(errors.JournalAppendError)
	}
	return &Store{db: db, log: log}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutInstrument persists an instrument record.
func (s *Store) PutInstrument(record journalv1.InstrumentRecord) error {
	buf, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal instrument").WithCode(errors.JournalAppendError)
	}
	if err := s.db.Set(instrumentKey(record.InstrumentID), buf, pebble.Sync); err != nil {
		return errors.Wrap(err, "put instrument").WithCode(errors.JournalAppendError)
	}
	return nil
}

// ListInstruments returns every instrument record, ascending by id.
func (s *Store) ListInstruments(ctx context.Context) ([]journalv1.InstrumentRecord, error) {
	lower, upper := prefixBounds(instrumentPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "iterate instruments").WithCode(errors.JournalReadError)
	}
	defer iter.Close()

	var records []journalv1.InstrumentRecord
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var record journalv1.InstrumentRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			return nil, errors.Wrap(err, "unmarshal instrument").WithCode(errors.JournalReadError)
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate instruments").WithCode(errors.JournalReadError)
	}
	return records, nil
}

// PutOrder upserts a full order snapshot in the order journal, keyed by order
// id, and advances the durable id counter past it.
func (s *Store) PutOrder(order orderbookv1.Order) error {
	buf, err := json.Marshal(order)
	if err != nil {
		return errors.Wrap(err, "marshal order").WithCode(errors.JournalAppendError)
	}
	if err := s.db.Set(orderKey(order.InstrumentID, order.OrderID), buf, pebble.Sync); err != nil {
		return errors.Wrap(err, "put order").WithCode(errors.JournalAppendError)
	}
	return s.AdvanceNextOrderID(order.OrderID + 1)
}

// IterOrders streams the order journal for one instrument ascending by order id.
func (s *Store) IterOrders(ctx context.Context, instrumentID uint64, fn func(orderbookv1.Order) error) error {
	lower, upper := rangeBounds(orderPrefix, instrumentID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return errors.Wrap(err, "iterate orders").WithCode(errors.JournalReadError)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var order orderbookv1.Order
		if err := json.Unmarshal(iter.Value(), &order); err != nil {
			return errors.Wrap(err, "unmarshal order").WithCode(errors.JournalReadError)
		}
		if err := fn(order); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "iterate orders").WithCode(errors.JournalReadError)
	}
	return nil
}

// PutLiveOrder upserts an order in the live-order projection.
func (s *Store) PutLiveOrder(order orderbookv1.Order) error {
	buf, err := json.Marshal(order)
	if err != nil {
		return errors.Wrap(err, "marshal live order").WithCode(errors.JournalAppendError)
	}
	if err := s.db.Set(liveOrderKey(order.InstrumentID, order.OrderID), buf, pebble.Sync); err != nil {
		return errors.Wrap(err, "put live order").WithCode(errors.JournalAppendError)
	}
	return nil
}

// DeleteLiveOrder drops an order from the live-order projection.
func (s *Store) DeleteLiveOrder(instrumentID, orderID uint64) error {
	if err := s.db.Delete(liveOrderKey(instrumentID, orderID), pebble.Sync); err != nil {
		return errors.Wrap(err, "delete live order").WithCode(errors.JournalAppendError)
	}
	return nil
}

// UpdateLiveOrderQuantity patches the quantities of a projected live order.
// The order journal entry is patched alongside so that replaying the journal
// reproduces maker fills. A missing entry is not an error: the order may
// already have been removed.
func (s *Store) UpdateLiveOrderQuantity(update journalv1.QuantityUpdate) error {
	patch := func(order *orderbookv1.Order) bool {
		order.FilledQuantity = update.Filled
		order.RemainingQuantity = update.Remaining
		return true
	}
	if err := s.patchOrder(liveOrderKey(update.InstrumentID, update.OrderID), patch); err != nil {
		return err
	}
	return s.patchOrder(orderKey(update.InstrumentID, update.OrderID), patch)
}

// MarkOrderFilled amends the journal entry of a fully consumed maker:
// remaining drops to zero without flagging the order cancelled. Cancelled
// entries are left alone; the cancel path writes its own amendment.
func (s *Store) MarkOrderFilled(instrumentID, orderID uint64) error {
	return s.patchOrder(orderKey(instrumentID, orderID), func(order *orderbookv1.Order) bool {
		if order.Cancelled {
			return false
		}
		order.FilledQuantity = order.Quantity
		order.RemainingQuantity = 0
		return true
	})
}

// patchOrder read-modify-writes the order stored at key, if any.
func (s *Store) patchOrder(key []byte, patch func(*orderbookv1.Order) bool) error {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "get order").WithCode(errors.JournalReadError)
	}
	var order orderbookv1.Order
	uerr := json.Unmarshal(val, &order)
	_ = closer.Close()
	if uerr != nil {
		return errors.Wrap(uerr, "unmarshal order").WithCode(errors.JournalReadError)
	}

	if !patch(&order) {
		return nil
	}
	buf, err := json.Marshal(order)
	if err != nil {
		return errors.Wrap(err, "marshal order").WithCode(errors.JournalAppendError)
	}
	if err := s.db.Set(key, buf, pebble.Sync); err != nil {
		return errors.Wrap(err, "patch order").WithCode(errors.JournalAppendError)
	}
	return nil
}

// ListLiveOrders returns the live-order projection for one instrument,
// ascending by order id.
func (s *Store) ListLiveOrders(ctx context.Context, instrumentID uint64) ([]orderbookv1.Order, error) {
	lower, upper := rangeBounds(livePrefix, instrumentID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "iterate live orders").WithCode(errors.JournalReadError)
	}
	defer iter.Close()

	var orders []orderbookv1.Order
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var order orderbookv1.Order
		if err := json.Unmarshal(iter.Value(), &order); err != nil {
			return nil, errors.Wrap(err, "unmarshal live order").WithCode(errors.JournalReadError)
		}
		orders = append(orders, order)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate live orders").WithCode(errors.JournalReadError)
	}
	return orders, nil
}

// AppendTrade appends a trade to the instrument's trade journal. seq breaks
// ties between trades sharing a nanosecond timestamp.
func (s *Store) AppendTrade(trade orderbookv1.Trade, seq uint64) error {
	buf, err := json.Marshal(trade)
	if err != nil {
		return errors.Wrap(err, "marshal trade").WithCode(errors.JournalAppendError)
	}
	if err := s.db.Set(tradeKey(trade.InstrumentID, trade.Timestamp, seq), buf, pebble.Sync); err != nil {
		return errors.Wrap(err, "append trade").WithCode(errors.JournalAppendError)
	}
	return nil
}

// ListTrades returns the trade journal for one instrument, ascending by timestamp.
func (s *Store) ListTrades(ctx context.Context, instrumentID uint64) ([]orderbookv1.Trade, error) {
	lower, upper := rangeBounds(tradePrefix, instrumentID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "iterate trades").WithCode(errors.JournalReadError)
	}
	defer iter.Close()

	var trades []orderbookv1.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var trade orderbookv1.Trade
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			return nil, errors.Wrap(err, "unmarshal trade").WithCode(errors.JournalReadError)
		}
		trades = append(trades, trade)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate trades").WithCode(errors.JournalReadError)
	}
	return trades, nil
}

// NextOrderID reads the persisted counter high-water mark. Zero when unset.
func (s *Store) NextOrderID() (uint64, error) {
	val, closer, err := s.db.Get([]byte(nextOrderIDKey))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get next order id").WithCode(errors.JournalReadError)
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, errors.New("corrupt next order id").WithCode(errors.JournalReadError)
	}
	return binary.BigEndian.Uint64(val), nil
}

// AdvanceNextOrderID raises the counter high-water mark to candidate if it
// is ahead of the stored value. Never moves backwards, so replay after a
// crash cannot reissue an id.
func (s *Store) AdvanceNextOrderID(candidate uint64) error {
	current, err := s.NextOrderID()
	if err != nil {
		return err
	}
	if candidate <= current {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], candidate)
	if err := s.db.Set([]byte(nextOrderIDKey), buf[:], pebble.Sync); err != nil {
		return errors.Wrap(err, "advance next order id").WithCode(errors.JournalAppendError)
	}
	return nil
}
