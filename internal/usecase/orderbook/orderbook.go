package orderbook

import (
	"sort"
	"time"

	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

// OrderBook is the per-instrument matching engine: two price heaps, two
// price-to-level maps and the live-order map. It performs no I/O and holds
// no lock; callers serialize all mutating calls (the Exchange takes one
// mutex per book around Submit and Cancel).
type OrderBook struct {
	instrumentID uint64

	bids map[int64]*orderbookv1.PriceLevel
	asks map[int64]*orderbookv1.PriceLevel

	bidHeap *orderbookv1.PriceHeap
	askHeap *orderbookv1.PriceHeap

	// oidMap owns every resting order; levels hold non-owning references.
	oidMap map[uint64]*orderbookv1.Order

	log *logger.Logger
}

// NewOrderBook creates an empty book for one instrument.
func NewOrderBook(instrumentID uint64, log *logger.Logger) *OrderBook {
	return &OrderBook{
		instrumentID: instrumentID,
		bids:         make(map[int64]*orderbookv1.PriceLevel),
		asks:         make(map[int64]*orderbookv1.PriceLevel),
		bidHeap:      orderbookv1.NewPriceHeap(true),
		askHeap:      orderbookv1.NewPriceHeap(false),
		oidMap:       make(map[uint64]*orderbookv1.Order),
		log:          log.WithFields(logger.Field{Key: "instrument_id", Value: instrumentID}),
	}
}

// InstrumentID returns the instrument this book matches.
func (b *OrderBook) InstrumentID() uint64 {
	return b.instrumentID
}

// Submit matches an incoming order and returns the trades it produced in
// execution order. The order is mutated in place: filled and remaining
// quantities, and the cancelled flag for MARKET/IOC residue.
//
//   - MARKET: execute against best opposite liquidity; cancel any residue.
//   - GTC: match while crossing, then rest the residue.
//   - IOC: match while crossing, then cancel the residue.
func (b *OrderBook) Submit(order *orderbookv1.Order) ([]orderbookv1.Trade, error) {
	if order == nil {
		return nil, orderbookv1.ErrNilOrder
	}
	if order.InstrumentID != b.instrumentID {
		return nil, orderbookv1.ErrWrongInstrument
	}

	var trades []orderbookv1.Trade
	switch order.Type {
	case orderbookv1.OrderTypeMarket:
		trades = b.executeMarket(order)
		if order.RemainingQuantity > 0 {
			order.Cancel()
		}
	case orderbookv1.OrderTypeGTC:
		trades = b.matchLimit(order)
		if order.RemainingQuantity > 0 {
			b.Rest(order)
		}
	case orderbookv1.OrderTypeIOC:
		trades = b.matchLimit(order)
		if order.RemainingQuantity > 0 {
			order.Cancel()
		}
	}

	b.log.Debug("submit complete",
		logger.Field{Key: "order_id", Value: order.OrderID},
		logger.Field{Key: "remaining", Value: order.RemainingQuantity},
		logger.Field{Key: "trades", Value: len(trades)},
	)
	return trades, nil
}

// Cancel flags an open order cancelled and removes it from the live-order
// map; the level and heap reclaim its slot lazily. Idempotent: returns false
// for unknown, already cancelled or fully filled orders.
func (b *OrderBook) Cancel(orderID uint64) bool {
	return b.cancel(orderID, "")
}

// CancelForParty is Cancel with ownership enforced: a party mismatch is
// reported as not-open so probes cannot confirm a foreign order exists.
func (b *OrderBook) CancelForParty(orderID uint64, partyID string) bool {
	return b.cancel(orderID, partyID)
}

func (b *OrderBook) cancel(orderID uint64, partyID string) bool {
	order, ok := b.oidMap[orderID]
	if !ok {
		b.log.Debug("cancel miss", logger.Field{Key: "order_id", Value: orderID})
		return false
	}
	if partyID != "" && order.PartyID != partyID {
		b.log.Debug("cancel party mismatch", logger.Field{Key: "order_id", Value: orderID})
		return false
	}
	if order.Cancelled || order.RemainingQuantity == 0 {
		return false
	}

	order.Cancel()
	delete(b.oidMap, orderID)
	b.cleanupLevel(order.Side, order.PriceCents)

	b.log.Debug("cancel ok", logger.Field{Key: "order_id", Value: orderID})
	return true
}

// BestBid returns the highest live bid price.
func (b *OrderBook) BestBid() (int64, bool) {
	return b.bestLive(b.bidHeap, b.bids)
}

// BestAsk returns the lowest live ask price.
func (b *OrderBook) BestAsk() (int64, bool) {
	return b.bestLive(b.askHeap, b.asks)
}

// Rest inserts an order into its side without matching. It is the landing
// path for GTC residue and the replay path at rebuild: the order keeps its
// original id, timestamp, price and fill state.
func (b *OrderBook) Rest(order *orderbookv1.Order) {
	levels, heap := b.sideOf(order.Side)
	level, ok := levels[order.PriceCents]
	if !ok {
		level = orderbookv1.NewPriceLevel(order.PriceCents)
		levels[order.PriceCents] = level
	}
	heap.Push(order.PriceCents)
	level.Add(order)
	b.oidMap[order.OrderID] = order
}

// LiveOrder returns a snapshot of a resting order.
func (b *OrderBook) LiveOrder(orderID uint64) (orderbookv1.Order, bool) {
	order, ok := b.oidMap[orderID]
	if !ok {
		return orderbookv1.Order{}, false
	}
	return order.Snapshot(), true
}

// LiveOrders returns snapshots of every resting order, ascending by order id.
func (b *OrderBook) LiveOrders() []orderbookv1.Order {
	out := make([]orderbookv1.Order, 0, len(b.oidMap))
	for _, order := range b.oidMap {
		out = append(out, order.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// OpenOrderIDsForParty returns the ids of the party's resting orders,
// ascending. Used by cancel-all, which snapshots before cancelling.
func (b *OrderBook) OpenOrderIDsForParty(partyID string) []uint64 {
	var ids []uint64
	for id, order := range b.oidMap {
		if order.PartyID == partyID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ---------- matching internals ----------

// matchLimit executes the taker against the opposite side while the best
// opposite price crosses the taker's limit.
func (b *OrderBook) matchLimit(taker *orderbookv1.Order) []orderbookv1.Trade {
	var trades []orderbookv1.Trade
	for taker.RemainingQuantity > 0 {
		best, top, ok := b.bestOpposite(taker.Side)
		if !ok {
			break
		}
		if (taker.Side == orderbookv1.SideBuy && best > taker.PriceCents) ||
			(taker.Side == orderbookv1.SideSell && best < taker.PriceCents) {
			break
		}
		trades = append(trades, b.matchOrders(taker, top))
	}
	return trades
}

// executeMarket is the limit loop without the price check.
func (b *OrderBook) executeMarket(taker *orderbookv1.Order) []orderbookv1.Trade {
	var trades []orderbookv1.Trade
	for taker.RemainingQuantity > 0 {
		_, top, ok := b.bestOpposite(taker.Side)
		if !ok {
			break
		}
		trades = append(trades, b.matchOrders(taker, top))
	}
	return trades
}

// bestOpposite returns the best opposite price and its live head order,
// pruning empty levels and stale heap entries along the way.
func (b *OrderBook) bestOpposite(takerSide orderbookv1.Side) (int64, *orderbookv1.Order, bool) {
	opposite := orderbookv1.SideSell
	if takerSide == orderbookv1.SideSell {
		opposite = orderbookv1.SideBuy
	}
	levels, heap := b.sideOf(opposite)

	for {
		best, ok := heap.Best()
		if !ok {
			return 0, nil, false
		}
		level, ok := levels[best]
		if !ok {
			heap.MarkEmpty(best)
			continue
		}
		top := level.Top()
		if top == nil {
			delete(levels, best)
			heap.MarkEmpty(best)
			continue
		}
		return best, top, true
	}
}

// matchOrders fills min(taker, maker) at the maker's price and drops the
// maker from the live map when it is fully consumed.
func (b *OrderBook) matchOrders(taker, maker *orderbookv1.Order) orderbookv1.Trade {
	quantity := taker.RemainingQuantity
	if maker.RemainingQuantity < quantity {
		quantity = maker.RemainingQuantity
	}
	taker.Fill(quantity)
	maker.Fill(quantity)

	trade := orderbookv1.Trade{
		InstrumentID:           b.instrumentID,
		PriceCents:             maker.PriceCents,
		Quantity:               quantity,
		Timestamp:              time.Now().UnixNano(),
		MakerOrderID:           maker.OrderID,
		MakerPartyID:           maker.PartyID,
		TakerOrderID:           taker.OrderID,
		TakerPartyID:           taker.PartyID,
		MakerIsBuyer:           maker.Side == orderbookv1.SideBuy,
		MakerQuantityRemaining: maker.RemainingQuantity,
		TakerQuantityRemaining: taker.RemainingQuantity,
	}

	if maker.RemainingQuantity == 0 {
		// Fully filled makers leave the book uncancelled.
		delete(b.oidMap, maker.OrderID)
		b.cleanupLevel(maker.Side, maker.PriceCents)
	}

	b.log.Debug("trade executed",
		logger.Field{Key: "price_cents", Value: trade.PriceCents},
		logger.Field{Key: "quantity", Value: trade.Quantity},
		logger.Field{Key: "maker_order_id", Value: trade.MakerOrderID},
		logger.Field{Key: "taker_order_id", Value: trade.TakerOrderID},
	)
	return trade
}

// cleanupLevel drops a level that holds no live orders and lazily deletes
// its price from the heap.
func (b *OrderBook) cleanupLevel(side orderbookv1.Side, priceCents int64) {
	levels, heap := b.sideOf(side)
	level, ok := levels[priceCents]
	if !ok {
		heap.MarkEmpty(priceCents)
		return
	}
	if level.IsEmpty() {
		delete(levels, priceCents)
		heap.MarkEmpty(priceCents)
	}
}

func (b *OrderBook) sideOf(side orderbookv1.Side) (map[int64]*orderbookv1.PriceLevel, *orderbookv1.PriceHeap) {
	if side == orderbookv1.SideBuy {
		return b.bids, b.bidHeap
	}
	return b.asks, b.askHeap
}

func (b *OrderBook) bestLive(heap *orderbookv1.PriceHeap, levels map[int64]*orderbookv1.PriceLevel) (int64, bool) {
	for {
		best, ok := heap.Best()
		if !ok {
			return 0, false
		}
		level, ok := levels[best]
		if ok && level.Top() != nil {
			return best, true
		}
		if ok {
			delete(levels, best)
		}
		heap.MarkEmpty(best)
	}
}
