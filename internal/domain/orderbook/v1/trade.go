package orderbookv1

// Trade represents a single fill between a resting maker order and an
// incoming taker order. The price is always the maker's price. Immutable.
type Trade struct {
	InstrumentID           uint64 `json:"instrument_id"`
	PriceCents             int64  `json:"price_cents"`
	Quantity               int64  `json:"quantity"`
	Timestamp              int64  `json:"timestamp"`
	MakerOrderID           uint64 `json:"maker_order_id"`
	MakerPartyID           string `json:"maker_party_id"`
	TakerOrderID           uint64 `json:"taker_order_id"`
	TakerPartyID           string `json:"taker_party_id"`
	MakerIsBuyer           bool   `json:"maker_is_buyer"`
	MakerQuantityRemaining int64  `json:"maker_quantity_remaining"`
	TakerQuantityRemaining int64  `json:"taker_quantity_remaining"`
}

// MakerIsFilled reports whether the maker order was fully consumed by this trade.
func (t *Trade) MakerIsFilled() bool {
	return t.MakerQuantityRemaining == 0
}

// TakerIsFilled reports whether the taker order was fully consumed by this trade.
func (t *Trade) TakerIsFilled() bool {
	return t.TakerQuantityRemaining == 0
}
