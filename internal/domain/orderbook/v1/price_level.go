package orderbookv1

// PriceLevel holds the FIFO queue of resting orders at a single price.
// Removal is lazy: cancelled and filled orders stay queued until they reach
// the front, where Top and IsEmpty discard them. Each dead order is discarded
// at most once, so pruning is O(1) amortised.
type PriceLevel struct {
	PriceCents int64
	queue      []*Order
}

// NewPriceLevel creates an empty level for the given price.
func NewPriceLevel(priceCents int64) *PriceLevel {
	return &PriceLevel{PriceCents: priceCents}
}

// Add appends an order to the tail of the queue.
func (l *PriceLevel) Add(o *Order) {
	l.queue = append(l.queue, o)
}

// prune discards dead orders from the front of the queue.
func (l *PriceLevel) prune() {
	for len(l.queue) > 0 && !l.queue[0].IsLive() {
		l.queue[0] = nil
		l.queue = l.queue[1:]
	}
	if len(l.queue) == 0 {
		l.queue = nil
	}
}

// Top returns the first live order, or nil if none remains.
func (l *PriceLevel) Top() *Order {
	l.prune()
	if len(l.queue) == 0 {
		return nil
	}
	return l.queue[0]
}

// PopFront removes the current front order unconditionally.
func (l *PriceLevel) PopFront() {
	if len(l.queue) > 0 {
		l.queue[0] = nil
		l.queue = l.queue[1:]
	}
}

// IsEmpty reports whether no live order remains at this price.
func (l *PriceLevel) IsEmpty() bool {
	l.prune()
	return len(l.queue) == 0
}

// Len returns the number of queued entries, live or not.
func (l *PriceLevel) Len() int {
	return len(l.queue)
}
