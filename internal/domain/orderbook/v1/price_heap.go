package orderbookv1

import "container/heap"

// PriceHeap is the priority queue of active prices for one side of a book:
// max-heap for bids, min-heap for asks. Deletion is lazy; prices vacated by
// cancels stay in the heap until Best pops past them, guided by the validity
// set. Push consults the same set to dedup on insert, so a price holds at
// most one armed entry at a time (stale duplicates can still coexist with a
// re-armed entry until Best discards them). Re-pushing a vacated price
// re-arms it.
type PriceHeap struct {
	isBid bool
	h     priceSlice
	valid map[int64]struct{}
}

// NewPriceHeap creates an empty heap. Bids order high to low, asks low to high.
func NewPriceHeap(isBid bool) *PriceHeap {
	return &PriceHeap{
		isBid: isBid,
		h:     priceSlice{isBid: isBid},
		valid: make(map[int64]struct{}),
	}
}

// Push marks price active and inserts it if not already present.
func (p *PriceHeap) Push(price int64) {
	if _, ok := p.valid[price]; ok {
		return
	}
	p.valid[price] = struct{}{}
	heap.Push(&p.h, price)
}

// MarkEmpty lazily deletes a price whose level no longer holds live orders.
func (p *PriceHeap) MarkEmpty(price int64) {
	delete(p.valid, price)
}

// Best returns the best active price, popping stale entries on the way.
func (p *PriceHeap) Best() (int64, bool) {
	for p.h.Len() > 0 {
		price := p.h.prices[0]
		if _, ok := p.valid[price]; ok {
			return price, true
		}
		heap.Pop(&p.h) // drop stale
	}
	return 0, false
}

// Len returns the number of heap entries, stale included.
func (p *PriceHeap) Len() int {
	return p.h.Len()
}

// priceSlice implements heap.Interface over raw prices.
type priceSlice struct {
	prices []int64
	isBid  bool
}

func (s *priceSlice) Len() int { return len(s.prices) }

func (s *priceSlice) Less(i, j int) bool {
	if s.isBid {
		return s.prices[i] > s.prices[j]
	}
	return s.prices[i] < s.prices[j]
}

func (s *priceSlice) Swap(i, j int) {
	s.prices[i], s.prices[j] = s.prices[j], s.prices[i]
}

func (s *priceSlice) Push(x any) {
	s.prices = append(s.prices, x.(int64))
}

func (s *priceSlice) Pop() any {
	n := len(s.prices)
	v := s.prices[n-1]
	s.prices = s.prices[:n-1]
	return v
}
