package orderbookv1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(id uint64, side Side, otype OrderType, price, qty int64) *Order {
	return &Order{
		OrderID:           id,
		InstrumentID:      1,
		Side:              side,
		Type:              otype,
		PriceCents:        price,
		Quantity:          qty,
		RemainingQuantity: qty,
		PartyID:           "p1",
		Timestamp:         int64(id),
	}
}

func TestOrder_Fill(t *testing.T) {
	o := newTestOrder(1, SideBuy, OrderTypeGTC, 10_000, 5)

	o.Fill(3)
	assert.Equal(t, int64(3), o.FilledQuantity)
	assert.Equal(t, int64(2), o.RemainingQuantity)
	assert.True(t, o.IsLive())

	o.Fill(2)
	assert.Equal(t, int64(5), o.FilledQuantity)
	assert.Equal(t, int64(0), o.RemainingQuantity)
	assert.False(t, o.IsLive())
	// A fully filled order is not a cancelled order.
	assert.False(t, o.Cancelled)
}

func TestOrder_Fill_ConservesQuantity(t *testing.T) {
	o := newTestOrder(1, SideSell, OrderTypeGTC, 10_000, 7)
	o.Fill(4)
	assert.Equal(t, o.Quantity, o.FilledQuantity+o.RemainingQuantity)
}

func TestOrder_Overfill_Panics(t *testing.T) {
	o := newTestOrder(1, SideBuy, OrderTypeGTC, 10_000, 2)
	require.Panics(t, func() { o.Fill(3) })
}

func TestOrder_Cancel(t *testing.T) {
	o := newTestOrder(1, SideBuy, OrderTypeGTC, 10_000, 5)
	o.Cancel()
	assert.True(t, o.Cancelled)
	assert.False(t, o.IsLive())
}

func TestOrder_Snapshot_IsImmutable(t *testing.T) {
	o := newTestOrder(1, SideBuy, OrderTypeGTC, 10_000, 5)
	snap := o.Snapshot()
	o.Fill(5)

	assert.Equal(t, int64(5), snap.RemainingQuantity)
	assert.Equal(t, int64(0), snap.FilledQuantity)
}

func TestSide_Valid(t *testing.T) {
	assert.True(t, SideBuy.Valid())
	assert.True(t, SideSell.Valid())
	assert.False(t, Side("HOLD").Valid())
}

func TestOrderType_Valid(t *testing.T) {
	assert.True(t, OrderTypeMarket.Valid())
	assert.True(t, OrderTypeGTC.Valid())
	assert.True(t, OrderTypeIOC.Valid())
	assert.False(t, OrderType("FOK").Valid())
}
