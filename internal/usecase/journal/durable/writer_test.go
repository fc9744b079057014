package durable

import (
	"context"
	"sync"
	"testing"
	"time"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records applied mutations in order and can fail on demand.
type fakeStore struct {
	mu      sync.Mutex
	applied []string
	failOn  map[string]int // op -> number of times to fail
}

func newFakeStore() *fakeStore {
	return &fakeStore{failOn: make(map[string]int)}
}

func (s *fakeStore) do(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[op] > 0 {
		s.failOn[op]--
		return errors.New("injected failure")
	}
	s.applied = append(s.applied, op)
	return nil
}

func (s *fakeStore) appliedOps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.applied...)
}

func (s *fakeStore) PutInstrument(journalv1.InstrumentRecord) error { return s.do("put_instrument") }
func (s *fakeStore) PutOrder(orderbookv1.Order) error               { return s.do("put_order") }
func (s *fakeStore) AppendTrade(orderbookv1.Trade, uint64) error    { return s.do("append_trade") }
func (s *fakeStore) PutLiveOrder(orderbookv1.Order) error           { return s.do("put_live") }
func (s *fakeStore) DeleteLiveOrder(uint64, uint64) error           { return s.do("delete_live") }
func (s *fakeStore) UpdateLiveOrderQuantity(journalv1.QuantityUpdate) error {
	return s.do("update_live")
}
func (s *fakeStore) MarkOrderFilled(uint64, uint64) error { return s.do("mark_filled") }
func (s *fakeStore) IterOrders(context.Context, uint64, func(orderbookv1.Order) error) error {
	return nil
}
func (s *fakeStore) ListInstruments(context.Context) ([]journalv1.InstrumentRecord, error) {
	return nil, nil
}

func newTestWriter(t *testing.T, store Store) *Writer {
	t.Helper()
	w := NewWriter(store, logger.NewNop(), Options{QueueCapacity: 128, MaxRetries: 2})
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	return w
}

func TestWriter_AppliesInEnqueueOrder(t *testing.T) {
	store := newFakeStore()
	w := newTestWriter(t, store)

	require.NoError(t, w.RecordOrder(orderbookv1.Order{OrderID: 1}))
	require.NoError(t, w.RecordTrade(orderbookv1.Trade{}))
	require.NoError(t, w.UpdateOrderQuantity(journalv1.QuantityUpdate{}))
	require.NoError(t, w.UpsertLiveOrder(orderbookv1.Order{OrderID: 1}))
	require.NoError(t, w.RemoveLiveOrder(journalv1.LiveOrderRef{OrderID: 1}))
	require.NoError(t, w.RecordCancel(journalv1.CancelEvent{OrderID: 1}))

	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t,
		[]string{"put_order", "append_trade", "update_live", "put_live", "delete_live", "mark_filled", "delete_live"},
		store.appliedOps(),
	)
	assert.True(t, w.Healthy())
}

func TestWriter_CreateInstrument_Synchronous(t *testing.T) {
	store := newFakeStore()
	w := newTestWriter(t, store)

	require.NoError(t, w.CreateInstrument(journalv1.InstrumentRecord{InstrumentID: 1}))
	// Committed before return, not queued.
	assert.Equal(t, []string{"put_instrument"}, store.appliedOps())
}

func TestWriter_RetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn["put_order"] = 1
	w := newTestWriter(t, store)

	require.NoError(t, w.RecordOrder(orderbookv1.Order{OrderID: 1}))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, []string{"put_order"}, store.appliedOps())
	assert.True(t, w.Healthy())
}

func TestWriter_PoisonEventSkipped(t *testing.T) {
	store := newFakeStore()
	store.failOn["put_order"] = 10 // beyond max retries
	w := newTestWriter(t, store)

	require.NoError(t, w.RecordOrder(orderbookv1.Order{OrderID: 1}))
	// A poison event must not wedge the consumer.
	require.NoError(t, w.RecordTrade(orderbookv1.Trade{}))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, []string{"append_trade"}, store.appliedOps())
	assert.False(t, w.Healthy())
}

func TestWriter_Close_DrainsQueue(t *testing.T) {
	store := newFakeStore()
	w := NewWriter(store, logger.NewNop(), Options{QueueCapacity: 1024, MaxRetries: 1})

	for i := 0; i < 500; i++ {
		require.NoError(t, w.RecordOrder(orderbookv1.Order{OrderID: uint64(i)}))
	}
	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, store.appliedOps(), 500)

	// Enqueue after close is rejected, and a second close is a no-op.
	assert.Error(t, w.RecordOrder(orderbookv1.Order{OrderID: 501}))
	assert.NoError(t, w.Close(context.Background()))
}

func TestWriter_Close_HonoursContext(t *testing.T) {
	store := newFakeStore()
	store.failOn["put_order"] = 1_000_000 // consumer stuck in retry backoff
	w := NewWriter(store, logger.NewNop(), Options{QueueCapacity: 16, MaxRetries: 3})

	require.NoError(t, w.RecordOrder(orderbookv1.Order{OrderID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	// With the consumer sleeping in backoff, a short deadline wins.
	err := w.Close(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}
