package engine

import (
	"context"
	"path/filepath"
	"testing"

	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/internal/usecase/exchange"
	"github.com/akareen/RedleafExchange/pkg/config"
	"github.com/akareen/RedleafExchange/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "test", LogLevel: "error", AdminPartyID: "admin"},
		Store: config.StoreConfig{
			Dir:           filepath.Join(root, "data"),
			QueueCapacity: 1024,
			MaxRetries:    3,
		},
		Broadcast: config.BroadcastConfig{Enabled: false},
		Backup:    config.BackupConfig{Enabled: true, Dir: filepath.Join(root, "backup")},
	}
}

func submit(t *testing.T, eng *Engine, party string, side orderbookv1.Side, otype orderbookv1.OrderType, price, qty int64) exchange.NewOrderResult {
	t.Helper()
	result := eng.Exchange().SubmitOrder(context.Background(), exchange.NewOrderRequest{
		InstrumentID: 100, Side: side, Type: otype,
		PriceCents: price, Quantity: qty, PartyID: party,
	})
	require.Equal(t, exchange.StatusAccepted, result.Status)
	return result
}

// TestEngine_RestartReproducesBookState drives the engine through a realistic
// session, restarts it from the same data directory and checks that live
// state, best prices and the id counter all survive.
func TestEngine_RestartReproducesBookState(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	log := logger.NewNop()

	eng, err := New(ctx, testConfig(root), log)
	require.NoError(t, err)

	created := eng.Exchange().CreateBook(ctx, 100, "redleaf-100", "test instrument", "admin")
	require.Equal(t, exchange.StatusCreated, created.Status)

	// A dead market order (empty book, no liquidity) and, below, a cancelled
	// order both land in the journal but must not be replayed into the book.
	deadMarket := submit(t, eng, "E", orderbookv1.SideSell, orderbookv1.OrderTypeMarket, 0, 50) // id 1
	assert.True(t, deadMarket.Cancelled)
	assert.Empty(t, deadMarket.Trades)

	// A spread plus a partially filled maker.
	submit(t, eng, "A", orderbookv1.SideSell, orderbookv1.OrderTypeGTC, 10_050, 5) // id 2
	submit(t, eng, "B", orderbookv1.SideBuy, orderbookv1.OrderTypeGTC, 10_000, 4)  // id 3
	taker := submit(t, eng, "C", orderbookv1.SideBuy, orderbookv1.OrderTypeGTC, 10_050, 2)
	require.Len(t, taker.Trades, 1)

	cancelled := submit(t, eng, "D", orderbookv1.SideBuy, orderbookv1.OrderTypeGTC, 9_900, 1)
	require.Equal(t, exchange.StatusCancelled,
		eng.Exchange().CancelOrder(ctx, 100, cancelled.OrderID, "D").Status)

	preLive := eng.Exchange().LiveOrders(100)
	preBid, _ := eng.Exchange().BestBid(100)
	preAsk, _ := eng.Exchange().BestAsk(100)
	preNext := eng.Exchange().NextOrderID()
	require.Equal(t, int64(10_000), preBid)
	require.Equal(t, int64(10_050), preAsk)

	require.NoError(t, eng.Shutdown(ctx))

	// Cold start from the journal.
	eng, err = New(ctx, testConfig(root), log)
	require.NoError(t, err)
	defer func() { require.NoError(t, eng.Shutdown(ctx)) }()

	assert.Equal(t, preLive, eng.Exchange().LiveOrders(100))
	assert.Equal(t, preNext, eng.Exchange().NextOrderID())

	bid, ok := eng.Exchange().BestBid(100)
	require.True(t, ok)
	assert.Equal(t, preBid, bid)
	ask, ok := eng.Exchange().BestAsk(100)
	require.True(t, ok)
	assert.Equal(t, preAsk, ask)

	// The rebuilt book keeps matching where the old one left off.
	postTaker := submit(t, eng, "F", orderbookv1.SideSell, orderbookv1.OrderTypeGTC, 10_000, 1)
	require.Len(t, postTaker.Trades, 1)
	assert.Equal(t, uint64(3), postTaker.Trades[0].MakerOrderID)
}

func TestEngine_QueriesServeDurableState(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	log := logger.NewNop()

	eng, err := New(ctx, testConfig(root), log)
	require.NoError(t, err)
	require.Equal(t, exchange.StatusCreated,
		eng.Exchange().CreateBook(ctx, 100, "redleaf-100", "", "admin").Status)

	submit(t, eng, "A", orderbookv1.SideSell, orderbookv1.OrderTypeGTC, 10_000, 5) // id 1
	submit(t, eng, "B", orderbookv1.SideBuy, orderbookv1.OrderTypeGTC, 10_000, 3)  // id 2, trades

	// Drain the durable queue, then reopen for deterministic reads.
	require.NoError(t, eng.Shutdown(ctx))
	eng, err = New(ctx, testConfig(root), log)
	require.NoError(t, err)
	defer func() { require.NoError(t, eng.Shutdown(ctx)) }()

	instruments, err := eng.ListInstruments(ctx)
	require.NoError(t, err)
	require.Len(t, instruments, 1)
	assert.Equal(t, "redleaf-100", instruments[0].Name)
	assert.Equal(t, "admin", instruments[0].CreatedBy)

	history, err := eng.OrderHistory(ctx, 100)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(1), history[0].OrderID)
	assert.Equal(t, uint64(2), history[1].OrderID)
	assert.Equal(t, int64(3), history[0].FilledQuantity)

	live, err := eng.LiveOrders(ctx, 100)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, uint64(1), live[0].OrderID)
	assert.Equal(t, int64(2), live[0].RemainingQuantity)

	trades, err := eng.Trades(ctx, 100)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(3), trades[0].Quantity)
	assert.Equal(t, uint64(1), trades[0].MakerOrderID)

	assert.True(t, eng.Healthy())
}

func TestEngine_RebuildIsIdempotent(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	log := logger.NewNop()

	eng, err := New(ctx, testConfig(root), log)
	require.NoError(t, err)
	require.Equal(t, exchange.StatusCreated,
		eng.Exchange().CreateBook(ctx, 100, "i", "", "admin").Status)
	submit(t, eng, "A", orderbookv1.SideSell, orderbookv1.OrderTypeGTC, 10_000, 5)
	require.NoError(t, eng.Shutdown(ctx))

	// Two cold starts from the same journal prefix give identical state.
	eng, err = New(ctx, testConfig(root), log)
	require.NoError(t, err)
	firstLive := eng.Exchange().LiveOrders(100)
	firstNext := eng.Exchange().NextOrderID()
	require.NoError(t, eng.Shutdown(ctx))

	eng, err = New(ctx, testConfig(root), log)
	require.NoError(t, err)
	defer func() { require.NoError(t, eng.Shutdown(ctx)) }()
	assert.Equal(t, firstLive, eng.Exchange().LiveOrders(100))
	assert.Equal(t, firstNext, eng.Exchange().NextOrderID())
}
