package backup

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(dir, logger.NewNop())
	require.NoError(t, err)
	return w, dir
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func testOrder(orderID uint64) orderbookv1.Order {
	return orderbookv1.Order{
		OrderID:           orderID,
		InstrumentID:      100,
		Side:              orderbookv1.SideSell,
		Type:              orderbookv1.OrderTypeGTC,
		PriceCents:        10_000,
		Quantity:          5,
		RemainingQuantity: 5,
		PartyID:           "A",
		Timestamp:         42,
	}
}

func TestBackup_CreateInstrument_WritesHeaders(t *testing.T) {
	w, dir := newTestWriter(t)
	require.NoError(t, w.CreateInstrument(journalv1.InstrumentRecord{InstrumentID: 100}))
	require.NoError(t, w.Close(context.Background()))

	for _, name := range []string{"orders_100.csv", "trades_100.csv", "cancels_100.csv", "live_events_100.csv"} {
		rows := readCSV(t, filepath.Join(dir, name))
		require.Len(t, rows, 1, name)
	}
	rows := readCSV(t, filepath.Join(dir, "orders_100.csv"))
	assert.Equal(t, orderFields, rows[0])
}

func TestBackup_AppendsOneLinePerEvent(t *testing.T) {
	w, dir := newTestWriter(t)
	require.NoError(t, w.CreateInstrument(journalv1.InstrumentRecord{InstrumentID: 100}))

	require.NoError(t, w.RecordOrder(testOrder(1)))
	require.NoError(t, w.RecordOrder(testOrder(2)))
	require.NoError(t, w.RecordTrade(orderbookv1.Trade{
		InstrumentID: 100, PriceCents: 10_000, Quantity: 3, Timestamp: 43,
		MakerOrderID: 1, MakerPartyID: "A", TakerOrderID: 2, TakerPartyID: "B",
	}))
	require.NoError(t, w.RecordCancel(journalv1.CancelEvent{
		InstrumentID: 100, OrderID: 1, PartyID: "A", Timestamp: 44,
	}))
	require.NoError(t, w.UpsertLiveOrder(testOrder(1)))
	require.NoError(t, w.RemoveLiveOrder(journalv1.LiveOrderRef{InstrumentID: 100, OrderID: 1}))
	require.NoError(t, w.Close(context.Background()))

	orders := readCSV(t, filepath.Join(dir, "orders_100.csv"))
	require.Len(t, orders, 3) // header + 2
	assert.Equal(t, "GTC", orders[1][0])
	assert.Equal(t, "SELL", orders[1][1])
	assert.Equal(t, "100", orders[1][2])
	assert.Equal(t, "1", orders[1][6])

	trades := readCSV(t, filepath.Join(dir, "trades_100.csv"))
	require.Len(t, trades, 2)
	assert.Equal(t, "3", trades[1][2])

	cancels := readCSV(t, filepath.Join(dir, "cancels_100.csv"))
	require.Len(t, cancels, 2)
	assert.Equal(t, []string{"100", "1", "A", "44"}, cancels[1])

	liveEvents := readCSV(t, filepath.Join(dir, "live_events_100.csv"))
	require.Len(t, liveEvents, 3)
	assert.Equal(t, "UPS_LIVE", liveEvents[1][0])
	assert.Equal(t, "REM_LIVE", liveEvents[2][0])
}

func TestBackup_SelfHealsMissingFiles(t *testing.T) {
	w, dir := newTestWriter(t)

	// No CreateInstrument: the append path creates the file with its header.
	require.NoError(t, w.RecordOrder(testOrder(1)))
	require.NoError(t, w.Close(context.Background()))

	rows := readCSV(t, filepath.Join(dir, "orders_100.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, orderFields, rows[0])
}

func TestBackup_NoReplaySurface(t *testing.T) {
	w, _ := newTestWriter(t)
	defer func() { _ = w.Close(context.Background()) }()

	records, err := w.ListInstruments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	called := false
	require.NoError(t, w.IterOrders(context.Background(), 100, func(orderbookv1.Order) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestBackup_RejectsAfterClose(t *testing.T) {
	w, _ := newTestWriter(t)
	require.NoError(t, w.Close(context.Background()))
	assert.Error(t, w.RecordOrder(testOrder(1)))
	assert.NoError(t, w.Close(context.Background()))
}
