package engine

import (
	"context"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/internal/infrastructure/pebblestore"
	"github.com/akareen/RedleafExchange/internal/usecase/exchange"
	"github.com/akareen/RedleafExchange/internal/usecase/journal/backup"
	"github.com/akareen/RedleafExchange/internal/usecase/journal/broadcast"
	"github.com/akareen/RedleafExchange/internal/usecase/journal/composite"
	"github.com/akareen/RedleafExchange/internal/usecase/journal/durable"
	"github.com/akareen/RedleafExchange/pkg/config"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

// Engine assembles the exchange process: the pebble store, the writer
// pipeline (durable primary, optional broadcast and backup secondaries
// behind the composite) and the Exchange itself. Rebuild runs inside New,
// so a returned Engine is ready to serve.
type Engine struct {
	store    *pebblestore.Store
	durable  *durable.Writer
	writer   *composite.Writer
	exchange *exchange.Exchange
	log      *logger.Logger
}

// New builds the engine from configuration and replays the journal.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Engine, error) {
	store, err := pebblestore.Open(cfg.Store.Dir, log)
	if err != nil {
		return nil, err
	}

	durableWriter := durable.NewWriter(store, log, durable.Options{
		QueueCapacity: cfg.Store.QueueCapacity,
		MaxRetries:    cfg.Store.MaxRetries,
	})

	writers := []journalv1.Writer{durableWriter}
	if cfg.Broadcast.Enabled {
		writers = append(writers, broadcast.NewWriter(broadcast.Config{
			Brokers: cfg.Broadcast.Brokers,
			Topic:   cfg.Broadcast.Topic,
		}, log))
	}
	if cfg.Backup.Enabled {
		backupWriter, err := backup.NewWriter(cfg.Backup.Dir, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		writers = append(writers, backupWriter)
	}

	compositeWriter := composite.NewWriter(log, writers...)
	ex := exchange.New(compositeWriter, log)

	counterFloor, err := store.NextOrderID()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := ex.Rebuild(ctx, counterFloor); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Engine{
		store:    store,
		durable:  durableWriter,
		writer:   compositeWriter,
		exchange: ex,
		log:      log,
	}, nil
}

// Exchange returns the invocation surface for collaborators.
func (e *Engine) Exchange() *exchange.Exchange {
	return e.exchange
}

// Healthy reports whether the durable writer has kept up with every event.
func (e *Engine) Healthy() bool {
	return e.durable.Healthy()
}

// ListInstruments serves the instrument stream from durable state.
func (e *Engine) ListInstruments(ctx context.Context) ([]journalv1.InstrumentRecord, error) {
	return e.store.ListInstruments(ctx)
}

// OrderHistory serves the full order journal for an instrument, ascending
// by order id.
func (e *Engine) OrderHistory(ctx context.Context, instrumentID uint64) ([]orderbookv1.Order, error) {
	var orders []orderbookv1.Order
	err := e.store.IterOrders(ctx, instrumentID, func(order orderbookv1.Order) error {
		orders = append(orders, order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// LiveOrders serves the open-order projection for an instrument.
func (e *Engine) LiveOrders(ctx context.Context, instrumentID uint64) ([]orderbookv1.Order, error) {
	return e.store.ListLiveOrders(ctx, instrumentID)
}

// Trades serves the trade journal for an instrument, ascending by timestamp.
func (e *Engine) Trades(ctx context.Context, instrumentID uint64) ([]orderbookv1.Trade, error) {
	return e.store.ListTrades(ctx, instrumentID)
}

// Shutdown drains the writer pipeline and closes the store. Callers quiesce
// request intake first; in-flight submissions finish under their book locks
// before the drain observes the queue empty.
func (e *Engine) Shutdown(ctx context.Context) error {
	writerErr := e.writer.Close(ctx)
	if writerErr != nil {
		e.log.Error(errors.Wrap(writerErr, "writer drain failed"))
	}
	if err := e.store.Close(); err != nil {
		return errors.Wrap(err, "close store")
	}
	return writerErr
}
