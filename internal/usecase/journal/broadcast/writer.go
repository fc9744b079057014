package broadcast

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"

	journalv1 "github.com/akareen/RedleafExchange/internal/domain/journal/v1"
	orderbookv1 "github.com/akareen/RedleafExchange/internal/domain/orderbook/v1"
	"github.com/akareen/RedleafExchange/pkg/errors"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

// Publisher is the transport a Writer publishes envelopes to.
// *kafka.Writer satisfies it.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer publishes ORDER, TRADE and CANCEL events as self-describing JSON
// envelopes on a one-way broadcast topic. Lossy by design: no acks, no
// retries; subscribers that miss a message resynchronize from durable state.
// Live-projection operations are not broadcast.
type Writer struct {
	publisher Publisher
	log       *logger.Logger
}

// Config configures the Kafka broadcast.
type Config struct {
	Brokers []string
	Topic   string
}

// NewWriter creates a broadcast writer on a fire-and-forget Kafka writer.
func NewWriter(config Config, log *logger.Logger) *Writer {
	kafkaWriter := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Async:        true,
		RequiredAcks: kafka.RequireNone,
		Completion: func(_ []kafka.Message, err error) {
			if err != nil {
				log.Error(errors.Wrap(err, "broadcast publish failed").WithCode(errors.BroadcastPublishError))
			}
		},
	}
	return &Writer{publisher: kafkaWriter, log: log}
}

// NewWriterWithPublisher creates a broadcast writer over a custom transport.
func NewWriterWithPublisher(publisher Publisher, log *logger.Logger) *Writer {
	return &Writer{publisher: publisher, log: log}
}

// CreateInstrument is not broadcast; subscribers learn instruments from
// durable state.
func (w *Writer) CreateInstrument(journalv1.InstrumentRecord) error { return nil }

// RecordOrder publishes a full order snapshot.
func (w *Writer) RecordOrder(order orderbookv1.Order) error {
	w.publish(journalv1.EventKindOrder, order.InstrumentID, order)
	return nil
}

// RecordTrade publishes a trade.
func (w *Writer) RecordTrade(trade orderbookv1.Trade) error {
	w.publish(journalv1.EventKindTrade, trade.InstrumentID, trade)
	return nil
}

// RecordCancel publishes a cancel event.
func (w *Writer) RecordCancel(cancel journalv1.CancelEvent) error {
	w.publish(journalv1.EventKindCancel, cancel.InstrumentID, cancel)
	return nil
}

// UpsertLiveOrder is not broadcast.
func (w *Writer) UpsertLiveOrder(orderbookv1.Order) error { return nil }

// RemoveLiveOrder is not broadcast.
func (w *Writer) RemoveLiveOrder(journalv1.LiveOrderRef) error { return nil }

// UpdateOrderQuantity is not broadcast.
func (w *Writer) UpdateOrderQuantity(journalv1.QuantityUpdate) error { return nil }

// IterOrders yields nothing: the broadcast stream does not participate in replay.
func (w *Writer) IterOrders(context.Context, uint64, func(orderbookv1.Order) error) error {
	return nil
}

// ListInstruments yields nothing: the broadcast stream does not participate in replay.
func (w *Writer) ListInstruments(context.Context) ([]journalv1.InstrumentRecord, error) {
	return nil, nil
}

// Close closes the underlying transport.
func (w *Writer) Close(context.Context) error {
	return w.publisher.Close()
}

func (w *Writer) publish(kind journalv1.EventKind, instrumentID uint64, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		w.log.Error(errors.Wrap(err, "marshal broadcast body").WithCode(errors.BroadcastPublishError),
			logger.Field{Key: "kind", Value: string(kind)},
		)
		return
	}
	envelope := journalv1.Envelope{
		EventID:      ulid.Make().String(),
		Kind:         kind,
		InstrumentID: instrumentID,
		Body:         buf,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		w.log.Error(errors.Wrap(err, "marshal broadcast envelope").WithCode(errors.BroadcastPublishError),
			logger.Field{Key: "kind", Value: string(kind)},
		)
		return
	}
	if err := w.publisher.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(envelope.EventID),
		Value: payload,
	}); err != nil {
		w.log.Error(errors.Wrap(err, "broadcast publish failed").WithCode(errors.BroadcastPublishError),
			logger.Field{Key: "kind", Value: string(kind)},
		)
	}
}
