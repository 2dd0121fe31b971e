package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	walletevents "github.com/custodianpay/wallet-ledger/internal/models/events"
)

// Handler consumes decoded operation events.
type Handler interface {
	Inspect(ctx context.Context, event walletevents.OperationCompleted)
}

// Consumer reads OperationCompleted events from a topic and hands them to a
// handler, committing offsets only after the handler returns. Delivery is
// therefore at-least-once; the detector's flags are advisory, so an
// occasional duplicate flag is acceptable.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	log     *zap.Logger
}

// NewConsumer creates a consumer-group reader for the topic.
func NewConsumer(brokers []string, groupID, topic string, handler Handler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}),
		handler: handler,
		log:     logger,
	}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var event walletevents.OperationCompleted
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Warn("dropping undecodable operation event", zap.Error(err))
		} else {
			c.handler.Inspect(ctx, event)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warn("commit offset failed", zap.Error(err))
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
