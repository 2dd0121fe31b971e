// Package inproc delivers operation events to the anomaly detector inside
// the same process, for deployments without a broker and for tests. It
// keeps the same contract as the Kafka pair: delivery happens outside the
// mutation's atomic scope and a full queue never blocks the caller.
package inproc

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	walletevents "github.com/custodianpay/wallet-ledger/internal/models/events"
)

// Handler consumes decoded operation events.
type Handler interface {
	Inspect(ctx context.Context, event walletevents.OperationCompleted)
}

// Dispatcher buffers events on a channel and drains them on a worker
// goroutine.
type Dispatcher struct {
	ch      chan walletevents.OperationCompleted
	handler Handler
	log     *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(handler Handler, buffer int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		ch:      make(chan walletevents.OperationCompleted, buffer),
		handler: handler,
		log:     logger,
	}
}

// Run drains the queue until the context is cancelled, then processes
// whatever is already buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.handler.Inspect(ctx, event)
		case <-ctx.Done():
			for {
				select {
				case event := <-d.ch:
					d.handler.Inspect(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Publish enqueues an event. A full buffer drops the event rather than
// blocking the mutation path; the loss is logged.
func (d *Dispatcher) Publish(ctx context.Context, topic string, event any) error {
	op, ok := event.(walletevents.OperationCompleted)
	if !ok {
		return errors.Errorf("unexpected event type %T on topic %s", event, topic)
	}

	select {
	case d.ch <- op:
		return nil
	default:
		d.log.Warn("event buffer full, dropping anomaly notification",
			zap.String("entry_id", op.EntryID))
		return nil
	}
}

// Wait blocks until the worker goroutine has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

var _ interfaces.EventPublisher = (*Dispatcher)(nil)
