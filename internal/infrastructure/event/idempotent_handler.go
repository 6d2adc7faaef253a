package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DeliveryCounter tallies what idempotent handlers did with the order events
// the outbox relayed to them. One counter may be shared by several handlers.
type DeliveryCounter struct {
	handled    atomic.Int64
	redelivery atomic.Int64
	failed     atomic.Int64
}

// DeliveryStats is a point-in-time copy of a DeliveryCounter
type DeliveryStats struct {
	Handled     int64 `json:"handled"`
	Redelivered int64 `json:"redelivered"`
	Failed      int64 `json:"failed"`
}

func (c *DeliveryCounter) Snapshot() DeliveryStats {
	return DeliveryStats{
		Handled:     c.handled.Load(),
		Redelivered: c.redelivery.Load(),
		Failed:      c.failed.Load(),
	}
}

// IdempotentHandler runs a subscriber at most once per order event. The
// outbox delivers at least once: a crash between publishing and MarkSent
// replays the row, and a ReceiptPosted must not be counted twice.
//
// Claims are keyed by consumer and event ID, so two subscribers sharing one
// store each see every event.
type IdempotentHandler struct {
	handler  shared.EventHandler
	store    shared.IdempotencyStore
	consumer string
	config   shared.IdempotencyConfig
	counter  *DeliveryCounter
	logger   *zap.Logger
}

type IdempotentHandlerOption func(*IdempotentHandler)

func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = config }
}

// WithDeliveryCounter reports into a counter shared with other handlers
func WithDeliveryCounter(counter *DeliveryCounter) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.counter = counter }
}

// WithConsumer overrides the consumer name used to namespace claims
func WithConsumer(name string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.consumer = name }
}

// NewIdempotentHandler wraps handler. The consumer name defaults to the
// handler's Name() when it has one, else its type.
func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &IdempotentHandler{
		handler:  handler,
		store:    store,
		consumer: consumerName(handler),
		config:   shared.DefaultIdempotencyConfig(),
		counter:  &DeliveryCounter{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logger.With(zap.String("consumer", h.consumer))
	return h
}

func consumerName(handler shared.EventHandler) string {
	if named, ok := handler.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", handler)
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Consumer returns the name claims are namespaced under
func (h *IdempotentHandler) Consumer() string {
	return h.consumer
}

func (h *IdempotentHandler) Stats() DeliveryStats {
	return h.counter.Snapshot()
}

func (h *IdempotentHandler) claimKey(event shared.DomainEvent) string {
	return h.consumer + ":" + event.EventID().String()
}

// Handle claims the event for this consumer and runs the wrapped handler. A
// failed run gives the claim back so the outbox retry is handled, not skipped.
// When the store is unreachable the event is handled unclaimed.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	key := h.claimKey(event)
	log := h.logger.With(append(logger.Event(event.EventID(), event.EventType()), logger.OrderID(event.AggregateID()))...)

	claimed, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	if err != nil {
		log.Warn("Event claim failed, handling without it", zap.Error(err))
	} else if !claimed {
		h.counter.redelivery.Add(1)
		log.Debug("Redelivered event skipped")
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.counter.failed.Add(1)
		if err := h.store.Release(ctx, key); err != nil {
			log.Warn("Event claim could not be released", zap.Error(err))
		}
		return err
	}
	h.counter.handled.Add(1)
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
