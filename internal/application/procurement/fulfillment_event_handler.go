package procurement

import (
	"context"
	"fmt"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// FulfillmentEventHandler consumes purchase order events from the outbox and
// keeps the audit log and transition metrics.
type FulfillmentEventHandler struct {
	metrics *telemetry.FulfillmentMetrics
	logger  *zap.Logger
}

// NewFulfillmentEventHandler creates a new handler for purchase order events
func NewFulfillmentEventHandler(metrics *telemetry.FulfillmentMetrics, logger *zap.Logger) *FulfillmentEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FulfillmentEventHandler{
		metrics: metrics,
		logger:  logger.Named("fulfillment_events"),
	}
}

// Name identifies the handler when its deliveries are deduplicated
func (h *FulfillmentEventHandler) Name() string {
	return "fulfillment"
}

// EventTypes returns the event types this handler is interested in
func (h *FulfillmentEventHandler) EventTypes() []string {
	return []string{
		procurement.EventTypeOrderCreated,
		procurement.EventTypeOrderStatusChanged,
		procurement.EventTypeReceiptPosted,
		procurement.EventTypeReceiptReversed,
	}
}

// Handle processes one purchase order event
func (h *FulfillmentEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *procurement.OrderCreatedEvent:
		h.logger.Info("order created",
			zap.String("order_id", e.OrderID.String()),
			zap.String("order_number", e.OrderNumber),
			zap.String("supplier_reference", e.SupplierReference),
			zap.Int("line_count", e.LineCount),
		)
	case *procurement.OrderStatusChangedEvent:
		h.metrics.RecordTransition(ctx, string(e.From), string(e.To))
		h.logger.Info("order status changed",
			zap.String("order_id", e.OrderID.String()),
			zap.String("order_number", e.OrderNumber),
			zap.String("from", string(e.From)),
			zap.String("to", string(e.To)),
			zap.String("reason", e.Reason),
		)
	case *procurement.ReceiptPostedEvent:
		h.logger.Info("receipt posted",
			zap.String("order_id", e.OrderID.String()),
			zap.String("receipt_number", e.ReceiptNumber),
			zap.String("receipt_status", string(e.ReceiptStatus)),
			zap.String("order_status", string(e.OrderStatus)),
			zap.Int("lines", len(e.Lines)),
		)
	case *procurement.ReceiptReversedEvent:
		h.logger.Warn("receipt reversed",
			zap.String("order_id", e.OrderID.String()),
			zap.String("receipt_id", e.ReceiptID.String()),
			zap.String("reversed_receipt_id", e.ReversedReceiptID.String()),
			zap.String("order_status", string(e.OrderStatus)),
			zap.String("reason", e.Reason),
		)
	default:
		h.logger.Error("unexpected event type", zap.String("actual", event.EventType()))
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
	return nil
}
