package event

import (
	"github.com/erp/procurement/internal/domain/procurement"
)

// RegisterAllEvents registers every purchase order event with the serializer
// so the outbox processor can rebuild them from stored payloads
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(procurement.EventTypeOrderCreated, &procurement.OrderCreatedEvent{})
	serializer.Register(procurement.EventTypeOrderStatusChanged, &procurement.OrderStatusChangedEvent{})
	serializer.Register(procurement.EventTypeReceiptPosted, &procurement.ReceiptPostedEvent{})
	serializer.Register(procurement.EventTypeReceiptReversed, &procurement.ReceiptReversedEvent{})
}
