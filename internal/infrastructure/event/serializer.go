package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/erp/procurement/internal/domain/shared"
)

// ErrUnknownEventType is returned for payloads whose type was never registered
var ErrUnknownEventType = errors.New("unknown event type")

// ErrUnsupportedSchemaVersion is returned for payloads written by a newer schema
var ErrUnsupportedSchemaVersion = errors.New("unsupported event schema version")

type registeredEvent struct {
	typ           reflect.Type
	schemaVersion int
}

// schemaVersioned is implemented by events embedding shared.BaseDomainEvent
type schemaVersioned interface {
	SchemaVersion() int
}

// EventSerializer converts domain events to and from their JSON outbox payloads
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]registeredEvent
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]registeredEvent),
	}
}

// Register maps eventType to the Go type of eventInstance. The highest schema
// version accepted on read is the one a freshly built instance reports.
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	version := 1
	if v, ok := eventInstance.(schemaVersioned); ok && v.SchemaVersion() > version {
		version = v.SchemaVersion()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[eventType] = registeredEvent{typ: t, schemaVersion: version}
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize rebuilds the registered event type from its payload
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	reg, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	eventPtr := reflect.New(reg.typ).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("%s does not implement DomainEvent", reg.typ)
	}

	if v, ok := event.(schemaVersioned); ok && v.SchemaVersion() > reg.schemaVersion {
		return nil, fmt.Errorf("%w: %s v%d, this build reads up to v%d",
			ErrUnsupportedSchemaVersion, eventType, v.SchemaVersion(), reg.schemaVersion)
	}

	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types in name order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
