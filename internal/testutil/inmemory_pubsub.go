package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/paypal-ipn/internal/pubsub"
	"github.com/flexprice/paypal-ipn/internal/types"
)

var _ pubsub.PubSub = (*InMemoryPubSub)(nil)

// InMemoryPubSub keeps every published message per topic for assertions
type InMemoryPubSub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *message.Message
	messages    map[string][]*message.Message
}

// NewInMemoryPubSub creates a new instance of InMemoryPubSub
func NewInMemoryPubSub() *InMemoryPubSub {
	return &InMemoryPubSub{
		subscribers: make(map[string][]chan *message.Message),
		messages:    make(map[string][]*message.Message),
	}
}

func (ps *InMemoryPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.messages[topic] = append(ps.messages[topic], msg)
	for _, ch := range ps.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// slow subscribers miss messages; the stored copy is what tests assert on
		}
	}
	return nil
}

func (ps *InMemoryPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ch := make(chan *message.Message, 100)
	ps.subscribers[topic] = append(ps.subscribers[topic], ch)
	return ch, nil
}

func (ps *InMemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, subscribers := range ps.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}
	ps.subscribers = make(map[string][]chan *message.Message)
	return nil
}

// GetMessages returns all messages published to a topic
func (ps *InMemoryPubSub) GetMessages(topic string) []*message.Message {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]*message.Message, len(ps.messages[topic]))
	copy(out, ps.messages[topic])
	return out
}

// EventNames decodes the domain events of a topic and returns their names in publish order
func (ps *InMemoryPubSub) EventNames(topic string) []string {
	var names []string
	for _, msg := range ps.GetMessages(topic) {
		var event types.DomainEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			continue
		}
		names = append(names, event.EventName)
	}
	return names
}

// ClearMessages clears all stored messages
func (ps *InMemoryPubSub) ClearMessages() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.messages = make(map[string][]*message.Message)
}
