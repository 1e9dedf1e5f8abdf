// Package memory is the in-process publisher used when no Pub/Sub topic is
// configured. It encodes payloads exactly like the Pub/Sub publisher and
// keeps a bounded history for inspection.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultCapacity bounds the retained history when New gets no capacity.
const DefaultCapacity = 1024

// Message is one retained publish.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher keeps the most recent messages. A non-nil Err makes every
// Publish fail.
type Publisher struct {
	mu        sync.RWMutex
	capacity  int
	messages  []Message
	published int64
	Err       error
}

// New returns a Publisher retaining up to capacity messages; values below
// one select DefaultCapacity.
func New(capacity ...int) *Publisher {
	c := DefaultCapacity
	if len(capacity) > 0 && capacity[0] > 0 {
		c = capacity[0]
	}
	return &Publisher{capacity: c}
}

// Publish encodes payload as JSON and retains it, evicting the oldest
// message once the history is full.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.published++
	id := fmt.Sprintf("memory-%d", p.published)
	if len(p.messages) == p.capacity {
		copy(p.messages, p.messages[1:])
		p.messages = p.messages[:len(p.messages)-1]
	}
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Published reports the total number of successful publishes.
func (p *Publisher) Published() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// Close implements the publisher lifecycle; it performs no action.
func (p *Publisher) Close() error { return nil }

// Messages returns the retained history, oldest first.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.messages...)
}
