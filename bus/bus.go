// Package bus decouples request handling from background work: the
// ingestion pipeline and the conversation summarizer both consume jobs
// published here.
package bus

import (
	"context"
	"errors"
	"sync"
)

// Well-known topics.
const (
	TopicIngest    = "rag.ingest"
	TopicSummarize = "rag.summarize"
)

// Handler processes one message. A non-nil error leaves the message
// uncommitted so the backend can redeliver it.
type Handler func(ctx context.Context, key string, value []byte) error

// Bus is an at-least-once publish/subscribe transport.
type Bus interface {
	// Publish enqueues value under key on topic.
	Publish(ctx context.Context, topic, key string, value []byte) error

	// Consume delivers messages from topic to fn until ctx is
	// cancelled. Consumers sharing a group split the topic between
	// them.
	Consume(ctx context.Context, topic, group string, fn Handler) error

	Close() error
}

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus: closed")

// memTopicBuffer is the per-topic channel capacity of the in-process
// bus.
const memTopicBuffer = 256

type memMessage struct {
	key   string
	value []byte
}

// Memory is an in-process Bus used in tests and single-node setups
// where no broker is available.
type Memory struct {
	mu     sync.Mutex
	topics map[string]chan memMessage
	closed bool
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{topics: make(map[string]chan memMessage)}
}

func (m *Memory) topic(name string) (chan memMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	ch, ok := m.topics[name]
	if !ok {
		ch = make(chan memMessage, memTopicBuffer)
		m.topics[name] = ch
	}
	return ch, nil
}

func (m *Memory) Publish(ctx context.Context, topic, key string, value []byte) error {
	ch, err := m.topic(topic)
	if err != nil {
		return err
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	select {
	case ch <- memMessage{key: key, value: buf}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers messages one at a time. Handler errors requeue the
// message for redelivery, matching broker-backed semantics.
func (m *Memory) Consume(ctx context.Context, topic, _ string, fn Handler) error {
	ch, err := m.topic(topic)
	if err != nil {
		return err
	}
	for {
		select {
		case msg := <-ch:
			if err := fn(ctx, msg.key, msg.value); err != nil {
				// Blocking requeue: a full topic must not lose the
				// message.
				select {
				case ch <- msg:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
