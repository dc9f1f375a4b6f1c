// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownReceipt = errors.New("unknown receipt handle")

// MemorySource is an in-process EventSource with real visibility-timeout
// semantics. Used by tests and for running the consumer without AWS.
type MemorySource struct {
	mu       sync.Mutex
	messages []*memMessage
	now      func() time.Time

	acks int
}

type memMessage struct {
	id         string
	body       []byte
	handle     string
	visibleAt  time.Time
	deliveries int
	acked      bool
}

func NewMemory() *MemorySource {
	return &MemorySource{now: time.Now}
}

// Push enqueues a message body for delivery.
func (m *MemorySource) Push(body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, &memMessage{
		id:   uuid.NewString(),
		body: body,
	})
}

func (m *MemorySource) Receive(ctx context.Context, maxBatch int, visibility time.Duration) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Message, 0, maxBatch)
	for _, msg := range m.messages {
		if len(out) >= maxBatch {
			break
		}
		if msg.acked || msg.visibleAt.After(now) {
			continue
		}

		// Every delivery issues a fresh receipt handle; stale handles
		// from an earlier delivery stop working, as on a real queue.
		msg.handle = uuid.NewString()
		msg.visibleAt = now.Add(visibility)
		msg.deliveries++

		out = append(out, Message{
			MessageID:     msg.id,
			ReceiptHandle: msg.handle,
			Body:          msg.body,
		})
	}

	return out, nil
}

func (m *MemorySource) Acknowledge(ctx context.Context, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := m.byHandle(receiptHandle)
	if err != nil {
		return err
	}
	msg.acked = true
	m.acks++
	return nil
}

func (m *MemorySource) ExtendVisibility(ctx context.Context, receiptHandle string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := m.byHandle(receiptHandle)
	if err != nil {
		return err
	}
	msg.visibleAt = m.now().Add(d)
	return nil
}

func (m *MemorySource) Release(ctx context.Context, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := m.byHandle(receiptHandle)
	if err != nil {
		return err
	}
	msg.visibleAt = m.now()
	return nil
}

func (m *MemorySource) byHandle(receiptHandle string) (*memMessage, error) {
	for _, msg := range m.messages {
		if !msg.acked && msg.handle == receiptHandle {
			return msg, nil
		}
	}
	return nil, ErrUnknownReceipt
}

// AckCount reports how many messages were acknowledged.
func (m *MemorySource) AckCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks
}

// Deliveries reports how many times the message with the given id was
// handed to a consumer.
func (m *MemorySource) Deliveries(messageID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.id == messageID {
			return msg.deliveries
		}
	}
	return 0
}

// SetNow overrides the clock. Test hook.
func (m *MemorySource) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

var _ EventSource = (*MemorySource)(nil)
