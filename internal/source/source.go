// SPDX-License-Identifier: Apache-2.0

// Package source adapts the external queue the consumer pulls
// transaction events from. Delivery is at-least-once: an unacknowledged
// message becomes visible again after its visibility timeout, so every
// message must be treated as possibly-duplicate downstream.
package source

import (
	"context"
	"time"
)

// Message is one dequeued-but-unacknowledged queue entry. Body is the
// raw payload; decoding and validation happen at the scoring boundary.
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          []byte
}

// EventSource is the narrow queue contract the pipeline consumes.
type EventSource interface {
	// Receive pulls up to maxBatch messages, hiding each for the
	// visibility window. It blocks up to the source's poll wait and
	// returns an empty slice on an idle queue.
	Receive(ctx context.Context, maxBatch int, visibility time.Duration) ([]Message, error)

	// Acknowledge removes the message permanently. Only called once the
	// event reached a terminal state (both sinks durable, or the
	// dead-letter record committed).
	Acknowledge(ctx context.Context, receiptHandle string) error

	// ExtendVisibility pushes the redelivery deadline out by d from now.
	ExtendVisibility(ctx context.Context, receiptHandle string, d time.Duration) error

	// Release makes the message immediately redeliverable instead of
	// waiting out the visibility window.
	Release(ctx context.Context, receiptHandle string) error
}
