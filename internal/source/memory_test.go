// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"testing"
	"time"
)

func TestMemoryReceiveHidesMessage(t *testing.T) {
	now := time.Now()
	src := NewMemory()
	src.SetNow(func() time.Time { return now })
	src.Push([]byte(`{"txn_id":"T1"}`))

	msgs, err := src.Receive(context.Background(), 10, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	again, err := src.Receive(context.Background(), 10, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected hidden message, got %d", len(again))
	}
}

func TestMemoryRedeliveryAfterVisibilityTimeout(t *testing.T) {
	now := time.Now()
	src := NewMemory()
	src.SetNow(func() time.Time { return now })
	src.Push([]byte(`{"txn_id":"T1"}`))

	first, _ := src.Receive(context.Background(), 10, time.Minute)
	if len(first) != 1 {
		t.Fatalf("expected 1 message, got %d", len(first))
	}

	now = now.Add(61 * time.Second)
	second, _ := src.Receive(context.Background(), 10, time.Minute)
	if len(second) != 1 {
		t.Fatalf("expected redelivery, got %d messages", len(second))
	}
	if second[0].MessageID != first[0].MessageID {
		t.Fatal("expected the same logical message")
	}
	if second[0].ReceiptHandle == first[0].ReceiptHandle {
		t.Fatal("expected a fresh receipt handle on redelivery")
	}

	// The stale handle from the first delivery no longer works.
	if err := src.Acknowledge(context.Background(), first[0].ReceiptHandle); err == nil {
		t.Fatal("expected stale handle to be rejected")
	}
}

func TestMemoryAcknowledgeStopsRedelivery(t *testing.T) {
	now := time.Now()
	src := NewMemory()
	src.SetNow(func() time.Time { return now })
	src.Push([]byte(`{"txn_id":"T1"}`))

	msgs, _ := src.Receive(context.Background(), 10, time.Minute)
	if err := src.Acknowledge(context.Background(), msgs[0].ReceiptHandle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(time.Hour)
	again, _ := src.Receive(context.Background(), 10, time.Minute)
	if len(again) != 0 {
		t.Fatalf("expected no redelivery after ack, got %d", len(again))
	}
	if src.AckCount() != 1 {
		t.Fatalf("expected 1 ack, got %d", src.AckCount())
	}
}

func TestMemoryReleaseMakesImmediatelyVisible(t *testing.T) {
	now := time.Now()
	src := NewMemory()
	src.SetNow(func() time.Time { return now })
	src.Push([]byte(`{"txn_id":"T1"}`))

	msgs, _ := src.Receive(context.Background(), 10, time.Minute)
	if err := src.Release(context.Background(), msgs[0].ReceiptHandle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	again, _ := src.Receive(context.Background(), 10, time.Minute)
	if len(again) != 1 {
		t.Fatalf("expected immediate redelivery after release, got %d", len(again))
	}
	if src.Deliveries(msgs[0].MessageID) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", src.Deliveries(msgs[0].MessageID))
	}
}

func TestMemoryExtendVisibility(t *testing.T) {
	now := time.Now()
	src := NewMemory()
	src.SetNow(func() time.Time { return now })
	src.Push([]byte(`{"txn_id":"T1"}`))

	msgs, _ := src.Receive(context.Background(), 10, time.Minute)
	if err := src.ExtendVisibility(context.Background(), msgs[0].ReceiptHandle, 10*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(5 * time.Minute)
	again, _ := src.Receive(context.Background(), 10, time.Minute)
	if len(again) != 0 {
		t.Fatalf("expected message still hidden after extend, got %d", len(again))
	}
}

func TestMemoryReceiveRespectsMaxBatch(t *testing.T) {
	src := NewMemory()
	for i := 0; i < 5; i++ {
		src.Push([]byte(`{}`))
	}

	msgs, _ := src.Receive(context.Background(), 3, time.Minute)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
}
