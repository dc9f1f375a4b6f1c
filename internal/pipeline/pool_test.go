// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adiadia/fraud-consumer/internal/scoring"
	"github.com/adiadia/fraud-consumer/internal/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func poolFixture(src source.EventSource, f *fixture, lanes int) *Pool {
	coord := NewCoordinator(Deps{
		Source:         src,
		Scorer:         f.scorer,
		TxSink:         f.tx,
		Analytics:      f.an,
		DeadLetter:     f.dead,
		Logger:         discardLogger(),
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		Visibility:     time.Minute,
	})
	return NewPool(PoolDeps{
		Coordinator:  coord,
		Source:       src,
		Logger:       discardLogger(),
		Lanes:        lanes,
		BatchSize:    10,
		Visibility:   time.Minute,
		DrainTimeout: time.Second,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestPoolProcessesAllMessages(t *testing.T) {
	src := source.NewMemory()
	for i := 0; i < 5; i++ {
		src.Push([]byte(fmt.Sprintf(
			`{"txn_id":"T%d","amount":100,"merchant_id":"m1","card_hash":"c%d","ts":"2025-06-01T12:00:00Z"}`,
			i, i,
		)))
	}

	f := newFixture()
	f.scorer = scoring.NewEngine("baseline", scoring.DefaultThresholds)
	p := poolFixture(src, f, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return src.AckCount() == 5 })
	cancel()
	<-done

	stats := p.Stats()
	if stats.Acknowledged != 5 {
		t.Fatalf("expected 5 acknowledged, got %d", stats.Acknowledged)
	}
	if stats.InFlight != 0 {
		t.Fatalf("expected no in-flight events after drain, got %d", stats.InFlight)
	}
	if len(f.tx.rows) != 5 {
		t.Fatalf("expected 5 transactional rows, got %d", len(f.tx.rows))
	}
	if len(f.dead.records) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(f.dead.records))
	}
}

func TestPoolPoisonIsolation(t *testing.T) {
	src := source.NewMemory()
	src.Push([]byte(`{"txn_id":"A","amount":100,"merchant_id":"m1","card_hash":"ca","ts":"2025-06-01T12:00:00Z"}`))
	// Missing amount: a poison event that can never score.
	src.Push([]byte(`{"txn_id":"B","merchant_id":"m1","card_hash":"cb","ts":"2025-06-01T12:00:00Z"}`))
	src.Push([]byte(`{"txn_id":"C","amount":100,"merchant_id":"m1","card_hash":"cc","ts":"2025-06-01T12:00:00Z"}`))

	f := newFixture()
	f.scorer = scoring.NewEngine("baseline", scoring.DefaultThresholds)
	p := poolFixture(src, f, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// All three messages leave the queue: two by success, one by
	// dead-letter-then-ack. The poison event delays nothing.
	waitFor(t, func() bool { return src.AckCount() == 3 })
	cancel()
	<-done

	stats := p.Stats()
	if stats.Acknowledged != 2 {
		t.Fatalf("expected 2 acknowledged, got %d", stats.Acknowledged)
	}
	if stats.DeadLettered != 1 {
		t.Fatalf("expected 1 dead-lettered, got %d", stats.DeadLettered)
	}

	if _, ok := f.tx.rows["A"]; !ok {
		t.Fatal("expected row for A")
	}
	if _, ok := f.tx.rows["C"]; !ok {
		t.Fatal("expected row for C")
	}
	if _, ok := f.tx.rows["B"]; ok {
		t.Fatal("expected no row for poison event B")
	}
	if len(f.dead.records) != 1 || f.dead.records[0].TxnID != "B" {
		t.Fatalf("expected dead letter for B, got %+v", f.dead.records)
	}
}

func TestPoolStopsPullingOnCancel(t *testing.T) {
	src := source.NewMemory()
	f := newFixture()
	p := poolFixture(src, f, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}

	// A message pushed after shutdown stays in the queue untouched.
	src.Push([]byte(`{"txn_id":"late"}`))
	if src.AckCount() != 0 {
		t.Fatal("expected no acks after shutdown")
	}
}
