// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/adiadia/fraud-consumer/internal/domain"
)

func sampleScored() domain.ScoredTransaction {
	return domain.ScoredTransaction{
		TransactionEvent: domain.TransactionEvent{
			TxnID:      "T1",
			Amount:     500,
			MerchantID: "m7",
			CardHash:   "c0ffee",
			OccurredAt: time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC),
		},
		Score:        0.92,
		Decision:     domain.DecisionReview,
		ModelVersion: "baseline+t1",
		ScoredAt:     time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC),
	}
}

func TestObjectKeyDeterministic(t *testing.T) {
	scored := sampleScored()

	key := ObjectKey(scored)
	want := "tx/dt=2025-06-01/hr=14/T1-baseline_t1.json.gz"
	if key != want {
		t.Fatalf("expected key %s, got %s", want, key)
	}

	// Same (txn, model version) always lands on the same slot,
	// regardless of when the retry scored it.
	retry := scored
	retry.ScoredAt = retry.ScoredAt.Add(3 * time.Hour)
	if ObjectKey(retry) != key {
		t.Fatal("expected retried write to reuse the same object key")
	}
}

func TestObjectKeyPartitionsByEventTime(t *testing.T) {
	scored := sampleScored()
	scored.OccurredAt = time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)

	key := ObjectKey(scored)
	want := "tx/dt=2025-06-02/hr=03/T1-baseline_t1.json.gz"
	if key != want {
		t.Fatalf("expected key %s, got %s", want, key)
	}
}

func TestEncodeObjectRoundTrip(t *testing.T) {
	scored := sampleScored()

	body, err := encodeObject(scored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("expected gzip body: %v", err)
	}
	line, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if line[len(line)-1] != '\n' {
		t.Fatal("expected trailing newline for JSON-lines consumers")
	}

	var decoded domain.ScoredTransaction
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("decode object body: %v", err)
	}
	if decoded.TxnID != "T1" || decoded.Score != 0.92 || decoded.Decision != domain.DecisionReview {
		t.Fatalf("unexpected decoded record: %+v", decoded)
	}
}
