// SPDX-License-Identifier: Apache-2.0

// Package sink holds the two durable stores every scored transaction is
// written to, plus the dead-letter store for events that cannot be
// processed. Write errors are classified through domain.SinkError so
// the coordinator can decide retry versus dead-letter.
package sink

import (
	"context"

	"github.com/adiadia/fraud-consumer/internal/domain"
)

// Transactional is the row store, the system-of-record for live
// lookups. Write is an idempotent upsert keyed by txn_id: replays
// converge and the later ScoredAt wins if two versions race. The raw
// message body rides along so the as-received payload is retained.
type Transactional interface {
	Write(ctx context.Context, scored domain.ScoredTransaction, raw []byte) error
}

// Analytical is the append-only object store read by the offline query
// service. Object keys are deterministic per (txn, model version), so a
// retried append lands on the same slot instead of accumulating
// duplicates.
type Analytical interface {
	Write(ctx context.Context, scored domain.ScoredTransaction) error
}

// DeadLetter records terminally failed events. Append-only, write-only
// from the pipeline's point of view.
type DeadLetter interface {
	Record(ctx context.Context, rec domain.DeadLetterRecord) error
}
