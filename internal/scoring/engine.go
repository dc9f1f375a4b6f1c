// SPDX-License-Identifier: Apache-2.0

// Package scoring computes a fraud-risk score and decision label for a
// transaction. Scoring is pure: the same event under the same model
// version always produces the same score, which is what makes replay
// after redelivery safe.
package scoring

import (
	"crypto/sha256"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/adiadia/fraud-consumer/internal/domain"
)

// Scorer is the contract the pipeline consumes.
type Scorer interface {
	Score(ev domain.TransactionEvent) (domain.ScoredTransaction, error)
	ModelVersion() string
}

// Engine is the baseline heuristic model: a deterministic hash of the
// card fingerprint blended with the normalized amount.
type Engine struct {
	baseVersion string
	thresholds  atomic.Pointer[Thresholds]
	now         func() time.Time
}

func NewEngine(modelVersion string, t Thresholds) *Engine {
	e := &Engine{
		baseVersion: modelVersion,
		now:         time.Now,
	}
	e.thresholds.Store(&t)
	return e
}

// ModelVersion is the base model plus the thresholds version, since the
// decision label depends on both.
func (e *Engine) ModelVersion() string {
	return e.baseVersion + "+" + e.thresholds.Load().Version
}

// SetThresholds atomically swaps the decision cut-offs (hot reload).
func (e *Engine) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.thresholds.Store(&t)
	return nil
}

// Score validates the event and produces the scored record. Validation
// failures are *domain.ScoringError: terminal, never retried.
func (e *Engine) Score(ev domain.TransactionEvent) (domain.ScoredTransaction, error) {
	if ev.TxnID == "" {
		return domain.ScoredTransaction{}, &domain.ScoringError{Field: "txn_id", Reason: "missing"}
	}
	if ev.CardHash == "" {
		return domain.ScoredTransaction{}, &domain.ScoringError{Field: "card_hash", Reason: "missing"}
	}
	if ev.Amount <= 0 {
		return domain.ScoredTransaction{}, &domain.ScoringError{Field: "amount", Reason: "missing or non-positive"}
	}
	if ev.OccurredAt.IsZero() {
		return domain.ScoredTransaction{}, &domain.ScoringError{Field: "ts", Reason: "missing"}
	}

	score := riskScore(ev)
	t := e.thresholds.Load()

	return domain.ScoredTransaction{
		TransactionEvent: ev,
		Score:            score,
		Decision:         t.Decide(score),
		ModelVersion:     e.ModelVersion(),
		ScoredAt:         e.now().UTC(),
	}, nil
}

// riskScore blends a stable per-card hash bucket with the amount
// normalized against a 500-unit reference, clamped to 1.0.
func riskScore(ev domain.TransactionEvent) float64 {
	sum := sha256.Sum256([]byte(ev.CardHash))
	bucket := new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), big.NewInt(100)).Int64()

	base := ev.Amount / 500.0
	score := 0.3*base + 0.7*(float64(bucket)/100.0)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

var _ Scorer = (*Engine)(nil)
