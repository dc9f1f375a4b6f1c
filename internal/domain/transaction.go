// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

// Decision is the label the scoring engine attaches to a transaction.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReview  Decision = "review"
	DecisionDecline Decision = "decline"
)

// TransactionEvent is the unit of work pulled from the queue. It is
// immutable once received; the producer assigns TxnID.
type TransactionEvent struct {
	TxnID      string         `json:"txn_id"`
	Amount     float64        `json:"amount"`
	MerchantID string         `json:"merchant_id"`
	AccountID  string         `json:"account_id,omitempty"`
	CardHash   string         `json:"card_hash"`
	Category   string         `json:"category,omitempty"`
	OccurredAt time.Time      `json:"ts"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ScoredTransaction is a TransactionEvent plus the scoring output.
// Created once per event; never mutated. It may be written more than
// once under redelivery, which is why ScoredAt participates in the
// sinks' last-write-wins semantics.
type ScoredTransaction struct {
	TransactionEvent

	Score        float64   `json:"score"`
	Decision     Decision  `json:"decision"`
	ModelVersion string    `json:"model_version"`
	ScoredAt     time.Time `json:"scored_at"`
}

// ParseTransactionEvent decodes a raw queue message body. A body that
// is not valid JSON is unscoreable input, so the error is a
// *ScoringError rather than a transient failure.
func ParseTransactionEvent(body []byte) (TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return TransactionEvent{}, &ScoringError{Field: "body", Reason: "invalid json: " + err.Error()}
	}
	return ev, nil
}
