// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline stage at which an event was dead-lettered.
const (
	StageScoring        = "scoring"
	StageTxWrite        = "tx_write"
	StageAnalyticsWrite = "analytics_write"
)

// DeadLetterRecord is the terminal record for an event that could not
// be processed. Payload is the message body as received, kept verbatim
// because it may be the reason the event was unscoreable.
type DeadLetterRecord struct {
	ID        uuid.UUID `json:"id"`
	TxnID     string    `json:"txn_id,omitempty"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
