// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/fraud-consumer/internal/domain"
	"github.com/adiadia/fraud-consumer/internal/pipeline"
)

// StatsProvider reports the worker pool's live counters.
type StatsProvider interface {
	Stats() pipeline.Stats
}

// DeadLetterLister exposes recent dead-letter records read-only.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error)
}

// HealthChecker verifies a downstream dependency is usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}
