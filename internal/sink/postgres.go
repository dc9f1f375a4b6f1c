// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adiadia/fraud-consumer/internal/domain"
)

const sinkTransactional = "transactional"

// PostgresSink upserts scored transactions into the row store. Both the
// raw payload (tx_raw) and the scored record (tx_scored) are written in
// one transaction, so a replay can never leave one without the other.
type PostgresSink struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	timeout time.Duration
}

func NewPostgres(pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &PostgresSink{
		pool:    pool,
		logger:  logger,
		timeout: timeout,
	}
}

func (s *PostgresSink) Write(ctx context.Context, scored domain.ScoredTransaction, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPg(sinkTransactional, err)
	}
	defer tx.Rollback(ctx)

	if !json.Valid(raw) {
		// Should not happen past the scoring boundary; keep the row
		// writable anyway.
		raw, _ = json.Marshal(scored.TransactionEvent)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO tx_raw (txn_id, amount, merchant_id, ts, payload)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (txn_id) DO NOTHING
	`,
		scored.TxnID,
		scored.Amount,
		scored.MerchantID,
		scored.OccurredAt,
		raw,
	); err != nil {
		s.logger.Error("tx_raw insert failed", "txn_id", scored.TxnID, "error", err)
		return classifyPg(sinkTransactional, err)
	}

	features, _ := json.Marshal(scored.Attributes)

	// Last-write-wins keyed by txn_id, with scored_at as the tiebreak:
	// an older scored version never overwrites a newer one.
	if _, err := tx.Exec(ctx, `
		INSERT INTO tx_scored (txn_id, ts, amount, merchant_id, score, decision, model_version, scored_at, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (txn_id) DO UPDATE SET
			score         = EXCLUDED.score,
			decision      = EXCLUDED.decision,
			model_version = EXCLUDED.model_version,
			scored_at     = EXCLUDED.scored_at,
			features      = EXCLUDED.features,
			updated_at    = NOW()
		WHERE tx_scored.scored_at <= EXCLUDED.scored_at
	`,
		scored.TxnID,
		scored.OccurredAt,
		scored.Amount,
		scored.MerchantID,
		scored.Score,
		scored.Decision,
		scored.ModelVersion,
		scored.ScoredAt,
		features,
	); err != nil {
		s.logger.Error("tx_scored upsert failed", "txn_id", scored.TxnID, "error", err)
		return classifyPg(sinkTransactional, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPg(sinkTransactional, err)
	}

	return nil
}

// classifyPg maps a pgx error onto the retryable/fatal taxonomy.
// Integrity, data, and syntax violations cannot succeed on retry;
// connectivity, resource, and shutdown conditions can.
func classifyPg(sink string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "22"), // data exception
			strings.HasPrefix(pgErr.Code, "23"), // integrity violation
			strings.HasPrefix(pgErr.Code, "28"), // invalid authorization
			strings.HasPrefix(pgErr.Code, "42"): // syntax / undefined object
			return domain.FatalSink(sink, err)
		}
		return domain.RetryableSink(sink, err)
	}

	// Timeouts and broken connections are transient.
	return domain.RetryableSink(sink, err)
}

var _ Transactional = (*PostgresSink)(nil)
