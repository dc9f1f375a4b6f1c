// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adiadia/fraud-consumer/internal/domain"
)

// PostgresDeadLetter persists dead-letter records. It lives in the same
// database as the transactional sink but is a separate append-only
// table, outside the two primary stores.
type PostgresDeadLetter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresDeadLetter(pool *pgxpool.Pool, logger *slog.Logger) *PostgresDeadLetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeadLetter{pool: pool, logger: logger}
}

func (d *PostgresDeadLetter) Record(ctx context.Context, rec domain.DeadLetterRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO dead_letters (id, txn_id, stage, reason, attempts, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID,
		rec.TxnID,
		rec.Stage,
		rec.Reason,
		rec.Attempts,
		rec.Payload,
		rec.CreatedAt,
	)
	if err != nil {
		d.logger.Error("dead letter insert failed",
			"txn_id", rec.TxnID,
			"stage", rec.Stage,
			"error", err,
		)
		return classifyPg("dead_letter", err)
	}

	return nil
}

// List returns the most recent dead-letter records for the ops
// endpoint. Payloads are included so a poison message can be inspected.
func (d *PostgresDeadLetter) List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, txn_id, stage, reason, attempts, payload, created_at
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		d.logger.Error("dead letter list query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DeadLetterRecord, 0, limit)
	for rows.Next() {
		var rec domain.DeadLetterRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TxnID,
			&rec.Stage,
			&rec.Reason,
			&rec.Attempts,
			&rec.Payload,
			&rec.CreatedAt,
		); err != nil {
			d.logger.Error("scan dead letter row failed", "error", err)
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

var _ DeadLetter = (*PostgresDeadLetter)(nil)
