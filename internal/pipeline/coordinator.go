// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the per-event state machine:
//
//	Received → Scored → TxWritten → AnalyticsWritten → Acknowledged
//
// with failure branches into retry or dead-letter. The transactional
// write always precedes the analytical write: the row store is the
// system-of-record for live correctness and must never lag behind
// analytics. The source message is acknowledged only after both sinks
// accepted the write, or after the dead-letter record committed; a
// crash anywhere before that point redelivers the event and the whole
// pipeline replays idempotently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/fraud-consumer/internal/domain"
	"github.com/adiadia/fraud-consumer/internal/metrics"
	"github.com/adiadia/fraud-consumer/internal/scoring"
	"github.com/adiadia/fraud-consumer/internal/sink"
	"github.com/adiadia/fraud-consumer/internal/source"
)

// Outcome is the terminal state an event reached.
type Outcome string

const (
	// OutcomeAcknowledged: both sinks durable, message removed.
	OutcomeAcknowledged Outcome = "acknowledged"
	// OutcomeDeadLettered: terminal failure recorded, message removed.
	OutcomeDeadLettered Outcome = "dead_lettered"
	// OutcomeReleased: nothing committed to a terminal state; the
	// message goes back to the queue for redelivery.
	OutcomeReleased Outcome = "released"
)

type Deps struct {
	Source     source.EventSource
	Scorer     scoring.Scorer
	TxSink     sink.Transactional
	Analytics  sink.Analytical
	DeadLetter sink.DeadLetter
	Logger     *slog.Logger

	// MaxAttempts is the retry ceiling per sink (attempts, not
	// re-tries: MaxAttempts=3 means at most 3 calls).
	MaxAttempts int
	// RetryBaseDelay is the first backoff step; each further attempt
	// doubles it, capped at maxBackoff.
	RetryBaseDelay time.Duration
	// Visibility is added when extending a message's redelivery
	// deadline ahead of a backoff sleep.
	Visibility time.Duration
}

type Coordinator struct {
	src        source.EventSource
	scorer     scoring.Scorer
	txSink     sink.Transactional
	analytics  sink.Analytical
	deadLetter sink.DeadLetter
	logger     *slog.Logger

	maxAttempts    int
	retryBaseDelay time.Duration
	visibility     time.Duration
}

const maxBackoff = 30 * time.Second

func NewCoordinator(deps Deps) *Coordinator {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	maxAtt := deps.MaxAttempts
	if maxAtt <= 0 {
		maxAtt = 5
	}

	baseDelay := deps.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	visibility := deps.Visibility
	if visibility <= 0 {
		visibility = 60 * time.Second
	}

	return &Coordinator{
		src:            deps.Source,
		scorer:         deps.Scorer,
		txSink:         deps.TxSink,
		analytics:      deps.Analytics,
		deadLetter:     deps.DeadLetter,
		logger:         l,
		maxAttempts:    maxAtt,
		retryBaseDelay: baseDelay,
		visibility:     visibility,
	}
}

// Process drives one message to a terminal state. It never returns an
// error: every failure mode maps onto a terminal outcome or a release.
func (c *Coordinator) Process(ctx context.Context, msg source.Message) Outcome {
	// Received → Scored. Parse and scoring failures are terminal:
	// retrying unscoreable input cannot change the outcome.
	ev, err := domain.ParseTransactionEvent(msg.Body)
	var scored domain.ScoredTransaction
	if err == nil {
		scored, err = c.scorer.Score(ev)
	}
	if err != nil {
		if domain.IsScoringError(err) {
			c.logger.Warn("event unscoreable",
				"message_id", msg.MessageID,
				"txn_id", ev.TxnID,
				"error", err,
			)
			return c.deadLetterEvent(ctx, msg, ev.TxnID, domain.StageScoring, 1, err)
		}
		// Scorer misbehaving is not the event's fault; redeliver.
		c.logger.Error("scoring failed", "message_id", msg.MessageID, "error", err)
		return c.release(ctx, msg)
	}

	// Scored → TxWritten. The row store commits first.
	attempts, err := c.writeWithRetry(ctx, msg, "transactional", func(ctx context.Context) error {
		return c.txSink.Write(ctx, scored, msg.Body)
	})
	if err != nil {
		return c.writeFailed(ctx, msg, scored.TxnID, domain.StageTxWrite, attempts, err)
	}

	// TxWritten → AnalyticsWritten. Symmetric retry policy.
	attempts, err = c.writeWithRetry(ctx, msg, "analytical", func(ctx context.Context) error {
		return c.analytics.Write(ctx, scored)
	})
	if err != nil {
		return c.writeFailed(ctx, msg, scored.TxnID, domain.StageAnalyticsWrite, attempts, err)
	}

	// AnalyticsWritten → Acknowledged. The only point the message
	// leaves the queue on success.
	if err := c.src.Acknowledge(ctx, msg.ReceiptHandle); err != nil {
		// Both sinks are durable; redelivery will replay idempotently
		// and acknowledge then.
		c.logger.Warn("acknowledge failed, event will redeliver",
			"message_id", msg.MessageID,
			"txn_id", scored.TxnID,
			"error", err,
		)
		metrics.IncEventOutcome(metrics.OutcomeReleased)
		return OutcomeReleased
	}

	c.logger.Info("event processed",
		"message_id", msg.MessageID,
		"txn_id", scored.TxnID,
		"score", scored.Score,
		"decision", scored.Decision,
	)
	metrics.IncEventOutcome(metrics.OutcomeAcknowledged)
	return OutcomeAcknowledged
}

// writeWithRetry drives one sink write through the retry policy:
// retryable errors back off exponentially up to the attempt ceiling,
// fatal errors return immediately. Returns the number of attempts made.
func (c *Coordinator) writeWithRetry(ctx context.Context, msg source.Message, sinkName string, write func(context.Context) error) (int, error) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := write(ctx)
		metrics.ObserveSinkWriteDuration(sinkName, time.Since(start))

		if err == nil {
			return attempt, nil
		}
		if !domain.IsRetryable(err) {
			if ctx.Err() != nil {
				return attempt, ctx.Err()
			}
			return attempt, err
		}
		if attempt >= c.maxAttempts {
			return attempt, fmt.Errorf("%w after %d attempts: %v", domain.ErrRetriesExhausted, attempt, err)
		}

		delay := c.backoff(attempt)
		c.logger.Warn("sink write failed, retrying",
			"message_id", msg.MessageID,
			"sink", sinkName,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"backoff", delay,
			"error", err,
		)
		metrics.IncSinkRetry(sinkName)

		// Keep the message hidden through the backoff sleep plus the
		// next attempt so another lane cannot pick it up mid-retry.
		if err := c.src.ExtendVisibility(ctx, msg.ReceiptHandle, delay+c.visibility); err != nil {
			c.logger.Warn("extend visibility failed",
				"message_id", msg.MessageID,
				"error", err,
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		}
	}
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	delay := c.retryBaseDelay << (attempt - 1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// writeFailed routes a terminal sink failure. Context cancellation is
// not a failure of the event: the message is released for prompt
// redelivery after restart.
func (c *Coordinator) writeFailed(ctx context.Context, msg source.Message, txnID, stage string, attempts int, err error) Outcome {
	if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded)) {
		c.logger.Info("processing interrupted, releasing message",
			"message_id", msg.MessageID,
			"txn_id", txnID,
			"stage", stage,
		)
		return c.release(context.WithoutCancel(ctx), msg)
	}

	c.logger.Error("sink write terminally failed",
		"message_id", msg.MessageID,
		"txn_id", txnID,
		"stage", stage,
		"attempts", attempts,
		"error", err,
	)
	return c.deadLetterEvent(ctx, msg, txnID, stage, attempts, err)
}

// deadLetterEvent persists the dead-letter record, then acknowledges
// the source message so a poison event stops blocking the queue. If the
// record itself cannot be persisted the message is released instead:
// an event is never silently lost.
func (c *Coordinator) deadLetterEvent(ctx context.Context, msg source.Message, txnID, stage string, attempts int, cause error) Outcome {
	rec := domain.DeadLetterRecord{
		TxnID:     txnID,
		Stage:     stage,
		Reason:    cause.Error(),
		Attempts:  attempts,
		Payload:   msg.Body,
		CreatedAt: time.Now().UTC(),
	}

	if err := c.deadLetter.Record(ctx, rec); err != nil {
		c.logger.Error("dead letter record failed, releasing message",
			"message_id", msg.MessageID,
			"txn_id", txnID,
			"stage", stage,
			"error", err,
		)
		return c.release(ctx, msg)
	}

	if err := c.src.Acknowledge(ctx, msg.ReceiptHandle); err != nil {
		// Redelivery will dead-letter again; the insert is keyed by a
		// fresh id so the table may hold two records for the event,
		// which beats losing it.
		c.logger.Warn("acknowledge after dead letter failed",
			"message_id", msg.MessageID,
			"error", err,
		)
	}

	c.logger.Warn("event dead-lettered",
		"message_id", msg.MessageID,
		"txn_id", txnID,
		"stage", stage,
		"attempts", attempts,
		"reason", cause.Error(),
	)
	metrics.IncDeadLetter(stage)
	metrics.IncEventOutcome(metrics.OutcomeDeadLettered)
	return OutcomeDeadLettered
}

func (c *Coordinator) release(ctx context.Context, msg source.Message) Outcome {
	if err := c.src.Release(ctx, msg.ReceiptHandle); err != nil {
		// The visibility timeout will lapse on its own.
		c.logger.Warn("release failed", "message_id", msg.MessageID, "error", err)
	}
	metrics.IncEventOutcome(metrics.OutcomeReleased)
	return OutcomeReleased
}
