// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adiadia/fraud-consumer/internal/metrics"
	"github.com/adiadia/fraud-consumer/internal/source"
)

// Pool runs a fixed number of worker lanes. Each lane independently
// pulls a batch from the source and drives every message through the
// coordinator; lanes never share in-flight event state. On shutdown,
// lanes stop pulling, finish the batch they own, and anything still
// unfinished after the drain timeout is released for redelivery.
type PoolDeps struct {
	Coordinator *Coordinator
	Source      source.EventSource
	Logger      *slog.Logger

	Lanes        int
	BatchSize    int
	Visibility   time.Duration
	DrainTimeout time.Duration
}

type Pool struct {
	coord  *Coordinator
	src    source.EventSource
	logger *slog.Logger

	lanes        int
	batchSize    int
	visibility   time.Duration
	drainTimeout time.Duration

	inFlight     atomic.Int64
	acknowledged atomic.Int64
	deadLettered atomic.Int64
	released     atomic.Int64
}

func NewPool(deps PoolDeps) *Pool {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	lanes := deps.Lanes
	if lanes <= 0 {
		lanes = 4
	}

	batch := deps.BatchSize
	if batch <= 0 || batch > 10 {
		batch = 10
	}

	visibility := deps.Visibility
	if visibility <= 0 {
		visibility = 60 * time.Second
	}

	drain := deps.DrainTimeout
	if drain <= 0 {
		drain = 30 * time.Second
	}

	return &Pool{
		coord:        deps.Coordinator,
		src:          deps.Source,
		logger:       l,
		lanes:        lanes,
		batchSize:    batch,
		visibility:   visibility,
		drainTimeout: drain,
	}
}

// Run starts the lanes and blocks until all of them have exited.
// Cancelling ctx stops new pulls; in-flight messages get up to the
// drain timeout to reach a terminal state before their processing
// context is cancelled, which releases them back to the queue.
func (p *Pool) Run(ctx context.Context) {
	procCtx, cancelProc := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelProc()

	go func() {
		select {
		case <-ctx.Done():
		case <-procCtx.Done():
			return
		}
		timer := time.NewTimer(p.drainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			p.logger.Warn("drain timeout reached, cancelling in-flight events")
			cancelProc()
		case <-procCtx.Done():
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.lanes; i++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			p.runLane(ctx, procCtx, lane)
		}(i)
	}
	wg.Wait()

	p.logger.Info("all lanes stopped",
		"acknowledged", p.acknowledged.Load(),
		"dead_lettered", p.deadLettered.Load(),
		"released", p.released.Load(),
	)
}

func (p *Pool) runLane(pollCtx, procCtx context.Context, lane int) {
	logger := p.logger.With("lane", lane)
	logger.Info("lane started")

	idleTicks := 0
	for {
		if pollCtx.Err() != nil {
			logger.Info("lane stopping")
			return
		}

		msgs, err := p.src.Receive(pollCtx, p.batchSize, p.visibility)
		if err != nil {
			if pollCtx.Err() != nil {
				logger.Info("lane stopping")
				return
			}
			logger.Error("receive failed", "error", err)
			sleepCtx(pollCtx, 2*time.Second)
			continue
		}

		metrics.ObserveReceiveBatchSize(len(msgs))

		if len(msgs) == 0 {
			idleTicks++
			if idleTicks%10 == 0 {
				logger.Debug("idle, no messages", "ticks", idleTicks)
			}
			// Long polling does the real waiting; this only keeps a
			// non-blocking source from spinning.
			sleepCtx(pollCtx, 50*time.Millisecond)
			continue
		}
		idleTicks = 0

		// The whole batch is processed even if shutdown begins midway:
		// each message still reaches a terminal state or is released.
		for _, msg := range msgs {
			p.inFlight.Add(1)
			metrics.AddEventsInFlight(1)

			outcome := p.coord.Process(procCtx, msg)

			p.inFlight.Add(-1)
			metrics.AddEventsInFlight(-1)
			p.count(outcome)
		}
	}
}

func (p *Pool) count(outcome Outcome) {
	switch outcome {
	case OutcomeAcknowledged:
		p.acknowledged.Add(1)
	case OutcomeDeadLettered:
		p.deadLettered.Add(1)
	case OutcomeReleased:
		p.released.Add(1)
	}
}

// Stats is a point-in-time snapshot for the ops endpoint.
type Stats struct {
	Lanes        int   `json:"lanes"`
	InFlight     int64 `json:"in_flight"`
	Acknowledged int64 `json:"acknowledged"`
	DeadLettered int64 `json:"dead_lettered"`
	Released     int64 `json:"released"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Lanes:        p.lanes,
		InFlight:     p.inFlight.Load(),
		Acknowledged: p.acknowledged.Load(),
		DeadLettered: p.deadLettered.Load(),
		Released:     p.released.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
