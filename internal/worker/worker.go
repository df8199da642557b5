// Package worker is the long-lived queue consumer: a fixed number of slots
// each pulling one job at a time, sized to the memory footprint of
// decoding very large images. Retry of a failed job is the queue's
// business; this runtime only acks, naks, and marks records failed once
// deliveries are exhausted.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lumapix/darkroom/internal/pipeline"
	"github.com/lumapix/darkroom/pkg/schema"
)

// Runner is the processing core a worker drives.
type Runner interface {
	Run(ctx context.Context, msg schema.JobMessage, attempt int) (pipeline.Outcome, error)
}

// delivery is one received queue message. Abstracted from nats.Msg so the
// handling logic is testable without a broker.
type delivery interface {
	Data() []byte
	Attempt() int
	Ack() error
	Nak() error
	Term() error
}

// Fetcher is the pull surface the slots consume from. *Queue is the real
// implementation.
type Fetcher interface {
	fetch(opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// fetchErrDelay paces the slot loop when the queue keeps erroring, so a
// consumer deleted server-side does not spin the worker at full speed.
const fetchErrDelay = time.Second

type Worker struct {
	Queue       Fetcher
	Pipeline    Runner
	Status      *pipeline.StatusWriter
	Concurrency int
	MaxDeliver  int
	Logger      *slog.Logger
}

// Run blocks, fetching and processing jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	w.logger().Info("worker running", "slots", concurrency, "max_deliver", w.MaxDeliver)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.runSlot(ctx, slot)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) runSlot(ctx context.Context, slot int) {
	logger := w.logger().With("slot", slot)
	for {
		if ctx.Err() != nil {
			logger.Info("slot stopping")
			return
		}
		msgs, err := w.Queue.fetch(nats.Context(ctx))
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("slot stopping")
				return
			}
			if !errors.Is(err, nats.ErrTimeout) {
				logger.Warn("fetch failed", "err", err)
				select {
				case <-time.After(fetchErrDelay):
				case <-ctx.Done():
				}
			}
			continue
		}
		for _, msg := range msgs {
			w.handle(ctx, natsDelivery{msg: msg})
		}
	}
}

// handle runs one delivery through the pipeline and settles it. A message
// that cannot even be parsed is terminated immediately; redelivering
// poison does no one any good.
func (w *Worker) handle(ctx context.Context, d delivery) {
	var msg schema.JobMessage
	if err := json.Unmarshal(d.Data(), &msg); err != nil {
		w.logger().Error("unparsable job message, terminating", "err", err)
		if err := d.Term(); err != nil {
			w.logger().Warn("term failed", "err", err)
		}
		return
	}

	logger := w.logger().With("photo_id", msg.PhotoID, "attempt", d.Attempt())

	outcome, err := w.Pipeline.Run(ctx, msg, d.Attempt())
	if err == nil {
		switch outcome {
		case pipeline.SkippedMissing:
			logger.Info("job skipped: record missing")
		case pipeline.SkippedDone:
			logger.Info("job skipped: already ready")
		default:
			logger.Info("job completed")
		}
		if err := d.Ack(); err != nil {
			logger.Warn("ack failed", "err", err)
		}
		return
	}

	logger.Error("job failed", "err", err)
	if errors.Is(err, pipeline.ErrInvalidJob) {
		// poison at the payload level: parsed as JSON but names a photo id
		// that will fail identically on every redelivery
		if err := d.Term(); err != nil {
			logger.Warn("term failed", "err", err)
		}
		return
	}
	if d.Attempt() >= w.MaxDeliver {
		// out of redeliveries: record the terminal failure so the photo is
		// distinguishable from one still processing, then drop the message
		w.Status.MarkError(ctx, msg.PhotoID)
		if err := d.Term(); err != nil {
			logger.Warn("term failed", "err", err)
		}
		return
	}
	if err := d.Nak(); err != nil {
		logger.Warn("nak failed", "err", err)
	}
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
