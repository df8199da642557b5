// Package batch is the serverless delivery surface: an SQS-triggered
// handler that runs the pipeline per record and reports per-item failures
// so the transport redelivers only those.
package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/lumapix/darkroom/internal/pipeline"
	"github.com/lumapix/darkroom/pkg/schema"
)

// Runner is the processing core the handler drives.
type Runner interface {
	Run(ctx context.Context, msg schema.JobMessage, attempt int) (pipeline.Outcome, error)
}

// StatusMarker records terminal failures on the photo record.
type StatusMarker interface {
	MarkError(ctx context.Context, photoID string)
}

type Handler struct {
	Pipeline Runner
	Status   StatusMarker
	Logger   *slog.Logger
}

// Handle processes one invocation's batch strictly sequentially; the
// invocation itself is the unit of externally managed parallelism. The
// returned failure list contains exactly the records that failed, never a
// succeeded or skipped one.
func (h *Handler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure

	for _, record := range ev.Records {
		logger := h.logger().With("message_id", record.MessageId)

		var msg schema.JobMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			logger.Error("unparsable record body", "err", err)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}

		if _, err := h.Pipeline.Run(ctx, msg, receiveCount(record)); err != nil {
			logger.Error("record failed", "photo_id", msg.PhotoID, "err", err)
			h.Status.MarkError(ctx, msg.PhotoID)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		logger.Info("record processed", "photo_id", msg.PhotoID)
	}

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func receiveCount(record events.SQSMessage) int {
	if v := record.Attributes["ApproximateReceiveCount"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
