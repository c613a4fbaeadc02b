package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hookbridge/internal/broker"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/models"
	"hookbridge/pkg/tracing"
)

// OutcomeSink receives every ProcessingOutcome the processor produces.
// Record must not panic and should not block for long; it runs on a worker.
type OutcomeSink interface {
	Record(ctx context.Context, outcome models.ProcessingOutcome)
}

type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Record(ctx context.Context, outcome models.ProcessingOutcome) {
	fields := []interface{}{
		"event_type", outcome.EventType,
		"success", outcome.Success,
		"duration_ms", outcome.DurationMS,
	}
	if len(outcome.Context) > 0 {
		fields = append(fields, "context", outcome.Context)
	}

	if outcome.Success {
		s.logger.InfowCtx(ctx, "Event processed", fields...)
		return
	}
	s.logger.ErrorwCtx(ctx, "Event processing failed", append(fields, "error", outcome.Error)...)
}

// PublishingSink forwards outcomes to a broker. Publish failures are
// logged and counted, never retried past the publisher's own policy.
type PublishingSink struct {
	publisher broker.Publisher
	timeout   time.Duration
	logger    logger.Logger
}

func NewPublishingSink(publisher broker.Publisher, log logger.Logger) *PublishingSink {
	return &PublishingSink{
		publisher: publisher,
		timeout:   constants.KafkaWriteTimeout,
		logger:    log,
	}
}

func (s *PublishingSink) Record(ctx context.Context, outcome models.ProcessingOutcome) {
	msg := models.OutcomeMessage{
		ID:        uuid.NewString(),
		Source:    constants.ServiceName,
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
		Metadata: models.Metadata{
			TraceID:   tracing.TraceID(ctx),
			RequestID: logging.GetRequestID(ctx),
		},
	}

	// Detached from the handler deadline.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err := s.publisher.Publish(pubCtx, msg)
	metrics.IncOutcomePublished(s.publisher.Name(), err)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish processing outcome",
			"broker", s.publisher.Name(),
			"error", err,
		)
	}
}

type MultiSink []OutcomeSink

func (m MultiSink) Record(ctx context.Context, outcome models.ProcessingOutcome) {
	for _, s := range m {
		s.Record(ctx, outcome)
	}
}
