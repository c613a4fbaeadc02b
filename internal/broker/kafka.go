package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/models"
	"hookbridge/pkg/retry"
	"hookbridge/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	policy retry.Policy
	logger logger.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newKafkaPublisher(w, cfg.OutcomeTopic, log)
}

func newKafkaPublisher(w messageWriter, topic string, log logger.Logger) *KafkaPublisher {
	if topic == "" {
		topic = constants.DefaultOutcomeTopic
	}
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		policy: retry.DefaultPolicy(),
		logger: log,
	}
}

func (p *KafkaPublisher) Name() string {
	return constants.SinkTypeKafka
}

// Publish writes msg keyed by tenant so one tenant's outcomes share a
// partition.
func (p *KafkaPublisher) Publish(ctx context.Context, msg models.OutcomeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome message: %w", err)
	}

	key := msg.Outcome.TenantID
	if key == "" {
		key = msg.ID
	}

	km := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   body,
		Headers: tracing.InjectKafkaHeaders(ctx, nil),
		Time:    time.Now(),
	}

	err = retry.RetryWithCallback(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, km)
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues("kafka_publish").Inc()
		p.logger.WarnwCtx(logging.WithEventID(ctx, msg.Outcome.EventID), "Retrying kafka publish",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
