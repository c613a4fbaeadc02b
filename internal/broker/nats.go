package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/models"
	"hookbridge/pkg/tracing"
)

const natsMsgIDHeader = "Nats-Msg-Id"

type natsConn interface {
	PublishMsg(m *nats.Msg) error
	Close()
}

type NATSPublisher struct {
	conn    natsConn
	subject string
	logger  logger.Logger
}

func NewNATSPublisher(cfg config.NATSConfig, log logger.Logger) (*NATSPublisher, error) {
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name(constants.ServiceName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("NATS reconnected", "url", c.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return newNATSPublisher(conn, cfg.OutcomeSubject, log), nil
}

func newNATSPublisher(conn natsConn, subject string, log logger.Logger) *NATSPublisher {
	if subject == "" {
		subject = constants.DefaultOutcomeSubject
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: log}
}

func (p *NATSPublisher) Name() string {
	return constants.SinkTypeNATS
}

// Publish sends msg on the outcome subject with a message id header so
// JetStream consumers can deduplicate redeliveries.
func (p *NATSPublisher) Publish(ctx context.Context, msg models.OutcomeMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outcome message: %w", err)
	}

	natsMsg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  make(nats.Header),
	}
	natsMsg.Header.Set(natsMsgIDHeader, msg.ID)
	tracing.InjectNATSHeaders(ctx, natsMsg.Header)

	if err := p.conn.PublishMsg(natsMsg); err != nil {
		return fmt.Errorf("nats publish to %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
