package broker

import (
	"fmt"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
)

// NewPublishers builds one Publisher per broker-backed sink in sinks.
// Non-broker sink types are skipped. On error, publishers created so far
// are closed.
func NewPublishers(cfg config.BrokerConfig, sinks []string, log logger.Logger) ([]Publisher, error) {
	var publishers []Publisher
	for _, sink := range sinks {
		var (
			p   Publisher
			err error
		)
		switch sink {
		case constants.SinkTypeKafka:
			p = NewKafkaPublisher(cfg.Kafka, log)
		case constants.SinkTypeNATS:
			p, err = NewNATSPublisher(cfg.NATS, log)
		case constants.SinkTypeLog:
			continue
		default:
			err = fmt.Errorf("unknown sink type: %s", sink)
		}
		if err != nil {
			for _, created := range publishers {
				_ = created.Close()
			}
			return nil, err
		}
		publishers = append(publishers, p)
	}
	return publishers, nil
}
