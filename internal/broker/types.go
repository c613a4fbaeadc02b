package broker

import (
	"context"

	"hookbridge/pkg/models"
)

// Publisher ships processing outcomes to a message broker.
type Publisher interface {
	Publish(ctx context.Context, msg models.OutcomeMessage) error
	Name() string
	Close() error
}
