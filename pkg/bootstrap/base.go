package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"hookbridge/internal/broker"
	"hookbridge/internal/config"
	"hookbridge/internal/logger"
)

// Base holds what every bridge process needs: configuration, the logger
// and the outcome publishers selected by queue.sinks.
type Base struct {
	Config     *config.Config
	Logger     logger.Logger
	Publishers []broker.Publisher
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitPublishers() error {
	publishers, err := broker.NewPublishers(b.Config.Broker, b.Config.Queue.Sinks, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create outcome publishers: %w", err)
	}
	b.Publishers = publishers
	return nil
}

func (b *Base) ShutdownPublishers() []error {
	var errs []error
	for _, p := range b.Publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher close error: %w", p.Name(), err))
		}
	}
	b.Publishers = nil
	return errs
}

// Shutdown runs additionalShutdown first so that work still in flight can
// publish its outcomes, then closes the publishers.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}
	errs = append(errs, b.ShutdownPublishers()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
