package migrations

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	schema "hookbridge/migrations"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// RunPostgres applies the embedded SQL migrations against dsn. Being
// already at the target version is not an error.
func RunPostgres(dsn, direction string) error {
	if dsn == "" {
		return errors.New("postgres DSN is empty")
	}
	if direction != DirectionUp && direction != DirectionDown {
		return fmt.Errorf("direction must be %s or %s, got %q", DirectionUp, DirectionDown, direction)
	}

	source, err := iofs.New(schema.Postgres, "postgres")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == DirectionUp {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}
	return nil
}
