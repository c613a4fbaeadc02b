package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hookbridge/internal/config"
	"hookbridge/internal/logger"
)

const (
	connectTimeout    = 10 * time.Second
	postgresMaxOpen   = 10
	postgresMaxIdle   = 5
	postgresConnLife  = 30 * time.Minute
	mongoServerSelect = 5 * time.Second
)

// DatabaseConnector opens the backing stores selected in configuration.
// Callers only ask for the stores they use, so a missing address is an
// error rather than a silent skip.
type DatabaseConnector struct {
	cfg    config.DatabaseConfig
	logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{cfg: cfg.Database, logger: log}
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (redis.UniversalClient, error) {
	r := dc.cfg.Redis
	if r.Host == "" {
		return nil, errors.New("database.redis.host is not configured")
	}

	addr := fmt.Sprintf("%s:%d", r.Host, r.Port)
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: r.Password,
		DB:       r.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	dc.logger.Infow("Redis connected", "addr", addr, "db", r.DB)
	return rdb, nil
}

// InitPostgreSQL backs the credential store.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pg := dc.cfg.Postgres
	if pg.Host == "" {
		return nil, errors.New("database.postgres.host is not configured")
	}

	db, err := sql.Open("postgres", pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(postgresMaxOpen)
	db.SetMaxIdleConns(postgresMaxIdle)
	db.SetConnMaxLifetime(postgresConnLife)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres at %s:%d: %w", pg.Host, pg.Port, err)
	}

	dc.logger.Infow("PostgreSQL connected", "host", pg.Host, "database", pg.DBName)
	return db, nil
}

// InitMongoDB backs the user-mapping store.
func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	m := dc.cfg.MongoDB
	if m.URI == "" {
		return nil, errors.New("database.mongodb.uri is not configured")
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(m.URI).
		SetServerSelectionTimeout(mongoServerSelect))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	dc.logger.Infow("MongoDB connected", "database", m.Database)
	return client, nil
}

// ShutdownDatabases closes whichever clients are non-nil.
func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, rdb redis.UniversalClient, db *sql.DB, mongoClient *mongo.Client) []error {
	var errs []error
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		}
	}
	return errs
}
