package bootstrap

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookbridge/internal/broker"
	"hookbridge/internal/config"
	"hookbridge/internal/logger"
	"hookbridge/pkg/models"
)

type recordingPublisher struct {
	name     string
	closeErr error
	order    *[]string
}

func (p *recordingPublisher) Publish(context.Context, models.OutcomeMessage) error { return nil }
func (p *recordingPublisher) Name() string                                         { return p.name }
func (p *recordingPublisher) Close() error {
	*p.order = append(*p.order, "close:"+p.name)
	return p.closeErr
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := &config.Config{Database: config.DatabaseConfig{
		Redis: config.RedisConfig{Host: mr.Host(), Port: port},
	}}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	rdb, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	assert.Empty(t, dc.ShutdownDatabases(context.Background(), rdb, nil, nil))
}

func TestInitRequiresAddresses(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())
	ctx := context.Background()

	_, err := dc.InitRedis(ctx)
	assert.ErrorContains(t, err, "database.redis.host")
	_, err = dc.InitPostgreSQL(ctx)
	assert.ErrorContains(t, err, "database.postgres.host")
	_, err = dc.InitMongoDB(ctx)
	assert.ErrorContains(t, err, "database.mongodb.uri")
}

func TestShutdownOrder(t *testing.T) {
	var order []string
	base := NewBase(&config.Config{}, logger.NopLogger())
	base.Publishers = []broker.Publisher{
		&recordingPublisher{name: "kafka", order: &order},
		&recordingPublisher{name: "nats", order: &order, closeErr: errors.New("drain failed")},
	}

	err := base.Shutdown(context.Background(), func(context.Context) []error {
		order = append(order, "drain")
		return nil
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "nats publisher close error")
	assert.Equal(t, []string{"drain", "close:kafka", "close:nats"}, order)
	assert.Nil(t, base.Publishers)
}
