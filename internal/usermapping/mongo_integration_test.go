//go:build integration

package usermapping

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hookbridge/pkg/migrations"
)

func TestMongoStoreContract(t *testing.T) {
	ctx := context.Background()
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := mongodb.Run(ctx, "mongo:6")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	db := client.Database("hookbridge_test")
	require.NoError(t, migrations.EnsureUserMappingIndexes(ctx, db, "user_mappings"))
	require.NoError(t, migrations.EnsureUserMappingIndexes(ctx, db, "user_mappings"))

	runStoreContract(t, NewMongoStore(db, "user_mappings"))
}
