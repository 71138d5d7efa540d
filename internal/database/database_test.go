package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/marketplace/internal/database"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/testutil"
)

func TestMigrate_CreatesTables(t *testing.T) {
	t.Parallel()

	db := testutil.NewDB(t)
	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
	require.NoError(t, database.Ping(context.Background(), db))
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	db := testutil.NewDB(t)
	require.NoError(t, database.Migrate(db))
}

func TestConnect_GivesUp(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := database.Connect(ctx, "postgres://u:p@127.0.0.1:1/marketplace?sslmode=disable&connect_timeout=1",
		database.Options{ConnectRetries: 1}, zaptest.NewLogger(t))
	require.Error(t, err)
}
