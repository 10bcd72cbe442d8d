package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mgiraldo-dev/canteen-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresDSNForPostgres(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), config.DBConfig{}, false, nil)
	require.Error(t, err)
}

func TestNewSQLitePingAndClose(t *testing.T) {
	t.Parallel()

	cfg := config.DBConfig{
		DSN:          "file:db_" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}
	client, err := New(context.Background(), cfg, true, nil)
	require.NoError(t, err)
	require.NoError(t, client.Ping(context.Background()))
	require.NotNil(t, client.DB())
	require.NoError(t, client.Close())
}
