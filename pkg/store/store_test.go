package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/store"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(config.Config{Temp: true}, crypto.RepositoryID{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesSchema(t *testing.T) {
	s := openTemp(t)

	_, err := s.DB().ExecContext(context.Background(), `SELECT 1 FROM blocks LIMIT 1`)
	assert.NoError(t, err)
	_, err = s.DB().ExecContext(context.Background(), `SELECT 1 FROM root_nodes LIMIT 1`)
	assert.NoError(t, err)
	_, err = s.DB().ExecContext(context.Background(), `SELECT 1 FROM inner_nodes LIMIT 1`)
	assert.NoError(t, err)
	_, err = s.DB().ExecContext(context.Background(), `SELECT 1 FROM leaf_nodes LIMIT 1`)
	assert.NoError(t, err)
	_, err = s.DB().ExecContext(context.Background(), `SELECT 1 FROM metadata LIMIT 1`)
	assert.NoError(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, ok, err := s.GetMetadata(ctx, "device_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata(ctx, "device_id", []byte("abc")))
	value, ok, err := s.GetMetadata(ctx, "device_id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), value)

	require.NoError(t, s.SetMetadata(ctx, "device_id", []byte("xyz")))
	value, ok, err = s.GetMetadata(ctx, "device_id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("xyz"), value)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, ok, err := s.GetMetadata(ctx, "never-set")
	require.NoError(t, err)
	assert.False(t, ok)
}
