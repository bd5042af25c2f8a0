package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-todo/internal/model"
	"github.com/mycelian/mycelian-todo/internal/store"
	"github.com/mycelian/mycelian-todo/internal/store/storetest"
)

func TestSQLiteStore_Compliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(context.Background(), filepath.Join(t.TempDir(), "todo.db"), store.RetryPolicy{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "todo.db")

	s, err := New(ctx, path, store.RetryPolicy{})
	require.NoError(t, err)
	_, err = s.States().ReadModifyWrite(ctx, "a@example.com", "items", []byte(`["x"]`), func(cur []byte) ([]byte, error) {
		t.Fatal("update func called for absent state")
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(ctx, path, store.RetryPolicy{})
	require.NoError(t, err)
	defer s.Close()

	v, found, err := s.States().Get(ctx, "a@example.com", "items")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `["x"]`, string(v))
}

func TestSQLiteStore_ClosedDBIsStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "todo.db"), store.RetryPolicy{MaxAttempts: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.States().Get(ctx, "k", "items")
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}
