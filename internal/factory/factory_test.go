package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-todo/internal/config"
	"github.com/mycelian/mycelian-todo/internal/store/memory"
	"github.com/mycelian/mycelian-todo/internal/todo"
)

func TestNewStore_Drivers(t *testing.T) {
	ctx := context.Background()

	cfg := config.NewForTesting()
	st, err := NewStore(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)

	cfg.DBDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "todo.db")
	st, err = NewStore(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, st.HealthPing(ctx))
	assert.NoError(t, st.Close())

	cfg.DBDriver = config.DriverPostgres
	cfg.PostgresDSN = ""
	_, err = NewStore(ctx, cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg.DBDriver = "cassandra"
	_, err = NewStore(ctx, cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	cfg := config.NewForTesting()
	assert.IsType(t, &todo.LogNotifier{}, NewNotifier(cfg, zerolog.Nop()))

	cfg.NotifyURL = "http://localhost:9/hook"
	assert.IsType(t, &todo.WebhookNotifier{}, NewNotifier(cfg, zerolog.Nop()))
}
