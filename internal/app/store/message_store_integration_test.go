package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchSirius/log3900-server/internal/app/db"
)

// Integration coverage for the SQL paths. Runs only when TEST_DATABASE_URL
// points at a disposable Postgres database; migrations are applied on connect.

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := db.NewPool(dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, username, password_hash) VALUES ($1, $2, '')`,
		id, "it-"+id[:8],
	)
	require.NoError(t, err)
	return id
}

func insertMessage(t *testing.T, pool *pgxpool.Pool, channelID, authorID, text string, at time.Time) string {
	t.Helper()

	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO messages (id, channel_id, text, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, channelID, text, authorID, at,
	)
	require.NoError(t, err)
	return id
}

func TestChannelHistoryWindowing(t *testing.T) {
	pool := integrationPool(t)
	store := NewMessageStore(pool)
	ctx := context.Background()

	author := insertUser(t, pool)
	room := "room-" + uuid.NewString()
	channelID, err := store.EnsureChannel(ctx, room, author)
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		insertMessage(t, pool, channelID, author, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))
	}

	// The window keeps the latest three, returned oldest-first.
	history, err := store.ChannelHistory(ctx, room, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "m2", history[0].Text)
	assert.Equal(t, "m3", history[1].Text)
	assert.Equal(t, "m4", history[2].Text)

	history, err = store.ChannelHistory(ctx, room, 100)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "m0", history[0].Text)
}

func TestDrainPendingConsumesQueue(t *testing.T) {
	pool := integrationPool(t)
	store := NewMessageStore(pool)
	ctx := context.Background()

	author := insertUser(t, pool)
	recipient := insertUser(t, pool)
	room := "room-" + uuid.NewString()
	channelID, err := store.EnsureChannel(ctx, room, author)
	require.NoError(t, err)

	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	first := insertMessage(t, pool, channelID, author, "first", base)
	second := insertMessage(t, pool, channelID, author, "second", base.Add(time.Second))
	require.NoError(t, store.PendMessage(ctx, recipient, first))
	require.NoError(t, store.PendMessage(ctx, recipient, second))

	pending, err := store.DrainPending(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Text)
	assert.Equal(t, "second", pending[1].Text)

	pending, err = store.DrainPending(ctx, recipient)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
