package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(0)
	require.NoError(t, err)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err = s.GetGame(ctx, "g1")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.UpdateGame(ctx, GameRecord{ID: "g1"}), ErrNotFound)

	rec := GameRecord{ID: "g1", State: "WAITING_FOR_PLAYERS", Players: []string{"alice"}, CreatedAt: created, UpdatedAt: created}
	require.NoError(t, s.CreateGame(ctx, rec))

	// second create is ignored
	require.NoError(t, s.CreateGame(ctx, GameRecord{ID: "g1", State: "PLAYING"}))
	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "WAITING_FOR_PLAYERS", got.State)

	later := created.Add(time.Minute)
	require.NoError(t, s.UpdateGame(ctx, GameRecord{ID: "g1", State: "FINISHED", Players: []string{"alice", "bob"}, Winner: "bob", UpdatedAt: later}))

	got, err = s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", got.State)
	assert.Equal(t, "bob", got.Winner)
	assert.Equal(t, created, got.CreatedAt, "update keeps the creation time")
	assert.Equal(t, later, got.UpdatedAt)

	got.Players[0] = "mallory"
	again, _ := s.GetGame(ctx, "g1")
	assert.Equal(t, "alice", again.Players[0], "returned records are copies")

	assert.NoError(t, s.Close())
}

func TestMemoryStore_RecordsExpire(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(30 * time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.CreateGame(ctx, GameRecord{ID: "old", State: "FINISHED"}))
	_, err = s.GetGame(ctx, "old")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.GetGame(ctx, "old")
		return errors.Is(err, ErrNotFound)
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.UpdateGame(ctx, GameRecord{ID: "old"}), ErrNotFound)

	// the next write drops what expired
	require.NoError(t, s.CreateGame(ctx, GameRecord{ID: "new"}))
	assert.Equal(t, 1, s.Len())
}
