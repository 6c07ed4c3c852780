// Package store persists game metadata outside the process. The game
// registry writes through it; nothing in the rules engine reads from it.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("game not found")

type GameRecord struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Players   []string  `json:"players"`
	Winner    string    `json:"winner,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type GameStore interface {
	// CreateGame inserts the record unless a game with the same id exists.
	CreateGame(ctx context.Context, rec GameRecord) error
	// UpdateGame replaces an existing record; ErrNotFound if there is none.
	UpdateGame(ctx context.Context, rec GameRecord) error
	GetGame(ctx context.Context, id string) (GameRecord, error)
	Close() error
}
