package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	players    TEXT[] NOT NULL DEFAULT '{}',
	winner     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ GameStore = (*PostgresStore)(nil)

// NewPostgresStore connects and makes sure the games table exists.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create games table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateGame(ctx context.Context, rec GameRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (id, state, players, winner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.State, nonNil(rec.Players), rec.Winner, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create game %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateGame(ctx context.Context, rec GameRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE games SET state = $2, players = $3, winner = $4, updated_at = $5
		WHERE id = $1`,
		rec.ID, rec.State, nonNil(rec.Players), rec.Winner, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update game %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (GameRecord, error) {
	var rec GameRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, state, players, winner, created_at, updated_at
		FROM games WHERE id = $1`, id).
		Scan(&rec.ID, &rec.State, &rec.Players, &rec.Winner, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("get game %s: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nonNil(players []string) []string {
	if players == nil {
		return []string{}
	}
	return players
}
