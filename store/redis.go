package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "battleship:game:"

// RedisStore keeps one JSON document per game under battleship:game:<id>.
// Records expire after ttl so abandoned games do not pile up.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ GameStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) CreateGame(ctx context.Context, rec GameRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal game %s: %w", rec.ID, err)
	}
	if err := s.client.SetNX(ctx, redisKeyPrefix+rec.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("create game %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) UpdateGame(ctx context.Context, rec GameRecord) error {
	prev, err := s.GetGame(ctx, rec.ID)
	if err != nil {
		return err
	}
	rec.CreatedAt = prev.CreatedAt

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal game %s: %w", rec.ID, err)
	}
	ok, err := s.client.SetXX(ctx, redisKeyPrefix+rec.ID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("update game %s: %w", rec.ID, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) GetGame(ctx context.Context, id string) (GameRecord, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("get game %s: %w", id, err)
	}

	var rec GameRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return GameRecord{}, fmt.Errorf("decode game %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
