package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache"
)

// MemoryStore keeps records in process. Records expire ttl after their last
// write, the same way RedisStore keys do; a zero ttl keeps them forever.
type MemoryStore struct {
	mu    sync.Mutex
	games cache.Cache
}

var _ GameStore = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) (*MemoryStore, error) {
	var opts []cache.Option
	if ttl > 0 {
		opts = append(opts, cache.TTL(ttl))
	}
	games, err := cache.NewCache(opts...)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return &MemoryStore{games: games}, nil
}

func (s *MemoryStore) get(id string) (GameRecord, bool) {
	v, ok := s.games.Get(id)
	if !ok {
		return GameRecord{}, false
	}
	return v.(GameRecord), true
}

func (s *MemoryStore) CreateGame(_ context.Context, rec GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.games.DeleteExpired()
	if _, ok := s.get(rec.ID); ok {
		return nil
	}
	s.games.Set(rec.ID, clone(rec), 0)
	return nil
}

func (s *MemoryStore) UpdateGame(_ context.Context, rec GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.get(rec.ID)
	if !ok {
		return ErrNotFound
	}
	rec.CreatedAt = prev.CreatedAt
	s.games.Set(rec.ID, clone(rec), 0)
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.get(id)
	if !ok {
		return GameRecord{}, ErrNotFound
	}
	return clone(rec), nil
}

// Len counts the records held, expired ones not yet dropped included.
func (s *MemoryStore) Len() int {
	return s.games.Len()
}

func (s *MemoryStore) Close() error {
	s.games.Purge()
	return nil
}

func clone(rec GameRecord) GameRecord {
	rec.Players = append([]string(nil), rec.Players...)
	return rec
}
