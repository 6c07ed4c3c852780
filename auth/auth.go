// Package auth resolves the opaque chat token to a user id. Token issuance
// lives elsewhere; this side only looks tokens up.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidToken = errors.New("invalid token")

type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// StaticVerifier maps tokens to user ids from configuration.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	userID, ok := v[token]
	if !ok || token == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

const sessionKeyPrefix = "session:"

// RedisVerifier reads session:<token> written by the token issuer.
type RedisVerifier struct {
	client *redis.Client
}

func NewRedisVerifier(client *redis.Client) *RedisVerifier {
	return &RedisVerifier{client: client}
}

func (v *RedisVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	userID, err := v.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	return userID, nil
}
