// Package hashstore provides a Redis-backed ar24.HashStore, so that several
// processes acting for the same AR24 user share one OTP auth hash.
package hashstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	ar24 "github.com/connected-company/ar24-go"
)

const defaultPrefix = "ar24:auth_hash"

// Redis stores auth hashes as JSON under prefix:userID, expiring together
// with the hash.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option configures a Redis store.
type Option func(*Redis)

// WithPrefix sets the key prefix. Defaults to "ar24:auth_hash".
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithClock replaces time.Now when computing key TTLs.
func WithClock(now func() time.Time) Option {
	return func(r *Redis) {
		r.now = now
	}
}

// NewRedis returns a store using client. The client lifecycle stays with
// the caller.
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	r := &Redis{
		client: client,
		prefix: defaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the stored hash of userID, or ar24.ErrHashNotFound.
func (r *Redis) Load(ctx context.Context, userID string) (ar24.AuthHash, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ar24.AuthHash{}, ar24.ErrHashNotFound
		}
		return ar24.AuthHash{}, fmt.Errorf("failed to load auth hash: %w", err)
	}

	var hash ar24.AuthHash
	if err := json.Unmarshal(data, &hash); err != nil {
		return ar24.AuthHash{}, fmt.Errorf("failed to decode auth hash: %w", err)
	}
	return hash, nil
}

// Save stores hash until it expires. An already expired hash is not stored.
func (r *Redis) Save(ctx context.Context, userID string, hash ar24.AuthHash) error {
	ttl := ttlFor(hash, r.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(hash)
	if err != nil {
		return fmt.Errorf("failed to encode auth hash: %w", err)
	}

	if err := r.client.Set(ctx, r.key(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save auth hash: %w", err)
	}
	return nil
}

// Delete removes the stored hash of userID.
func (r *Redis) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}

func (r *Redis) key(userID string) string {
	if r.prefix == "" {
		return userID
	}
	return r.prefix + ":" + userID
}

// ttlFor returns the remaining lifetime of hash, truncated to the
// millisecond precision Redis keeps.
func ttlFor(hash ar24.AuthHash, now time.Time) time.Duration {
	if hash.Hash == "" {
		return 0
	}
	return hash.ExpiresAt.Sub(now).Truncate(time.Millisecond)
}

var _ ar24.HashStore = (*Redis)(nil)
