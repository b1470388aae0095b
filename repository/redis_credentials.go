package repository

import (
	"context"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the renewal credential keys.
const DefaultRedisPrefix = "dashboard:session:"

// RedisCredentialRepository implements auth.CredentialStore on Redis, for
// deployments where several dashboard replicas share one operator session.
// The cookie MaxAge becomes the key TTL.
type RedisCredentialRepository struct {
	client redis.UniversalClient
	prefix string
	cookie auth.RenewalCookie
}

// NewRedisCredentialRepository creates a repository under prefix.
func NewRedisCredentialRepository(client redis.UniversalClient, prefix string, cookie auth.RenewalCookie) *RedisCredentialRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if cookie.Name == "" {
		cookie = auth.DefaultRenewalCookie()
	}
	return &RedisCredentialRepository{
		client: client,
		prefix: prefix,
		cookie: cookie,
	}
}

func (r *RedisCredentialRepository) key() string {
	return r.prefix + r.cookie.Name
}

// Get implements auth.CredentialStore.
func (r *RedisCredentialRepository) Get(ctx context.Context) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, r.wrap(err, "get")
	}
	return value, value != "", nil
}

// Set implements auth.CredentialStore. Setting "" clears the credential.
func (r *RedisCredentialRepository) Set(ctx context.Context, value string) error {
	if value == "" {
		return r.Clear(ctx)
	}

	ttl := r.cookie.MaxAge
	if ttl <= 0 {
		ttl = auth.DefaultRenewalCookieMaxAge
	}

	if err := r.client.Set(ctx, r.key(), value, ttl).Err(); err != nil {
		return r.wrap(err, "set")
	}
	return nil
}

// Clear implements auth.CredentialStore.
func (r *RedisCredentialRepository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		return r.wrap(err, "clear")
	}
	return nil
}

// Ping checks the connection.
func (r *RedisCredentialRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return r.wrap(err, "ping")
	}
	return nil
}

func (r *RedisCredentialRepository) wrap(err error, op string) error {
	return errors.Wrap(err, errors.CategoryExternal, "redis credentials: "+op+" failed").
		WithTextCode("REDIS_CREDENTIALS_UNAVAILABLE").
		WithMetadata(map[string]any{
			"operation": op,
			"key":       r.key(),
		})
}

var _ auth.CredentialStore = (*RedisCredentialRepository)(nil)
