package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/errors"
	"github.com/overlaykit/userdir/pkg/interfaces"
	"github.com/overlaykit/userdir/pkg/types"
)

// redisUsersKey is the hash holding all overlay records, one field per id.
// HSET on a single field is atomic, which is all the upsert contract needs.
const redisUsersKey = "userdir:users"

// RedisStore is the alternative overlay store, backed by a Redis hash.
type RedisStore struct {
	client *redis.Client
}

var _ interfaces.Overlay = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg config.StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewStorageUnavailableError("failed to connect to redis", err)
	}

	return &RedisStore{client: client}, nil
}

func redisField(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// GetByID retrieves a record by id, returning nil when absent
func (s *RedisStore) GetByID(ctx context.Context, id uint64) (*types.User, error) {
	raw, err := s.client.HGet(ctx, redisUsersKey, redisField(id)).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.NewStorageUnavailableError("failed to get user", err).WithDetail("user_id", id)
	}

	var user types.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, errors.NewStorageUnavailableError("failed to decode stored user", err).WithDetail("user_id", id)
	}
	return &user, nil
}

// ListAll retrieves every record held by the overlay
func (s *RedisStore) ListAll(ctx context.Context) ([]types.User, error) {
	raw, err := s.client.HGetAll(ctx, redisUsersKey).Result()
	if err != nil {
		return nil, errors.NewStorageUnavailableError("failed to list users", err)
	}

	users := make([]types.User, 0, len(raw))
	for field, value := range raw {
		var user types.User
		if err := json.Unmarshal([]byte(value), &user); err != nil {
			return nil, errors.NewStorageUnavailableError("failed to decode stored user", err).WithDetail("field", field)
		}
		users = append(users, user)
	}
	return users, nil
}

// ExistsByID reports whether a record with the given id is present
func (s *RedisStore) ExistsByID(ctx context.Context, id uint64) (bool, error) {
	exists, err := s.client.HExists(ctx, redisUsersKey, redisField(id)).Result()
	if err != nil {
		return false, errors.NewStorageUnavailableError("failed to check user existence", err).WithDetail("user_id", id)
	}
	return exists, nil
}

// Upsert atomically creates or replaces the record keyed by its id
func (s *RedisStore) Upsert(ctx context.Context, user types.User) error {
	user.Origin = ""

	data, err := json.Marshal(user)
	if err != nil {
		return errors.NewStorageUnavailableError("failed to encode user", err).WithDetail("user_id", user.ID)
	}

	if err := s.client.HSet(ctx, redisUsersKey, redisField(user.ID), data).Err(); err != nil {
		return errors.NewStorageUnavailableError("failed to upsert user", err).WithDetail("user_id", user.ID)
	}
	return nil
}

// HealthCheck verifies the store is reachable
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.NewStorageUnavailableError("redis ping failed", err)
	}
	return nil
}

// Close closes the client connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
