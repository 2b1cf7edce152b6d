package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/call-scanner/internal/config"
	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/types"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists the registry as a single JSON document under one key.
// Redis SET replaces the value atomically, so a partial write can never
// corrupt the previous valid snapshot.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *logging.Logger
}

// NewRedisStore creates a Redis-backed snapshot store and verifies the
// connection.
func NewRedisStore(cfg *config.RedisConfig, logger *logging.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.SnapshotKey, logger), nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, key string, logger *logging.Logger) *RedisStore {
	if key == "" {
		key = "calls:snapshot"
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

// Save serializes the mapping and overwrites the snapshot key.
func (s *RedisStore) Save(ctx context.Context, records map[string]*types.CallRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return apperrors.NewPersistenceError("save", err)
	}

	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return apperrors.NewPersistenceError("save", err)
	}

	return nil
}

// Load reads the last snapshot. A missing key or an unreadable document
// yields an empty mapping, never an error the caller has to handle.
func (s *RedisStore) Load(ctx context.Context) (map[string]*types.CallRecord, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]*types.CallRecord{}, nil
		}
		return nil, apperrors.NewPersistenceError("load", err)
	}

	var records map[string]*types.CallRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		s.logger.WithError(err).WithField("key", s.key).Error("Snapshot is corrupt, starting from an empty registry")
		return map[string]*types.CallRecord{}, nil
	}

	if records == nil {
		records = map[string]*types.CallRecord{}
	}

	return records, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
