package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psichat/client-go/internal/config"
	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/internal/identity"
	"github.com/psichat/client-go/pkg/log"
)

// RedisTable is a Table stored as one Redis hash under a single well-known
// key: field = tab identity, value = JSON session record. Hash fields give
// per-key last-write-wins without read-modify-write races across machines.
type RedisTable struct {
	client *redis.Client
	key    string
}

func NewRedisTable(cfg config.RedisConfig) (*RedisTable, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisTable{client: client, key: cfg.Key}, nil
}

// Client returns the underlying Redis client, shared with the notifier.
func (t *RedisTable) Client() *redis.Client { return t.client }

func (t *RedisTable) Get(ctx context.Context, tab identity.TabID) (*domain.SessionRecord, error) {
	data, err := t.client.HGet(ctx, t.key, string(tab)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger := log.L()
		logger.Warn().Err(err).Str(log.FieldTabID, string(tab)).Msg("session record malformed, treating as absent")
		return nil, nil
	}
	return &rec, nil
}

func (t *RedisTable) Put(ctx context.Context, tab identity.TabID, rec domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := t.client.HSet(ctx, t.key, string(tab), data).Err(); err != nil {
		return fmt.Errorf("failed to put session record: %w", err)
	}
	return nil
}

func (t *RedisTable) Delete(ctx context.Context, tab identity.TabID) error {
	if err := t.client.HDel(ctx, t.key, string(tab)).Err(); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

func (t *RedisTable) All(ctx context.Context) (map[identity.TabID]domain.SessionRecord, error) {
	fields, err := t.client.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}

	out := make(map[identity.TabID]domain.SessionRecord, len(fields))
	for tab, data := range fields {
		var rec domain.SessionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			logger := log.L()
			logger.Warn().Err(err).Str(log.FieldTabID, tab).Msg("skipping malformed session record")
			continue
		}
		out[identity.TabID(tab)] = rec
	}
	return out, nil
}

func (t *RedisTable) Close() error { return t.client.Close() }

var _ Table = (*RedisTable)(nil)
