package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"benchline/internal/domain"
	"benchline/internal/repo"
)

// SQLStore keeps flags in the workspace database.
type SQLStore struct {
	Repo repo.Repo
}

func (s SQLStore) Load(ctx context.Context) ([]domain.FeatureFlag, error) {
	return s.Repo.ListFlags(ctx)
}

func (s SQLStore) Save(ctx context.Context, f domain.FeatureFlag) error {
	return s.Repo.UpsertFlag(ctx, f.Key, f.Enabled, f.UpdatedAt)
}

// DefaultRedisKey is the hash holding one field per flag.
const DefaultRedisKey = "benchline:flags"

// RedisStore shares flags between several benchline processes.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		Client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		Key: DefaultRedisKey,
	}
}

func (s *RedisStore) hashKey() string {
	if s.Key == "" {
		return DefaultRedisKey
	}
	return s.Key
}

func (s *RedisStore) Load(ctx context.Context) ([]domain.FeatureFlag, error) {
	fields, err := s.Client.HGetAll(ctx, s.hashKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.FeatureFlag, 0, len(fields))
	for key, raw := range fields {
		var f domain.FeatureFlag
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("decode flag %s: %w", key, err)
		}
		f.Key = key
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, f domain.FeatureFlag) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.Client.HSet(ctx, s.hashKey(), f.Key, string(raw)).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
