package waypoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding every waypoint.
const DefaultRedisKey = "rebel:waypoints"

// HashClient is the subset of *redis.Client the store uses.
type HashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisStore keeps waypoints as fields of one Redis hash.
type RedisStore struct {
	client HashClient
	key    string
}

// NewRedisStore creates a store on the hash key (DefaultRedisKey if empty).
func NewRedisStore(client HashClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Save stores the document compacted.
func (r *RedisStore) Save(ctx context.Context, name string, doc json.RawMessage) error {
	if err := validate(name, doc); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key, name, buf.String()).Err()
}

// Load reads one document.
func (r *RedisStore) Load(ctx context.Context, name string) (json.RawMessage, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := r.client.HGet(ctx, r.key, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// All reads the whole hash.
func (r *RedisStore) All(ctx context.Context) (map[string]json.RawMessage, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	all := make(map[string]json.RawMessage, len(fields))
	for name, doc := range fields {
		all[name] = json.RawMessage(doc)
	}
	return all, nil
}
