package dedupstore

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

const defaultKeyPrefix = "freightsync:dedup:"

// RedisStore keeps each partition in one Redis hash of JSON encoded records.
// The hash expires ttl after its last write.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) hashKey(partition string) string {
	return s.prefix + partition
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, partition, key string) (*models.CanonicalRecord, error) {
	data, err := s.client.HGet(ctx, s.hashKey(partition), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read dedup state")
	}

	var rec models.CanonicalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "corrupt dedup entry "+key)
	}
	return &rec, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, partition, key string, rec *models.CanonicalRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode dedup entry")
	}

	hash := s.hashKey(partition)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hash, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, hash, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write dedup state")
	}
	return nil
}

// Purge implements Store. Entries that fail to decode are dropped as well.
func (s *RedisStore) Purge(ctx context.Context, partition string, cutoff time.Time) (int, error) {
	hash := s.hashKey(partition)
	entries, err := s.client.HGetAll(ctx, hash).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to scan dedup state")
	}

	stale := make([]string, 0)
	for key, data := range entries {
		var rec struct {
			LastUpdated time.Time `json:"lastUpdated"`
		}
		if err := json.Unmarshal([]byte(data), &rec); err != nil || rec.LastUpdated.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.client.HDel(ctx, hash, stale...).Err(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to purge dedup state")
	}
	return len(stale), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
