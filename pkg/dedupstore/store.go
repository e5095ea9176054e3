// Package dedupstore keeps the last canonical record seen per container and
// carrier, partitioned by tenant or connection, for the duplicate detection
// stage. Partitions never share keys, so one customer's sightings cannot
// suppress or merge into another's.
package dedupstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Store holds dedup state. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the stored record for key in partition, or nil when absent
	Get(ctx context.Context, partition, key string) (*models.CanonicalRecord, error)

	// Put replaces the stored record for key in partition
	Put(ctx context.Context, partition, key string, rec *models.CanonicalRecord) error

	// Purge drops records in partition whose LastUpdated is before cutoff and
	// returns how many were dropped
	Purge(ctx context.Context, partition string, cutoff time.Time) (int, error)

	// Close releases backend resources
	Close() error
}

// New creates the store cfg selects. ttl bounds how long a partition
// survives without writes in backends that expire keys.
func New(ctx context.Context, cfg config.DedupConfig, ttl time.Duration) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to redis")
		}
		return NewRedisStore(client, cfg.KeyPrefix, ttl), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown dedup driver %q", cfg.Driver)
	}
}
