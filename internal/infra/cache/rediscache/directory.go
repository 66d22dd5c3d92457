// Package rediscache caches relationship directory lookups in Redis so the
// visibility filter does not rebuild a viewer's social graph on every request.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"fridgeshare/pkg/domain"
)

const (
	// DefaultTTL bounds how long a cached relationship set may be stale.
	DefaultTTL = 5 * time.Minute
	// DefaultPrefix namespaces cache keys.
	DefaultPrefix = "fridgeshare:rel:"
)

const (
	kindFriends = "friends"
	kindGroups  = "groups"
)

// Directory is a read-through cache in front of another RelationshipDirectory.
// Redis failures fall back to the wrapped directory.
type Directory struct {
	client *redis.Client
	inner  domain.RelationshipDirectory
	ttl    time.Duration
	prefix string

	hits     int64
	misses   int64
	failures int64
}

var (
	_ domain.RelationshipDirectory = (*Directory)(nil)
	_ domain.DirectoryInvalidator  = (*Directory)(nil)
)

// Option customises a Directory.
type Option func(*Directory)

// WithTTL sets the expiry of cached entries.
func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithPrefix sets the Redis key prefix.
func WithPrefix(prefix string) Option {
	return func(d *Directory) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// New wraps inner with a cache stored in client.
func New(client *redis.Client, inner domain.RelationshipDirectory, opts ...Option) *Directory {
	d := &Directory{
		client: client,
		inner:  inner,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect opens a client for addr and verifies it answers PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return client, nil
}

// FriendIDsOf implements domain.RelationshipDirectory.
func (d *Directory) FriendIDsOf(ctx context.Context, userID string) (domain.IDSet, error) {
	return d.lookup(ctx, kindFriends, userID, d.inner.FriendIDsOf)
}

// GroupIDsOf implements domain.RelationshipDirectory.
func (d *Directory) GroupIDsOf(ctx context.Context, userID string) (domain.IDSet, error) {
	return d.lookup(ctx, kindGroups, userID, d.inner.GroupIDsOf)
}

func (d *Directory) lookup(ctx context.Context, kind, userID string, load func(context.Context, string) (domain.IDSet, error)) (domain.IDSet, error) {
	if userID == "" {
		return domain.NewIDSet(), nil
	}
	key := d.key(kind, userID)
	val, err := d.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var ids []string
		if jsonErr := json.Unmarshal([]byte(val), &ids); jsonErr == nil {
			atomic.AddInt64(&d.hits, 1)
			return domain.NewIDSet(ids...), nil
		}
		// Corrupt entry: reload and overwrite it.
		atomic.AddInt64(&d.failures, 1)
	case errors.Is(err, redis.Nil):
	default:
		atomic.AddInt64(&d.failures, 1)
	}
	atomic.AddInt64(&d.misses, 1)

	// The version is read before loading so that an Invalidate racing with
	// the load keeps the loaded set out of the cache.
	version, verr := d.version(ctx, d.client, userID)
	set, err := load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		atomic.AddInt64(&d.failures, 1)
		return set, nil
	}
	data, err := json.Marshal(set.Slice())
	if err != nil {
		return set, nil
	}
	if err := d.store(ctx, userID, key, version, data); err != nil && !errors.Is(err, errStale) {
		atomic.AddInt64(&d.failures, 1)
	}
	return set, nil
}

var errStale = errors.New("relationships changed during load")

// store writes data under key unless userID was invalidated since version
// was read.
func (d *Directory) store(ctx context.Context, userID, key, version string, data []byte) error {
	verKey := d.versionKey(userID)
	err := d.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := d.version(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != version {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, d.ttl)
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		return errStale
	}
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (d *Directory) version(ctx context.Context, c getter, userID string) (string, error) {
	v, err := c.Get(ctx, d.versionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// Invalidate drops the cached friend and group sets of every user given and
// bumps their version so in-flight lookups do not write stale sets back.
func (d *Directory) Invalidate(ctx context.Context, userIDs ...string) error {
	var users []string
	for _, id := range userIDs {
		if id != "" {
			users = append(users, id)
		}
	}
	if len(users) == 0 {
		return nil
	}
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range users {
			pipe.Incr(ctx, d.versionKey(id))
			pipe.Del(ctx, d.key(kindFriends, id), d.key(kindGroups, id))
		}
		return nil
	})
	if err != nil {
		atomic.AddInt64(&d.failures, 1)
		return fmt.Errorf("invalidate relationships: %w", err)
	}
	return nil
}

func (d *Directory) versionKey(userID string) string {
	return d.prefix + "version:" + userID
}

func (d *Directory) key(kind, userID string) string {
	return d.prefix + kind + ":" + userID
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// HitRate is hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the counters.
func (d *Directory) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&d.hits),
		Misses: atomic.LoadInt64(&d.misses),
		Errors: atomic.LoadInt64(&d.failures),
	}
}

// Collectors exposes the counters as Prometheus metrics.
func (d *Directory) Collectors() []prometheus.Collector {
	counter := func(name, help string, v *int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fridgeshare",
			Subsystem: "relationship_cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(atomic.LoadInt64(v)) })
	}
	return []prometheus.Collector{
		counter("hits_total", "Relationship lookups served from Redis.", &d.hits),
		counter("misses_total", "Relationship lookups loaded from the store.", &d.misses),
		counter("errors_total", "Redis failures and corrupt cache entries.", &d.failures),
	}
}
