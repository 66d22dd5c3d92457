package rediscache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"fridgeshare/pkg/domain"
)

type countingDirectory struct {
	mu      sync.Mutex
	friends map[string][]string
	groups  map[string][]string
	calls   int
	err     error
}

func (c *countingDirectory) FriendIDsOf(_ context.Context, userID string) (domain.IDSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return domain.NewIDSet(c.friends[userID]...), nil
}

func (c *countingDirectory) GroupIDsOf(_ context.Context, userID string) (domain.IDSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return domain.NewIDSet(c.groups[userID]...), nil
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestDirectoryReadThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	inner := &countingDirectory{
		friends: map[string][]string{"1": {"2", "3"}},
		groups:  map[string][]string{"1": {"g1"}},
	}
	dir := New(client, inner, WithTTL(time.Minute), WithPrefix("test:"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		friends, err := dir.FriendIDsOf(ctx, "1")
		if err != nil {
			t.Fatalf("friends: %v", err)
		}
		if len(friends) != 2 || !friends.Has("3") {
			t.Fatalf("unexpected friends %v", friends.Slice())
		}
	}
	groups, err := dir.GroupIDsOf(ctx, "1")
	if err != nil || !groups.Has("g1") {
		t.Fatalf("unexpected groups %v (%v)", groups, err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected one inner lookup per kind, got %d", inner.calls)
	}
	if !mr.Exists("test:friends:1") || !mr.Exists("test:groups:1") {
		t.Fatalf("expected prefixed keys, got %v", mr.Keys())
	}
	if ttl := mr.TTL("test:friends:1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	stats := dir.Stats()
	if stats.Hits != 2 || stats.Misses != 2 || stats.Errors != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.HitRate() != 0.5 {
		t.Fatalf("unexpected hit rate %v", stats.HitRate())
	}

	mr.FastForward(2 * time.Minute)
	if _, err := dir.FriendIDsOf(ctx, "1"); err != nil {
		t.Fatalf("friends after expiry: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expired entry should reload, calls=%d", inner.calls)
	}
}

func TestDirectoryInvalidate(t *testing.T) {
	mr, client := setupTestRedis(t)
	inner := &countingDirectory{friends: map[string][]string{"1": {"2"}}}
	dir := New(client, inner)
	ctx := context.Background()

	if _, err := dir.FriendIDsOf(ctx, "1"); err != nil {
		t.Fatalf("friends: %v", err)
	}
	if _, err := dir.GroupIDsOf(ctx, "1"); err != nil {
		t.Fatalf("groups: %v", err)
	}
	inner.friends["1"] = []string{"2", "4"}
	if err := dir.Invalidate(ctx, "1", ""); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(DefaultPrefix + "friends:1") {
		t.Fatalf("friend entry should be gone")
	}
	friends, err := dir.FriendIDsOf(ctx, "1")
	if err != nil || !friends.Has("4") {
		t.Fatalf("expected refreshed friends, got %v (%v)", friends, err)
	}
	if err := dir.Invalidate(ctx); err != nil {
		t.Fatalf("empty invalidate: %v", err)
	}
}

func TestDirectoryDegradesWhenRedisIsDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	inner := &countingDirectory{groups: map[string][]string{"1": {"g"}}}
	dir := New(client, inner)
	mr.Close()

	groups, err := dir.GroupIDsOf(context.Background(), "1")
	if err != nil || !groups.Has("g") {
		t.Fatalf("expected fallback to inner directory, got %v (%v)", groups, err)
	}
	if dir.Stats().Errors == 0 {
		t.Fatalf("redis failures should be counted")
	}
	if err := dir.Invalidate(context.Background(), "1"); err == nil {
		t.Fatalf("expected invalidate error when redis is down")
	}
}

func TestDirectoryCorruptEntryAndInnerErrors(t *testing.T) {
	mr, client := setupTestRedis(t)
	inner := &countingDirectory{friends: map[string][]string{"1": {"2"}}}
	dir := New(client, inner)
	ctx := context.Background()

	if err := mr.Set(DefaultPrefix+"friends:1", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	friends, err := dir.FriendIDsOf(ctx, "1")
	if err != nil || !friends.Has("2") {
		t.Fatalf("corrupt entry should reload, got %v (%v)", friends, err)
	}
	if got, _ := mr.Get(DefaultPrefix + "friends:1"); got != `["2"]` {
		t.Fatalf("corrupt entry should be overwritten, got %q", got)
	}

	boom := errors.New("store down")
	inner.err = boom
	if _, err := dir.GroupIDsOf(ctx, "9"); !errors.Is(err, boom) {
		t.Fatalf("inner errors must propagate, got %v", err)
	}

	empty, err := dir.FriendIDsOf(ctx, "")
	if err != nil || len(empty) != 0 {
		t.Fatalf("anonymous lookups should be empty: %v %v", empty, err)
	}
}

func TestConnect(t *testing.T) {
	mr, _ := setupTestRedis(t)
	addr := mr.Addr()
	client, err := Connect(context.Background(), addr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = client.Close()

	mr.Close()
	if _, err := Connect(context.Background(), addr); err == nil {
		t.Fatalf("expected connect failure once redis is gone")
	}
}

// invalidatingDirectory returns the set it holds, then simulates a
// relationship change landing before the caller caches that set.
type invalidatingDirectory struct {
	countingDirectory
	dir   *Directory
	fresh []string
	fired bool
}

func (c *invalidatingDirectory) FriendIDsOf(ctx context.Context, userID string) (domain.IDSet, error) {
	set, err := c.countingDirectory.FriendIDsOf(ctx, userID)
	if err != nil || c.fired {
		return set, err
	}
	c.fired = true
	c.friends[userID] = c.fresh
	if err := c.dir.Invalidate(ctx, userID); err != nil {
		return nil, err
	}
	return set, nil
}

func TestDirectorySkipsWriteBackAfterConcurrentInvalidate(t *testing.T) {
	mr, client := setupTestRedis(t)
	inner := &invalidatingDirectory{
		countingDirectory: countingDirectory{friends: map[string][]string{"1": {"2"}}},
		fresh:             []string{"2", "5"},
	}
	dir := New(client, inner)
	inner.dir = dir
	ctx := context.Background()

	stale, err := dir.FriendIDsOf(ctx, "1")
	if err != nil || stale.Has("5") {
		t.Fatalf("first lookup returns what was loaded, got %v (%v)", stale, err)
	}
	if mr.Exists(DefaultPrefix + "friends:1") {
		t.Fatalf("a set loaded before the invalidation must not be cached")
	}
	fresh, err := dir.FriendIDsOf(ctx, "1")
	if err != nil || !fresh.Has("5") {
		t.Fatalf("expected the fresh set, got %v (%v)", fresh, err)
	}
	if !mr.Exists(DefaultPrefix + "friends:1") {
		t.Fatalf("an undisturbed lookup should be cached")
	}
	if got := dir.Stats().Errors; got != 0 {
		t.Fatalf("a skipped write-back is not an error, got %d", got)
	}
}

func TestDirectoryCollectorsReportStats(t *testing.T) {
	_, client := setupTestRedis(t)
	dir := New(client, &countingDirectory{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := dir.GroupIDsOf(ctx, "1"); err != nil {
			t.Fatalf("groups: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(dir.Collectors()...)
	want := map[string]float64{
		"fridgeshare_relationship_cache_hits_total":   2,
		"fridgeshare_relationship_cache_misses_total": 1,
		"fridgeshare_relationship_cache_errors_total": 0,
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != len(want) {
		t.Fatalf("expected %d metric families, got %d", len(want), len(families))
	}
	for _, mf := range families {
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != want[mf.GetName()] {
			t.Fatalf("%s = %v, want %v", mf.GetName(), got, want[mf.GetName()])
		}
	}
}
