package integration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"fridgeshare/internal/core"
	"fridgeshare/internal/infra/cache/rediscache"
	"fridgeshare/pkg/domain"
)

// Recording a friendship must be visible through the redis cache right away,
// even when the viewer's empty friend set was cached just before.
func TestCachedDirectoryFollowsRecordedFriendships(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := core.NewMemoryStore(core.NewDefaultRulesEngine())
	cache := rediscache.New(client, core.NewStoreDirectory(store))
	svc := core.NewService(store, core.WithRelationshipDirectory(cache))

	p, err := svc.CreateProduct(ctx, "alice", core.ProductInput{
		Name:      "Bread",
		Category:  "bakery",
		ExpiresOn: time.Now().UTC().AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	status := domain.ProductAvailable
	visibility := domain.VisibilityFriends
	if _, err := svc.UpdateProduct(ctx, "alice", p.ID, core.ProductPatch{Status: &status, Visibility: &visibility}); err != nil {
		t.Fatalf("share with friends: %v", err)
	}

	visible, err := svc.ListProducts(ctx, core.ProductQuery{ViewerID: "bob"})
	if err != nil {
		t.Fatalf("list before friendship: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("stranger should not see friends-only product: %+v", visible)
	}

	if _, err := svc.RecordFriendship(ctx, "bob", "alice", "bob"); err != nil {
		t.Fatalf("record friendship: %v", err)
	}
	visible, err = svc.ListProducts(ctx, core.ProductQuery{ViewerID: "bob"})
	if err != nil {
		t.Fatalf("list after friendship: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != p.ID {
		t.Fatalf("friend should see the product, got %+v", visible)
	}
	if stats := cache.Stats(); stats.Misses == 0 {
		t.Fatalf("expected cache misses to be recorded: %+v", stats)
	}
}
