package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fridgeshare/pkg/domain"
)

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(ClockFunc(func() time.Time { return fixedNow }))}, opts...)
	return NewInMemoryService(nil, opts...)
}

func mustProduct(t *testing.T, svc *Service, owner, name string) Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), owner, ProductInput{
		Name:      name,
		Category:  "dairy",
		ExpiresOn: fixedNow.AddDate(0, 0, 5),
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func mustShare(t *testing.T, svc *Service, owner, id string, visibility domain.Visibility, shared SharedWith) Product {
	t.Helper()
	status := domain.ProductAvailable
	p, err := svc.UpdateProduct(context.Background(), owner, id, ProductPatch{
		Status:     &status,
		Visibility: &visibility,
		SharedWith: &shared,
	})
	if err != nil {
		t.Fatalf("share product %s: %v", id, err)
	}
	return p
}

func mustClaim(t *testing.T, svc *Service, claimer, productID string) Claim {
	t.Helper()
	c, err := svc.SubmitClaim(context.Background(), claimer, productID, "")
	if err != nil {
		t.Fatalf("submit claim by %s: %v", claimer, err)
	}
	return c
}

func ptr[T any](v T) *T { return &v }

// fakeDirectory serves fixed relationships and counts lookups.
type fakeDirectory struct {
	mu           sync.Mutex
	friends      map[string][]string
	groups       map[string][]string
	err          error
	friendCalls  int
	groupCalls   int
	invalidated  []string
	invalidateFn func() error
}

func (d *fakeDirectory) FriendIDsOf(_ context.Context, userID string) (IDSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.friendCalls++
	if d.err != nil {
		return nil, d.err
	}
	return domain.NewIDSet(d.friends[userID]...), nil
}

func (d *fakeDirectory) GroupIDsOf(_ context.Context, userID string) (IDSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groupCalls++
	if d.err != nil {
		return nil, d.err
	}
	return domain.NewIDSet(d.groups[userID]...), nil
}

func (d *fakeDirectory) Invalidate(_ context.Context, userIDs ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidated = append(d.invalidated, userIDs...)
	if d.invalidateFn != nil {
		return d.invalidateFn()
	}
	return nil
}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func asRuleViolation(err error, target *domain.RuleViolationError) bool {
	return errors.As(err, target)
}
