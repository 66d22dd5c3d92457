package core

import (
	"context"
	"errors"
	"testing"

	"fridgeshare/pkg/domain"
)

func TestIsVisible(t *testing.T) {
	rel := func(viewer string, friends, groups []string) Relationships {
		return Relationships{ViewerID: viewer, Friends: domain.NewIDSet(friends...), Groups: domain.NewIDSet(groups...)}
	}
	product := func(v domain.Visibility, shared SharedWith) Product {
		return Product{Base: domain.Base{ID: "p1"}, OwnerID: "1", Visibility: v, SharedWith: shared}
	}
	malformed, err := domain.DecodeSharedWith([]byte(`"group:9"`))
	if err == nil {
		t.Fatalf("expected legacy text payload to be reported as malformed")
	}

	cases := []struct {
		name string
		p    Product
		rel  Relationships
		want bool
	}{
		{"owner sees private mode", product(domain.VisibilitySpecific, SharedWith{}), rel("1", nil, nil), true},
		{"empty visibility is public", product("", SharedWith{}), rel("9", nil, nil), true},
		{"public to anonymous", product(domain.VisibilityPublic, SharedWith{}), rel("", nil, nil), true},
		{"friends to friend", product(domain.VisibilityFriends, SharedWith{}), rel("2", []string{"1"}, nil), true},
		{"friends to stranger", product(domain.VisibilityFriends, SharedWith{}), rel("3", []string{"4"}, nil), false},
		{"friends to anonymous", product(domain.VisibilityFriends, SharedWith{}), rel("", nil, nil), false},
		{"groups overlap", product(domain.VisibilityGroups, domain.NewSharedWith([]string{"g1", "g2"}, nil)), rel("5", nil, []string{"g2"}), true},
		{"groups disjoint", product(domain.VisibilityGroups, domain.NewSharedWith([]string{"g1"}, nil)), rel("5", nil, []string{"g3"}), false},
		{"groups without targets", product(domain.VisibilityGroups, SharedWith{}), rel("5", nil, []string{"g1"}), false},
		{"specific listed", product(domain.VisibilitySpecific, domain.NewSharedWith(nil, []string{"7"})), rel("7", nil, nil), true},
		{"specific unlisted", product(domain.VisibilitySpecific, domain.NewSharedWith(nil, []string{"7"})), rel("8", nil, nil), false},
		{"specific ignores group targets", product(domain.VisibilitySpecific, domain.NewSharedWith([]string{"g1"}, nil)), rel("8", nil, []string{"g1"}), false},
		{"malformed groups denied", product(domain.VisibilityGroups, malformed), rel("5", []string{"1"}, []string{"9"}), false},
		{"malformed owner still sees", product(domain.VisibilityGroups, malformed), rel("1", nil, nil), true},
		{"unknown mode denied", product("circle", SharedWith{}), rel("2", []string{"1"}, nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsVisible(tc.p, tc.rel); got != tc.want {
				t.Fatalf("IsVisible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterVisibleFetchesRelationshipsOnceAndKeepsOrder(t *testing.T) {
	dir := &fakeDirectory{
		friends: map[string][]string{"2": {"1"}},
		groups:  map[string][]string{"2": {"g1"}},
	}
	engine := NewVisibilityEngine(dir)
	candidates := []Product{
		{Base: domain.Base{ID: "a"}, OwnerID: "1", Visibility: domain.VisibilityFriends},
		{Base: domain.Base{ID: "b"}, OwnerID: "3", Visibility: domain.VisibilityFriends},
		{Base: domain.Base{ID: "c"}, OwnerID: "3", Visibility: domain.VisibilityPublic},
		{Base: domain.Base{ID: "d"}, OwnerID: "3", Visibility: domain.VisibilityGroups, SharedWith: domain.NewSharedWith([]string{"g1"}, nil)},
		{Base: domain.Base{ID: "e"}, OwnerID: "3", Visibility: domain.VisibilitySpecific, SharedWith: domain.NewSharedWith(nil, []string{"4"})},
	}
	got, err := engine.FilterVisible(context.Background(), candidates, "2")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if want := []string{"a", "c", "d"}; len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
		t.Fatalf("unexpected visible set %v", ids)
	}
	if dir.friendCalls != 1 || dir.groupCalls != 1 {
		t.Fatalf("expected one lookup each, got friends=%d groups=%d", dir.friendCalls, dir.groupCalls)
	}
}

func TestFilterVisibleAnonymousSkipsDirectory(t *testing.T) {
	dir := &fakeDirectory{}
	engine := NewVisibilityEngine(dir)
	got, err := engine.FilterVisible(context.Background(), []Product{
		{Base: domain.Base{ID: "a"}, OwnerID: "1", Visibility: domain.VisibilityPublic},
		{Base: domain.Base{ID: "b"}, OwnerID: "1", Visibility: domain.VisibilityFriends},
	}, "")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("anonymous viewer should only see public products, got %+v", got)
	}
	if dir.friendCalls+dir.groupCalls != 0 {
		t.Fatalf("anonymous viewer should not hit the directory")
	}
}

func TestVisibilityEngineDirectoryFailure(t *testing.T) {
	boom := errors.New("directory down")
	engine := NewVisibilityEngine(&fakeDirectory{err: boom})
	p := Product{Base: domain.Base{ID: "a"}, OwnerID: "1", Visibility: domain.VisibilityFriends}
	if _, err := engine.FilterVisible(context.Background(), []Product{p}, "2"); !errors.Is(err, boom) {
		t.Fatalf("expected directory error, got %v", err)
	}
	if _, err := engine.IsVisible(context.Background(), p, "2"); !errors.Is(err, boom) {
		t.Fatalf("expected directory error, got %v", err)
	}
	ok, err := engine.IsVisible(context.Background(), p, "1")
	if err != nil || !ok {
		t.Fatalf("owner check must not need the directory: ok=%v err=%v", ok, err)
	}
}

func TestFriendsVisibilityThroughService(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	p := mustProduct(t, svc, "1", "yoghurt")
	mustShare(t, svc, "1", p.ID, domain.VisibilityFriends, SharedWith{})
	if _, err := svc.RecordFriendship(ctx, "1", "2", "1"); err != nil {
		t.Fatalf("record friendship: %v", err)
	}

	for viewer, want := range map[string]bool{"1": true, "2": true, "3": false, "": false} {
		list, err := svc.ListProducts(ctx, ProductQuery{ViewerID: viewer})
		if err != nil {
			t.Fatalf("list for %q: %v", viewer, err)
		}
		if got := len(list) == 1; got != want {
			t.Fatalf("viewer %q: visible=%v want %v", viewer, got, want)
		}
	}
}
