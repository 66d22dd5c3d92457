package core

import (
	"context"
	"strings"
	"testing"

	"fridgeshare/pkg/domain"
)

type claimsView struct {
	claims []Claim
}

func (v claimsView) ListProducts() []Product            { return nil }
func (v claimsView) ListClaims() []Claim                { return v.claims }
func (v claimsView) FindProduct(string) (Product, bool) { return Product{}, false }
func (v claimsView) FindClaim(string) (Claim, bool)     { return Claim{}, false }

func (v claimsView) ClaimsForProduct(id string) []Claim {
	var out []Claim
	for _, c := range v.claims {
		if c.ProductID == id {
			out = append(out, c)
		}
	}
	return out
}

func claim(id, product, claimer string, status domain.ClaimStatus) Claim {
	return Claim{Base: domain.Base{ID: id}, ProductID: product, ClaimerID: claimer, Status: status}
}

func claimUpdate(before, after Claim) Change {
	return Change{Entity: domain.EntityClaim, Action: domain.ActionUpdate, Before: before, After: after}
}

func TestClaimLifecycleRuleTransitions(t *testing.T) {
	rule := NewClaimLifecycleRule()
	cases := []struct {
		name    string
		change  Change
		blocked bool
	}{
		{"create pending", Change{Entity: domain.EntityClaim, Action: domain.ActionCreate, After: claim("c", "p", "u", domain.ClaimPending)}, false},
		{"create accepted", Change{Entity: domain.EntityClaim, Action: domain.ActionCreate, After: claim("c", "p", "u", domain.ClaimAccepted)}, true},
		{"pending to accepted", claimUpdate(claim("c", "p", "u", domain.ClaimPending), claim("c", "p", "u", domain.ClaimAccepted)), false},
		{"pending to rejected", claimUpdate(claim("c", "p", "u", domain.ClaimPending), claim("c", "p", "u", domain.ClaimRejected)), false},
		{"accepted to completed", claimUpdate(claim("c", "p", "u", domain.ClaimAccepted), claim("c", "p", "u", domain.ClaimCompleted)), false},
		{"pending to completed", claimUpdate(claim("c", "p", "u", domain.ClaimPending), claim("c", "p", "u", domain.ClaimCompleted)), true},
		{"accepted back to pending", claimUpdate(claim("c", "p", "u", domain.ClaimAccepted), claim("c", "p", "u", domain.ClaimPending)), true},
		{"leave rejected", claimUpdate(claim("c", "p", "u", domain.ClaimRejected), claim("c", "p", "u", domain.ClaimAccepted)), true},
		{"leave completed", claimUpdate(claim("c", "p", "u", domain.ClaimCompleted), claim("c", "p", "u", domain.ClaimRejected)), true},
		{"unknown status", claimUpdate(claim("c", "p", "u", domain.ClaimPending), claim("c", "p", "u", "archived")), true},
		{"message edit", claimUpdate(claim("c", "p", "u", domain.ClaimRejected), claim("c", "p", "u", domain.ClaimRejected)), false},
		{"ignores products", Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: Product{}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(context.Background(), claimsView{}, []Change{tc.change})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if res.HasBlocking() != tc.blocked {
				t.Fatalf("blocked=%v want %v: %+v", res.HasBlocking(), tc.blocked, res.Violations)
			}
			for _, v := range res.Violations {
				if v.Rule != claimLifecycleRuleName || v.Entity != domain.EntityClaim || v.EntityID != "c" {
					t.Fatalf("unexpected violation shape %+v", v)
				}
			}
		})
	}
}

func TestSingleAcceptanceRule(t *testing.T) {
	rule := NewSingleAcceptanceRule()
	ctx := context.Background()

	c1 := claim("c1", "p", "B", domain.ClaimAccepted)
	c2 := claim("c2", "p", "C", domain.ClaimAccepted)
	view := claimsView{claims: []Claim{c1, c2}}
	res, err := rule.Evaluate(ctx, view, []Change{
		claimUpdate(claim("c1", "p", "B", domain.ClaimPending), c1),
		claimUpdate(claim("c2", "p", "C", domain.ClaimPending), c2),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() || !strings.Contains(res.Violations[0].Message, "2 claims") {
		t.Fatalf("expected double acceptance to block, got %+v", res.Violations)
	}

	dup := claimsView{claims: []Claim{
		claim("c1", "p", "B", domain.ClaimPending),
		claim("c2", "p", "B", domain.ClaimPending),
	}}
	res, err = rule.Evaluate(ctx, dup, []Change{{Entity: domain.EntityClaim, Action: domain.ActionCreate, After: dup.claims[1]}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() || res.Violations[0].EntityID != "p" {
		t.Fatalf("expected duplicate pending claims to block, got %+v", res.Violations)
	}

	history := claimsView{claims: []Claim{
		claim("old", "p", "B", domain.ClaimCompleted),
		claim("c3", "p", "D", domain.ClaimAccepted),
		claim("c4", "p", "B", domain.ClaimRejected),
		claim("c5", "p", "B", domain.ClaimPending),
	}}
	res, err = rule.Evaluate(ctx, history, []Change{claimUpdate(claim("c3", "p", "D", domain.ClaimPending), history.claims[1])})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("earlier ownership cycles must not block a new acceptance: %+v", res.Violations)
	}
}

func TestProductStateRule(t *testing.T) {
	rule := NewProductStateRule()
	eval := func(p Product) Result {
		t.Helper()
		res, err := rule.Evaluate(context.Background(), claimsView{}, []Change{{Entity: domain.EntityProduct, Action: domain.ActionUpdate, After: p}})
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		return res
	}
	ok := Product{Base: domain.Base{ID: "p"}, OwnerID: "A", Status: domain.ProductAvailable, Visibility: domain.VisibilityGroups, SharedWith: domain.NewSharedWith([]string{"g"}, nil)}
	if res := eval(ok); len(res.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}

	bad := ok
	bad.Status = "LOST"
	if !eval(bad).HasBlocking() {
		t.Fatalf("invalid status should block")
	}
	bad = ok
	bad.Visibility = "everyone"
	if !eval(bad).HasBlocking() {
		t.Fatalf("invalid visibility should block")
	}
	bad = ok
	bad.OwnerID = ""
	if !eval(bad).HasBlocking() {
		t.Fatalf("missing owner should block")
	}

	ignored := ok
	ignored.Visibility = domain.VisibilityFriends
	res := eval(ignored)
	if res.HasBlocking() || len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected a single warning for ignored targets, got %+v", res.Violations)
	}
}

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	var names []string
	for _, r := range NewDefaultRulesEngine().Rules() {
		names = append(names, r.Name())
	}
	want := []string{productStateRuleName, claimLifecycleRuleName, singleAcceptanceRuleName}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("rules = %v, want %v", names, want)
	}
}

func TestLifecycleRuleBlocksDirectStoreWrites(t *testing.T) {
	svc := newTestService(t)
	p := mustProduct(t, svc, "A", "jam")
	mustShare(t, svc, "A", p.ID, domain.VisibilityPublic, SharedWith{})
	c := mustClaim(t, svc, "B", p.ID)

	_, err := svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateClaim(c.ID, setClaimStatus(domain.ClaimCompleted))
		return err
	})
	var violation domain.RuleViolationError
	if !asRuleViolation(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	stored, _ := svc.Store().GetClaim(c.ID)
	if stored.Status != domain.ClaimPending {
		t.Fatalf("blocked transition must not commit, got %s", stored.Status)
	}
}
