package domain

import (
	"context"
	"errors"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{})
	if len(result.Violations) != 1 {
		t.Fatalf("expected empty merge to be a no-op, got %+v", result.Violations)
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	if (RuleViolationError{Result: result}).Error() == "" {
		t.Fatalf("expected error string")
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"first"})
	engine.Register(staticRule{"second"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || res.Violations[1].Rule != "second" {
		t.Fatalf("expected violations in registration order, got %+v", res.Violations)
	}
	rules := engine.Rules()
	rules[0] = nil
	if engine.Rules()[0] == nil {
		t.Fatalf("expected Rules to return a copy")
	}
}

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
}

func TestClaimStatusPredicates(t *testing.T) {
	for _, tc := range []struct {
		status   ClaimStatus
		terminal bool
		live     bool
	}{
		{ClaimPending, false, true},
		{ClaimAccepted, false, true},
		{ClaimRejected, true, false},
		{ClaimCompleted, true, true},
	} {
		if tc.status.Terminal() != tc.terminal || tc.status.Live() != tc.live {
			t.Fatalf("%s: terminal=%v live=%v", tc.status, tc.status.Terminal(), tc.status.Live())
		}
	}
	if ProductStatus("EATEN").Valid() || !ProductConsumed.Valid() {
		t.Fatalf("unexpected product status validity")
	}
	if !Visibility("").Valid() || Visibility("secret").Valid() {
		t.Fatalf("unexpected visibility validity")
	}
	f := Friendship{RequesterID: "a", AddresseeID: "b"}
	if f.Other("a") != "b" || f.Other("b") != "a" || f.Other("c") != "" {
		t.Fatalf("unexpected friendship counterpart")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{}, errors.New("boom")
}

type emptyView struct{}

func (emptyView) ListProducts() []Product            { return nil }
func (emptyView) ListClaims() []Claim                { return nil }
func (emptyView) FindProduct(string) (Product, bool) { return Product{}, false }
func (emptyView) FindClaim(string) (Claim, bool)     { return Claim{}, false }
func (emptyView) ClaimsForProduct(string) []Claim    { return nil }
