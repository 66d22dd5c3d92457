package core

import (
	"context"
	"fmt"
	"sort"

	"fridgeshare/pkg/domain"
)

const singleAcceptanceRuleName = "single_acceptance"

// NewSingleAcceptanceRule blocks commits that accept more than one claim for
// the same product, or that leave a claimer with two pending claims on one
// product.
func NewSingleAcceptanceRule() domain.Rule {
	return singleAcceptanceRule{}
}

type singleAcceptanceRule struct{}

func (singleAcceptanceRule) Name() string { return singleAcceptanceRuleName }

func (singleAcceptanceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	accepted := make(map[string][]string)
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityClaim {
			continue
		}
		after, ok := change.After.(domain.Claim)
		if !ok {
			continue
		}
		touched[after.ProductID] = struct{}{}
		if after.Status != domain.ClaimAccepted {
			continue
		}
		if before, ok := change.Before.(domain.Claim); ok && before.Status == domain.ClaimAccepted {
			continue
		}
		accepted[after.ProductID] = append(accepted[after.ProductID], after.ID)
	}

	res := domain.Result{}
	for _, productID := range sortedKeys(touched) {
		if ids := accepted[productID]; len(ids) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     singleAcceptanceRuleName,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("product %s cannot accept %d claims at once %v", productID, len(ids), ids),
				Entity:   domain.EntityProduct,
				EntityID: productID,
			})
		}
		pending := make(map[string]int)
		for _, c := range view.ClaimsForProduct(productID) {
			if c.Status == domain.ClaimPending {
				pending[c.ClaimerID]++
			}
		}
		for _, claimer := range sortedKeys(pending) {
			if pending[claimer] < 2 {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     singleAcceptanceRuleName,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("user %s holds %d pending claims on product %s", claimer, pending[claimer], productID),
				Entity:   domain.EntityProduct,
				EntityID: productID,
			})
		}
	}
	return res, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
