package core

import (
	"context"
	"fmt"

	"fridgeshare/pkg/domain"
)

const productStateRuleName = "product_state"

// NewProductStateRule blocks products with an unknown status or visibility
// or without an owner, and warns when share targets will be ignored.
func NewProductStateRule() domain.Rule {
	return productStateRule{}
}

type productStateRule struct{}

func (productStateRule) Name() string { return productStateRuleName }

func (productStateRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	add := func(p domain.Product, severity domain.Severity, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     productStateRuleName,
			Severity: severity,
			Message:  msg,
			Entity:   domain.EntityProduct,
			EntityID: p.ID,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityProduct {
			continue
		}
		p, ok := change.After.(domain.Product)
		if !ok {
			continue
		}
		if p.OwnerID == "" {
			add(p, domain.SeverityBlock, fmt.Sprintf("product %s has no owner", p.ID))
		}
		if !p.Status.Valid() {
			add(p, domain.SeverityBlock, fmt.Sprintf("product %s has invalid status %q", p.ID, p.Status))
		}
		if !p.Visibility.Valid() {
			add(p, domain.SeverityBlock, fmt.Sprintf("product %s has invalid visibility %q", p.ID, p.Visibility))
			continue
		}
		if ignoredTargets(p) {
			add(p, domain.SeverityWarn, fmt.Sprintf("product %s share targets are ignored for %s visibility", p.ID, visibilityLabel(p.Visibility)))
		}
	}
	return res, nil
}

func ignoredTargets(p domain.Product) bool {
	switch p.Visibility {
	case domain.VisibilityGroups:
		return len(p.SharedWith.UserIDs) > 0
	case domain.VisibilitySpecific:
		return len(p.SharedWith.GroupIDs) > 0
	default:
		return len(p.SharedWith.GroupIDs) > 0 || len(p.SharedWith.UserIDs) > 0
	}
}

func visibilityLabel(v domain.Visibility) string {
	if v == "" {
		return string(domain.VisibilityPublic)
	}
	return string(v)
}
