package core

import (
	"context"
	"fmt"

	"fridgeshare/pkg/domain"
)

const claimLifecycleRuleName = "claim_lifecycle"

// NewClaimLifecycleRule blocks claims that start outside pending, take an
// edge the claim state machine does not allow, or leave a terminal state.
func NewClaimLifecycleRule() domain.Rule {
	return claimLifecycleRule{}
}

type claimLifecycleRule struct{}

// claimTransitions lists the allowed forward edges; staying put is always allowed.
var claimTransitions = map[domain.ClaimStatus]map[domain.ClaimStatus]struct{}{
	domain.ClaimPending:   toSet(domain.ClaimAccepted, domain.ClaimRejected),
	domain.ClaimAccepted:  toSet(domain.ClaimCompleted),
	domain.ClaimRejected:  {},
	domain.ClaimCompleted: {},
}

func (claimLifecycleRule) Name() string { return claimLifecycleRuleName }

func (claimLifecycleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     claimLifecycleRuleName,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityClaim,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityClaim {
			continue
		}
		after, ok := change.After.(domain.Claim)
		if !ok {
			continue
		}
		if _, known := claimTransitions[after.Status]; !known {
			block(after.ID, fmt.Sprintf("claim %s is set to invalid status %q", after.ID, after.Status))
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			if after.Status != domain.ClaimPending {
				block(after.ID, fmt.Sprintf("claim %s must be created pending, got %s", after.ID, after.Status))
			}
		case domain.ActionUpdate:
			before, ok := change.Before.(domain.Claim)
			if !ok || before.Status == after.Status {
				continue
			}
			if _, allowed := claimTransitions[before.Status][after.Status]; !allowed {
				block(after.ID, fmt.Sprintf("claim %s cannot move from %s to %s", after.ID, before.Status, after.Status))
			}
		}
	}
	return res, nil
}

func toSet[T comparable](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
