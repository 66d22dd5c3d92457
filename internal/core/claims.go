package core

import (
	"context"
	"sort"
	"strings"

	"fridgeshare/pkg/domain"
)

// ClaimFilter narrows ListClaims. Empty fields match everything.
type ClaimFilter struct {
	ClaimerID string
	ProductID string
}

// SubmitClaim records a pending claim by actor on an AVAILABLE product the
// actor does not own. A previously rejected claim does not block a new one.
func (s *Service) SubmitClaim(ctx context.Context, actor, productID, message string) (Claim, error) {
	var out Claim
	err := s.run(ctx, "submit_claim", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "claim products"); err != nil {
			return "", err
		}
		err := s.transact(ctx, "submit_claim", func(tx Transaction) error {
			product, ok := tx.FindProduct(productID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityProduct, ID: productID}
			}
			if product.OwnerID == actor {
				return domain.ErrForbidden{Actor: actor, Action: "claim own product " + productID}
			}
			if product.Status != domain.ProductAvailable {
				return domain.ErrNotAvailable{ProductID: productID, Status: product.Status}
			}
			for _, existing := range tx.Snapshot().ClaimsForProduct(productID) {
				if existing.ClaimerID == actor && existing.Status.Live() {
					return domain.ErrDuplicateClaim{ProductID: productID, ClaimerID: actor}
				}
			}
			var err error
			out, err = tx.CreateClaim(Claim{
				ProductID: productID,
				ClaimerID: actor,
				DeciderID: product.OwnerID,
				Status:    domain.ClaimPending,
				Message:   strings.TrimSpace(message),
			})
			return err
		})
		return out.ID, err
	})
	return out, err
}

// DecideClaim lets the product owner accept or reject a pending claim.
//
// Accepting is a single transaction: the claim becomes accepted, the product
// moves to the claimer's fridge as a public item with no share targets, and
// every other pending claim on the product is rejected. A concurrent decision
// on a sibling claim therefore observes a rejected claim and fails with
// ErrInvalidTransition.
func (s *Service) DecideClaim(ctx context.Context, actor, claimID string, decision domain.Decision) (Claim, Product, error) {
	var (
		claim   Claim
		product Product
	)
	err := s.run(ctx, "decide_claim", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "decide claims"); err != nil {
			return claimID, err
		}
		target, ok := decisionStatus(decision)
		if !ok {
			return claimID, domain.ErrInvalidInput{Field: "decision", Reason: "must be accept or reject"}
		}
		err := s.transact(ctx, "decide_claim", func(tx Transaction) error {
			current, ok := tx.FindClaim(claimID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityClaim, ID: claimID}
			}
			// A decided claim may already have moved the product to a new
			// owner, so the state check runs before the ownership check.
			if current.Status != domain.ClaimPending {
				return domain.ErrInvalidTransition{ClaimID: claimID, From: current.Status, To: target}
			}
			p, ok := tx.FindProduct(current.ProductID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityProduct, ID: current.ProductID}
			}
			if p.OwnerID != actor {
				return domain.ErrForbidden{Actor: actor, Action: "decide claim " + claimID}
			}
			var err error
			claim, err = tx.UpdateClaim(claimID, setClaimStatus(target))
			if err != nil {
				return err
			}
			if target == domain.ClaimRejected {
				product = p
				return nil
			}
			product, err = tx.UpdateProduct(p.ID, func(p *Product) error {
				p.OwnerID = current.ClaimerID
				p.Status = domain.ProductInFridge
				p.Visibility = domain.VisibilityPublic
				p.SharedWith = SharedWith{}
				return nil
			})
			if err != nil {
				return err
			}
			for _, sibling := range tx.Snapshot().ClaimsForProduct(p.ID) {
				if sibling.ID == claimID || sibling.Status != domain.ClaimPending {
					continue
				}
				if _, err := tx.UpdateClaim(sibling.ID, setClaimStatus(domain.ClaimRejected)); err != nil {
					return err
				}
			}
			return nil
		})
		return claimID, err
	})
	return claim, product, err
}

func decisionStatus(d domain.Decision) (domain.ClaimStatus, bool) {
	switch d {
	case domain.DecisionAccept:
		return domain.ClaimAccepted, true
	case domain.DecisionReject:
		return domain.ClaimRejected, true
	}
	return "", false
}

func setClaimStatus(status domain.ClaimStatus) func(*Claim) error {
	return func(c *Claim) error {
		c.Status = status
		return nil
	}
}

// CompleteClaim lets the claimer confirm the handoff of an accepted claim.
func (s *Service) CompleteClaim(ctx context.Context, actor, claimID string) (Claim, error) {
	var out Claim
	err := s.run(ctx, "complete_claim", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "complete claims"); err != nil {
			return claimID, err
		}
		err := s.transact(ctx, "complete_claim", func(tx Transaction) error {
			current, ok := tx.FindClaim(claimID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityClaim, ID: claimID}
			}
			if current.ClaimerID != actor {
				return domain.ErrForbidden{Actor: actor, Action: "complete claim " + claimID}
			}
			if current.Status != domain.ClaimAccepted {
				return domain.ErrInvalidTransition{ClaimID: claimID, From: current.Status, To: domain.ClaimCompleted}
			}
			var err error
			out, err = tx.UpdateClaim(claimID, setClaimStatus(domain.ClaimCompleted))
			return err
		})
		return claimID, err
	})
	return out, err
}

// ListClaims returns the claims matching filter that actor takes part in,
// either as the claimer or as the owner the claim was addressed to, oldest
// first.
func (s *Service) ListClaims(ctx context.Context, actor string, filter ClaimFilter) ([]Claim, error) {
	var out []Claim
	err := s.run(ctx, "list_claims", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "list claims"); err != nil {
			return "", err
		}
		return "", s.store.View(ctx, func(v TransactionView) error {
			for _, c := range v.ListClaims() {
				if filter.ClaimerID != "" && c.ClaimerID != filter.ClaimerID {
					continue
				}
				if filter.ProductID != "" && c.ProductID != filter.ProductID {
					continue
				}
				if !c.Involves(actor) {
					continue
				}
				out = append(out, c)
			}
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}
