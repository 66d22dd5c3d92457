package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsMatchThroughWrapping(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrNotFound{Entity: EntityProduct, ID: "p1"}, ErrNotFoundKind},
		{ErrNotAvailable{ProductID: "p1", Status: ProductInFridge}, ErrNotAvailableKind},
		{ErrDuplicateClaim{ProductID: "p1", ClaimerID: "u"}, ErrDuplicateClaimKind},
		{ErrInvalidTransition{ClaimID: "c1", From: ClaimRejected, To: ClaimAccepted}, ErrInvalidTransitionKind},
		{ErrForbidden{Actor: "u", Action: "decide claim"}, ErrForbiddenKind},
		{ErrForbidden{Action: "submit claim"}, ErrForbiddenKind},
		{ErrInvalidInput{Field: "name", Reason: "required"}, ErrInvalidInputKind},
	}
	for _, tc := range tests {
		wrapped := fmt.Errorf("op: %w", tc.err)
		if !errors.Is(wrapped, tc.kind) {
			t.Fatalf("%T should match %v", tc.err, tc.kind)
		}
		if errors.Is(wrapped, ErrMalformedSharePayload) {
			t.Fatalf("%T should not match unrelated sentinel", tc.err)
		}
		if tc.err.Error() == "" {
			t.Fatalf("%T has empty message", tc.err)
		}
	}
	var transition ErrInvalidTransition
	if !errors.As(fmt.Errorf("wrap: %w", ErrInvalidTransition{ClaimID: "c9", From: ClaimAccepted, To: ClaimAccepted}), &transition) || transition.ClaimID != "c9" {
		t.Fatalf("expected errors.As to recover payload")
	}
}
