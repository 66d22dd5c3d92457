// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by fridgeshare.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies a perishable item tracked in a fridge.
	EntityProduct EntityType = "product"
	// EntityClaim identifies a request to take over a shared product.
	EntityClaim EntityType = "claim"
	// EntityFriendship identifies an accepted friendship fact.
	EntityFriendship EntityType = "friendship"
	// EntityGroupMembership identifies a user to group membership fact.
	EntityGroupMembership EntityType = "group_membership"
)

// ProductStatus enumerates where a product sits in its owner's fridge workflow.
type ProductStatus string

// Canonical product statuses.
const (
	// ProductInFridge is private to the owner and not claimable.
	ProductInFridge ProductStatus = "IN_FRIDGE"
	// ProductAvailable is listed for others and claimable.
	ProductAvailable ProductStatus = "AVAILABLE"
	ProductConsumed  ProductStatus = "CONSUMED"
)

// Valid reports whether the status is one of the canonical values.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductInFridge, ProductAvailable, ProductConsumed:
		return true
	}
	return false
}

// Visibility is the access-control mode governing who may see a product.
type Visibility string

// Canonical visibility modes. An empty visibility is treated as public.
const (
	VisibilityPublic   Visibility = "public"
	VisibilityFriends  Visibility = "friends"
	VisibilityGroups   Visibility = "groups"
	VisibilitySpecific Visibility = "specific"
)

// Valid reports whether the visibility is empty or one of the canonical modes.
func (v Visibility) Valid() bool {
	switch v {
	case "", VisibilityPublic, VisibilityFriends, VisibilityGroups, VisibilitySpecific:
		return true
	}
	return false
}

// ClaimStatus enumerates the claim lifecycle states.
type ClaimStatus string

// Canonical claim statuses. Rejected and completed are terminal.
const (
	ClaimPending   ClaimStatus = "pending"
	ClaimAccepted  ClaimStatus = "accepted"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimCompleted ClaimStatus = "completed"
)

// Terminal reports whether no further transition may leave the status.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimRejected || s == ClaimCompleted
}

// Live reports whether the claim still blocks a new claim by the same user.
func (s ClaimStatus) Live() bool {
	return s != ClaimRejected
}

// Decision is an owner's verdict on a pending claim.
type Decision string

// Supported decisions.
const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product represents a perishable item owned by a user.
type Product struct {
	Base
	OwnerID    string        `json:"owner_id"`
	Name       string        `json:"name"`
	Category   string        `json:"category"`
	ExpiresOn  time.Time     `json:"expires_on"`
	Status     ProductStatus `json:"status"`
	Visibility Visibility    `json:"visibility"`
	SharedWith SharedWith    `json:"shared_with"`
	PhotoKey   string        `json:"photo_key,omitempty"`
}

// Claim is a request by a non-owner to take over an available product.
type Claim struct {
	Base
	ProductID string      `json:"product_id"`
	ClaimerID string      `json:"claimer_id"`
	// DeciderID is the product owner when the claim was submitted.
	DeciderID string      `json:"decider_id,omitempty"`
	Status    ClaimStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
}

// Involves reports whether userID submitted the claim or may decide it.
func (c Claim) Involves(userID string) bool {
	return userID != "" && (userID == c.ClaimerID || userID == c.DeciderID)
}

// Friendship is an accepted, directionless link between two users.
type Friendship struct {
	Base
	RequesterID string `json:"requester_id"`
	AddresseeID string `json:"addressee_id"`
}

// Other returns the counterpart of userID, or "" if userID is not a party.
func (f Friendship) Other(userID string) string {
	switch userID {
	case f.RequesterID:
		return f.AddresseeID
	case f.AddresseeID:
		return f.RequesterID
	}
	return ""
}

// GroupMembership links a user to a group.
type GroupMembership struct {
	Base
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
