package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error
	CreateClaim(Claim) (Claim, error)
	UpdateClaim(id string, mutator func(*Claim) error) (Claim, error)
	CreateFriendship(Friendship) (Friendship, error)
	CreateGroupMembership(GroupMembership) (GroupMembership, error)
	FindProduct(id string) (Product, bool)
	FindClaim(id string) (Claim, bool)
}

// TransactionView provides read-only access to snapshot data for rules and listings.
type TransactionView interface {
	ListProducts() []Product
	ListClaims() []Claim
	ListFriendships() []Friendship
	ListGroupMemberships() []GroupMembership
	FindProduct(id string) (Product, bool)
	FindClaim(id string) (Claim, bool)
	ClaimsForProduct(productID string) []Claim
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProduct(id string) (Product, bool)
	ListProducts() []Product
	GetClaim(id string) (Claim, bool)
	ListClaims() []Claim
	ListFriendships() []Friendship
	ListGroupMemberships() []GroupMembership
}

// RelationshipDirectory answers social-graph lookups for a user. It is
// read-only; the facts are owned by the friend and group subsystems.
type RelationshipDirectory interface {
	FriendIDsOf(ctx context.Context, userID string) (IDSet, error)
	GroupIDsOf(ctx context.Context, userID string) (IDSet, error)
}

// DirectoryInvalidator is implemented by directories that cache lookups and
// must forget a user's entries after their relationship facts change.
type DirectoryInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...string) error
}
