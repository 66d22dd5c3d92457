// Package core implements the fridge-sharing service: product visibility,
// the claim lifecycle and the ownership transfer that acceptance triggers.
package core

import (
	"fridgeshare/internal/infra/persistence/memory"
	"fridgeshare/pkg/domain"
)

type (
	// Product aliases domain.Product.
	Product = domain.Product
	// Claim aliases domain.Claim.
	Claim = domain.Claim
	// SharedWith aliases domain.SharedWith.
	SharedWith = domain.SharedWith
	// IDSet aliases domain.IDSet.
	IDSet = domain.IDSet
	// Change aliases domain.Change.
	Change = domain.Change
	// Result aliases domain.Result.
	Result = domain.Result
	// Violation aliases domain.Violation.
	Violation = domain.Violation
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
	// RelationshipDirectory aliases domain.RelationshipDirectory.
	RelationshipDirectory = domain.RelationshipDirectory
	// MemoryStore aliases the in-memory store implementation.
	MemoryStore = memory.Store
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// NewMemoryStore constructs an in-memory store bound to the engine.
func NewMemoryStore(engine *RulesEngine) *MemoryStore { return memory.NewStore(engine) }
