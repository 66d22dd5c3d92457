// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fridgeshare/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Product aliases domain.Product for in-memory persistence operations.
	Product = domain.Product
	// Claim aliases domain.Claim.
	Claim = domain.Claim
	// Friendship aliases domain.Friendship.
	Friendship = domain.Friendship
	// GroupMembership aliases domain.GroupMembership.
	GroupMembership = domain.GroupMembership
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	products    map[string]Product
	claims      map[string]Claim
	friendships map[string]Friendship
	memberships map[string]GroupMembership
}

// Snapshot captures the full store state for external persistence.
type Snapshot struct {
	Products    map[string]Product         `json:"products"`
	Claims      map[string]Claim           `json:"claims"`
	Friendships map[string]Friendship      `json:"friendships"`
	Memberships map[string]GroupMembership `json:"memberships"`
}

func newMemoryState() memoryState {
	return memoryState{
		products:    make(map[string]Product),
		claims:      make(map[string]Claim),
		friendships: make(map[string]Friendship),
		memberships: make(map[string]GroupMembership),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Products:    cloned.products,
		Claims:      cloned.claims,
		Friendships: cloned.friendships,
		Memberships: cloned.memberships,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Products {
		state.products[k] = cloneProduct(v)
	}
	for k, v := range s.Claims {
		state.claims[k] = v
	}
	for k, v := range s.Friendships {
		state.friendships[k] = v
	}
	for k, v := range s.Memberships {
		state.memberships[k] = v
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.products {
		cloned.products[k] = cloneProduct(v)
	}
	for k, v := range s.claims {
		cloned.claims[k] = v
	}
	for k, v := range s.friendships {
		cloned.friendships[k] = v
	}
	for k, v := range s.memberships {
		cloned.memberships[k] = v
	}
	return cloned
}

func cloneProduct(p Product) Product {
	cp := p
	cp.SharedWith = p.SharedWith.Clone()
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	commit CommitHook
}

// CommitHook receives the state a transaction is about to install. An error
// aborts the commit and the previous state stays in place.
type CommitHook func(ctx context.Context, next Snapshot) error

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetCommitHook installs fn to run inside every commit, before the new state
// becomes visible. Durable stores use it to write through.
func (s *Store) SetCommitHook(fn CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit = fn
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider stamped onto records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListProducts returns all products within the snapshot, oldest first.
func (v transactionView) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return lessBase(out[i].Base, out[j].Base) })
	return out
}

// ListClaims returns all claims within the snapshot, oldest first.
func (v transactionView) ListClaims() []Claim {
	out := make([]Claim, 0, len(v.state.claims))
	for _, c := range v.state.claims {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return lessBase(out[i].Base, out[j].Base) })
	return out
}

// ListFriendships returns all friendship facts.
func (v transactionView) ListFriendships() []Friendship {
	out := make([]Friendship, 0, len(v.state.friendships))
	for _, f := range v.state.friendships {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return lessBase(out[i].Base, out[j].Base) })
	return out
}

// ListGroupMemberships returns all membership facts.
func (v transactionView) ListGroupMemberships() []GroupMembership {
	out := make([]GroupMembership, 0, len(v.state.memberships))
	for _, m := range v.state.memberships {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return lessBase(out[i].Base, out[j].Base) })
	return out
}

// FindProduct retrieves a product by ID from the snapshot.
func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// FindClaim retrieves a claim by ID from the snapshot.
func (v transactionView) FindClaim(id string) (Claim, bool) {
	c, ok := v.state.claims[id]
	return c, ok
}

// ClaimsForProduct returns the claims referencing productID, oldest first.
func (v transactionView) ClaimsForProduct(productID string) []Claim {
	var out []Claim
	for _, c := range v.state.claims {
		if c.ProductID == productID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessBase(out[i].Base, out[j].Base) })
	return out
}

func lessBase(a, b domain.Base) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn, every blocking rule and
// the commit hook succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commit != nil {
		if err := s.commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindProduct exposes product lookup within the transaction scope.
func (tx *transaction) FindProduct(id string) (Product, bool) {
	return newTransactionView(&tx.state).FindProduct(id)
}

// FindClaim exposes claim lookup within the transaction scope.
func (tx *transaction) FindClaim(id string) (Claim, bool) {
	return newTransactionView(&tx.state).FindClaim(id)
}

// CreateProduct stores a new product within the transaction.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	if p.Status == "" {
		p.Status = domain.ProductInFridge
	}
	if p.Visibility == "" {
		p.Visibility = domain.VisibilityPublic
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = cloneProduct(p)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: cloneProduct(p)})
	return cloneProduct(p), nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	before := cloneProduct(current)
	current = cloneProduct(current)
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.products[id] = cloneProduct(current)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: cloneProduct(current)})
	return cloneProduct(current), nil
}

// DeleteProduct removes a product from the transaction state.
func (tx *transaction) DeleteProduct(id string) error {
	current, ok := tx.state.products[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	delete(tx.state.products, id)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, Before: cloneProduct(current)})
	return nil
}

// CreateClaim stores a new claim. The referenced product must exist.
func (tx *transaction) CreateClaim(c Claim) (Claim, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.claims[c.ID]; exists {
		return Claim{}, fmt.Errorf("claim %q already exists", c.ID)
	}
	if _, ok := tx.state.products[c.ProductID]; !ok {
		return Claim{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: c.ProductID}
	}
	if c.Status == "" {
		c.Status = domain.ClaimPending
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.claims[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityClaim, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateClaim mutates a claim. Claims are never deleted, only terminal-stated.
func (tx *transaction) UpdateClaim(id string, mutator func(*Claim) error) (Claim, error) {
	current, ok := tx.state.claims[id]
	if !ok {
		return Claim{}, domain.ErrNotFound{Entity: domain.EntityClaim, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Claim{}, err
	}
	current.ID = id
	current.ProductID = before.ProductID
	current.ClaimerID = before.ClaimerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.claims[id] = current
	tx.recordChange(Change{Entity: domain.EntityClaim, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateFriendship records an accepted friendship. Recording an existing pair
// in either direction returns the stored fact unchanged.
func (tx *transaction) CreateFriendship(f Friendship) (Friendship, error) {
	if f.RequesterID == "" || f.AddresseeID == "" {
		return Friendship{}, fmt.Errorf("friendship requires both parties")
	}
	if f.RequesterID == f.AddresseeID {
		return Friendship{}, fmt.Errorf("user %q cannot befriend themselves", f.RequesterID)
	}
	for _, existing := range tx.state.friendships {
		if existing.Other(f.RequesterID) == f.AddresseeID {
			return existing, nil
		}
	}
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.friendships[f.ID] = f
	tx.recordChange(Change{Entity: domain.EntityFriendship, Action: domain.ActionCreate, After: f})
	return f, nil
}

// CreateGroupMembership records a membership; duplicates return the stored fact.
func (tx *transaction) CreateGroupMembership(m GroupMembership) (GroupMembership, error) {
	if m.GroupID == "" || m.UserID == "" {
		return GroupMembership{}, fmt.Errorf("group membership requires group and user")
	}
	for _, existing := range tx.state.memberships {
		if existing.GroupID == m.GroupID && existing.UserID == m.UserID {
			return existing, nil
		}
	}
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.memberships[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntityGroupMembership, Action: domain.ActionCreate, After: m})
	return m, nil
}

// Read helpers ---------------------------------------------------------------

// GetProduct retrieves a product by ID from committed state.
func (s *Store) GetProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindProduct(id)
}

// ListProducts returns all products from committed state.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListProducts()
}

// GetClaim retrieves a claim by ID from committed state.
func (s *Store) GetClaim(id string) (Claim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindClaim(id)
}

// ListClaims returns all claims from committed state.
func (s *Store) ListClaims() []Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListClaims()
}

// ListFriendships returns all friendship facts.
func (s *Store) ListFriendships() []Friendship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListFriendships()
}

// ListGroupMemberships returns all membership facts.
func (s *Store) ListGroupMemberships() []GroupMembership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListGroupMemberships()
}
