package core

import (
	"context"
	"errors"
	"time"

	"fridgeshare/internal/blob"
	"fridgeshare/pkg/domain"
)

// Service exposes the transactional fridge-sharing operations. Every mutating
// call names the acting user explicitly; there is no ambient identity.
type Service struct {
	store      PersistentStore
	directory  RelationshipDirectory
	visibility *VisibilityEngine
	blobs      blob.Store
	logger     Logger
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	clock      Clock
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	clock     Clock
	directory RelationshipDirectory
	blobs     blob.Store
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock overrides the time source. Stores that accept a time source are
// switched to it as well so record timestamps agree with the service.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRelationshipDirectory replaces the store-backed relationship lookups,
// typically with a caching directory wrapping NewStoreDirectory.
func WithRelationshipDirectory(dir RelationshipDirectory) Option {
	return func(o *serviceOptions) {
		if dir != nil {
			o.directory = dir
		}
	}
}

// WithBlobStore sets the product photo store. Defaults to an in-memory store.
func WithBlobStore(store blob.Store) Option {
	return func(o *serviceOptions) {
		if store != nil {
			o.blobs = store
		}
	}
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

type nowFuncSetter interface {
	SetNowFunc(func() time.Time)
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	options := serviceOptions{
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.clock != nil {
		if setter, ok := store.(nowFuncSetter); ok {
			setter.SetNowFunc(options.clock.Now)
		}
	} else {
		options.clock = ClockFunc(selectNowFunc(store))
	}
	if options.directory == nil {
		options.directory = NewStoreDirectory(store)
	}
	if options.blobs == nil {
		options.blobs = blob.NewMemory()
	}
	return &Service{
		store:      store,
		directory:  options.directory,
		visibility: NewVisibilityEngine(options.directory),
		blobs:      options.blobs,
		logger:     options.logger,
		audit:      options.audit,
		metrics:    options.metrics,
		tracer:     options.tracer,
		clock:      options.clock,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(NewMemoryStore(engine), opts...)
}

func selectNowFunc(store PersistentStore) func() time.Time {
	if provider, ok := store.(nowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	return func() time.Time { return time.Now().UTC() }
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Directory returns the relationship directory used for visibility.
func (s *Service) Directory() RelationshipDirectory { return s.directory }

// Visibility returns the visibility engine bound to the service's directory.
func (s *Service) Visibility() *VisibilityEngine { return s.visibility }

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

// Only mutating operations are audited; reads are traced and measured.
var operationMetadata = map[string]operationMeta{
	"create_product":          {domain.EntityProduct, domain.ActionCreate},
	"update_product":          {domain.EntityProduct, domain.ActionUpdate},
	"delete_product":          {domain.EntityProduct, domain.ActionDelete},
	"attach_photo":            {domain.EntityProduct, domain.ActionUpdate},
	"submit_claim":            {domain.EntityClaim, domain.ActionCreate},
	"decide_claim":            {domain.EntityClaim, domain.ActionUpdate},
	"complete_claim":          {domain.EntityClaim, domain.ActionUpdate},
	"record_friendship":       {domain.EntityFriendship, domain.ActionCreate},
	"record_group_membership": {domain.EntityGroupMembership, domain.ActionCreate},
}

// run wraps an operation with tracing, metrics, audit and logging. fn returns
// the id of the affected entity, when known, for the audit trail.
func (s *Service) run(ctx context.Context, operation, actor string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.recordAudit(ctx, operation, actor, entityID, duration, err)
		if isClientError(err) {
			s.logger.Warn("operation rejected", "operation", operation, "actor", actor, "entity_id", entityID, "error", err)
		} else {
			s.logger.Error("operation failed", "operation", operation, "actor", actor, "entity_id", entityID, "error", err)
		}
		return err
	}
	s.recordAudit(ctx, operation, actor, entityID, duration, nil)
	s.logger.Debug("operation completed", "operation", operation, "actor", actor, "entity_id", entityID, "duration", duration)
	return nil
}

// transact runs fn in a store transaction and logs the non-blocking rule
// violations of a committed result.
func (s *Service) transact(ctx context.Context, operation string, fn func(Transaction) error) error {
	res, err := s.store.RunInTransaction(ctx, fn)
	if err != nil {
		return err
	}
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityWarn:
			s.logger.Warn("rule warning", "operation", operation, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		case domain.SeverityLog:
			s.logger.Info("rule notice", "operation", operation, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, operation, actor, entityID string, duration time.Duration, err error) {
	meta, ok := operationMetadata[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// isClientError reports failures caused by the request rather than the system.
func isClientError(err error) bool {
	var violation domain.RuleViolationError
	switch {
	case errors.As(err, &violation),
		errors.Is(err, domain.ErrNotFoundKind),
		errors.Is(err, domain.ErrNotAvailableKind),
		errors.Is(err, domain.ErrDuplicateClaimKind),
		errors.Is(err, domain.ErrInvalidTransitionKind),
		errors.Is(err, domain.ErrForbiddenKind),
		errors.Is(err, domain.ErrInvalidInputKind):
		return true
	}
	return false
}

func requireActor(actor, action string) error {
	if actor == "" {
		return domain.ErrForbidden{Action: action}
	}
	return nil
}
