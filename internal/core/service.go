// Package core wires the record store, the formula graph and the derived-field
// engine into a single service. Store commits are turned into cache
// invalidations before any later read is answered.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"brewcore/internal/engine"
	"brewcore/internal/formula"
	"brewcore/internal/infra/persistence/memory"
	"brewcore/pkg/domain"
)

// Service exposes transactional CRUD over brewing records and lazily computed
// derived fields. Store mutations, invalidation sweeps and reads are
// serialized through one mutex.
type Service struct {
	mu     sync.Mutex
	store  PersistentStore
	engine *engine.Engine
	log    logr.Logger
	now    func() time.Time

	// Commits land here from the store subscription and are applied to the
	// engine under mu before the next read.
	pendingMu   sync.Mutex
	pending     []Change
	unsubscribe func()
}

type serviceOptions struct {
	log      logr.Logger
	recorder engine.Recorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithLogger sets the service logger. The engine logs under the "engine" name.
func WithLogger(log logr.Logger) Option {
	return func(o *serviceOptions) { o.log = log }
}

// WithRecorder attaches an engine cache activity recorder.
func WithRecorder(r engine.Recorder) Option {
	return func(o *serviceOptions) { o.recorder = r }
}

// WithClock overrides the clock used to stamp recipe sheets.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// NewService compiles the formula graph and subscribes to store commits.
func NewService(store PersistentStore, opts ...Option) (*Service, error) {
	o := serviceOptions{
		log: logr.Discard(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	graph, err := formula.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile formulas: %w", err)
	}
	engineOpts := []engine.Option{engine.WithLogger(o.log.WithName("engine"))}
	if o.recorder != nil {
		engineOpts = append(engineOpts, engine.WithRecorder(o.recorder))
	}
	s := &Service{
		store:  store,
		engine: engine.New(graph, engineOpts...),
		log:    o.log,
		now:    o.now,
	}
	s.unsubscribe = store.Subscribe(s.enqueue)
	return s, nil
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(rules *RulesEngine, opts ...Option) (*Service, error) {
	return NewService(memory.NewStore(rules), opts...)
}

// Store returns the underlying store. Reads pass straight through;
// RunInTransaction goes through the service so a commit and the invalidations
// it causes are one step for concurrent readers.
func (s *Service) Store() PersistentStore {
	return guardedStore{PersistentStore: s.store, svc: s}
}

type guardedStore struct {
	PersistentStore
	svc *Service
}

func (g guardedStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	return g.svc.RunInTransaction(ctx, fn)
}

// Graph returns the compiled field graph.
func (s *Service) Graph() *engine.Graph {
	return s.engine.Graph()
}

// Stats returns the engine's cache activity totals.
func (s *Service) Stats() engine.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

// Close stops listening to store commits. It does not close the store.
func (s *Service) Close() {
	s.unsubscribe()
}

// RunInTransaction executes fn atomically against the store. Cached values
// made stale by the commit are dropped before RunInTransaction returns.
func (s *Service) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.drainLocked()
	s.logViolations(res)
	return res, err
}

// Get returns field on the identified record. field may be a derived field or
// a raw attribute.
func (s *Service) Get(ctx context.Context, entity EntityType, id, field string) (engine.Value, error) {
	if err := ctx.Err(); err != nil {
		return engine.Value{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked()
	ent, ok := lookup(s.store, entity, id)
	if !ok {
		return engine.Value{}, domain.ErrNotFound{Entity: entity, ID: id}
	}
	return s.engine.Get(ent, field)
}

// Cached reports whether field on the identified record holds a valid cached
// value.
func (s *Service) Cached(entity EntityType, id, field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked()
	return s.engine.Cached(refOf(entity, id), field)
}

// ResetCache drops every cached value. Needed after state is replaced behind
// the store's back, e.g. ImportState.
func (s *Service) ResetCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
	s.engine.Reset()
}

func (s *Service) enqueue(changes []Change) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, changes...)
	s.pendingMu.Unlock()
}

func (s *Service) drainLocked() {
	s.pendingMu.Lock()
	changes := s.pending
	s.pending = nil
	s.pendingMu.Unlock()
	for _, c := range changes {
		s.apply(c)
	}
}

// apply invalidates everything a committed change can have made stale.
func (s *Service) apply(c Change) {
	before, _ := c.Before.(domain.Record)
	after, _ := c.After.(domain.Record)
	rec := after
	if rec == nil {
		rec = before
	}
	if rec == nil {
		return
	}
	ref := refOf(c.Entity, rec.RecordID())
	if c.Action == ActionDelete {
		s.engine.Forget(ref)
	} else {
		for _, name := range domain.ChangedFields(before, after) {
			s.engine.Invalidate(ref, name)
		}
	}
	s.invalidateMembership(c.Entity, before, after)
}

// invalidateMembership reports collection changes to the parent recipe(s) of
// an entry: creation, deletion, a move to another recipe, or a new position.
func (s *Service) invalidateMembership(entity EntityType, before, after domain.Record) {
	var collection string
	switch entity {
	case EntityMashEntry:
		collection = collectionMash
	case EntityBoilEntry:
		collection = collectionBoil
	default:
		return
	}
	oldRecipe, oldPos, hadBefore := membership(before)
	newRecipe, newPos, hasAfter := membership(after)
	if hadBefore && hasAfter && oldRecipe == newRecipe && oldPos == newPos {
		return
	}
	if hadBefore {
		s.engine.Invalidate(refOf(EntityRecipe, oldRecipe), collection)
	}
	if hasAfter && (!hadBefore || newRecipe != oldRecipe) {
		s.engine.Invalidate(refOf(EntityRecipe, newRecipe), collection)
	}
}

func membership(rec domain.Record) (recipeID string, position int, ok bool) {
	switch e := rec.(type) {
	case MashEntry:
		return e.RecipeID, e.Position, true
	case BoilEntry:
		return e.RecipeID, e.Position, true
	}
	return "", 0, false
}

func (s *Service) logViolations(res Result) {
	for _, v := range res.Violations {
		log := s.log
		if v.Severity == SeverityLog {
			log = log.V(1)
		}
		log.Info("rule violation", "rule", v.Rule, "severity", string(v.Severity),
			"entity", string(v.Entity), "id", v.EntityID, "message", v.Message)
	}
}
