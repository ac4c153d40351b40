package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-logr/logr"
)

// Recorder observes cache activity.
type Recorder interface {
	Recomputed(entityType, field string)
	Invalidated(entityType, field string)
}

// Stats are running totals of cache activity.
type Stats struct {
	Recomputations uint64
	Invalidations  uint64
	Cached         int
}

type cacheKey struct {
	ref  Ref
	node int
}

// entry is the cache slot of a field, or the dependents list of a source
// (attribute, relation slot, collection membership) when valid is false.
// sources mirrors dependents so a dropped value unhooks itself from
// everything it read.
type entry struct {
	valid      bool
	value      Value
	err        error
	dependents map[cacheKey]struct{}
	sources    map[cacheKey]struct{}
}

// Engine memoizes derived fields per entity instance and invalidates them
// when their sources change. It is not safe for concurrent use; callers
// serialize mutations, invalidation and reads.
type Engine struct {
	graph    *Graph
	entries  map[cacheKey]*entry
	byRef    map[Ref]map[int]struct{}
	recorder Recorder
	log      logr.Logger
	stats    Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRecorder attaches a cache activity recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New returns an engine evaluating g.
func New(g *Graph, opts ...Option) *Engine {
	e := &Engine{
		graph:   g,
		entries: make(map[cacheKey]*entry),
		byRef:   make(map[Ref]map[int]struct{}),
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the compiled graph.
func (e *Engine) Graph() *Graph { return e.graph }

// Stats returns cache activity totals.
func (e *Engine) Stats() Stats {
	s := e.stats
	for _, en := range e.entries {
		if en.valid {
			s.Cached++
		}
	}
	return s
}

// Get returns the value of field on ent, computing it and any stale
// dependency first. Undefined inputs yield an undefined Value with a nil
// error; mathematically undefined results yield *UndefinedResultError.
// Raw attributes can be read through Get as well; they are never cached.
func (e *Engine) Get(ent Entity, field string) (Value, error) {
	ref := ent.Ref()
	n, ok := e.graph.lookup(ref.Type, field)
	if !ok {
		return Value{}, &UnknownFieldError{Type: ref.Type, Field: field}
	}
	switch n.kind {
	case nodeField:
		return e.get(ent, n)
	case nodeAttribute:
		if v, ok := ent.Attribute(field); ok {
			return Number(v), nil
		}
		return Undefined(&UndefinedPathError{Ref: ref, Path: field, Segment: field}), nil
	default:
		return Value{}, &UnknownFieldError{Type: ref.Type, Field: field}
	}
}

// Cached reports whether field on ref currently holds a valid cache entry.
func (e *Engine) Cached(ref Ref, field string) bool {
	n, ok := e.graph.lookup(ref.Type, field)
	if !ok {
		return false
	}
	en, ok := e.entries[cacheKey{ref, n.id}]
	return ok && en.valid
}

func (e *Engine) get(ent Entity, n *node) (Value, error) {
	key := cacheKey{ent.Ref(), n.id}
	if en, ok := e.entries[key]; ok && en.valid {
		return en.value, en.err
	}
	var (
		v   Value
		err error
	)
	if n.agg != nil {
		v, err = e.aggregate(ent, key, n)
	} else {
		v, err = e.compute(ent, key, n)
	}
	en := e.entry(key)
	en.valid = true
	en.value = v
	en.err = err
	e.stats.Recomputations++
	if e.recorder != nil {
		e.recorder.Recomputed(n.key.Type, n.key.Name)
	}
	if e.log.V(1).Enabled() {
		e.log.V(1).Info("recomputed field", "entity", key.ref.String(), "field", n.key.Name, "value", v.String(), "error", err)
	}
	return v, err
}

func (e *Engine) compute(ent Entity, key cacheKey, n *node) (Value, error) {
	in := Inputs{field: n.key.String(), values: make(map[string]float64, len(n.deps)), read: new(string)}
	for _, dep := range n.deps {
		v, err := e.resolve(ent, key, dep)
		if err != nil {
			return Value{}, &UndefinedResultError{Ref: key.ref, Field: n.key.Name, Err: err}
		}
		f, ok := v.Float()
		if !ok {
			if def, hasDefault := n.defaults[dep.path]; hasDefault {
				f = def
			} else if n.optional[dep.path] {
				if in.missing == nil {
					in.missing = make(map[string]Value)
				}
				in.missing[dep.path] = undefinedFrom(v, key.ref, dep.path)
				continue
			} else {
				return undefinedFrom(v, key.ref, dep.path), nil
			}
		}
		in.values[dep.path] = f
	}
	out, err := n.formula(in)
	if *in.read != "" {
		return in.missing[*in.read], nil
	}
	if err != nil {
		return Value{}, &UndefinedResultError{Ref: key.ref, Field: n.key.Name, Err: err}
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return Value{}, &UndefinedResultError{Ref: key.ref, Field: n.key.Name, Err: ErrNonFinite}
	}
	return Number(out), nil
}

func undefinedFrom(v Value, ref Ref, path string) Value {
	if v.Reason() != nil {
		return v
	}
	return Undefined(&UndefinedPathError{Ref: ref, Path: path, Segment: path})
}

// resolve walks a dependency path from ent, recording every source it reads
// as a dependency of the evaluating field.
func (e *Engine) resolve(ent Entity, dependent cacheKey, dep dependency) (Value, error) {
	cur := ent
	for _, h := range dep.hops {
		e.depend(cacheKey{cur.Ref(), h.id}, dependent)
		next, ok := cur.Related(h.name)
		if !ok || next == nil {
			return Undefined(&UndefinedPathError{Ref: dependent.ref, Path: dep.path, Segment: h.name}), nil
		}
		cur = next
	}
	return e.read(cur, dependent, dep.leaf, dep.path)
}

func (e *Engine) read(ent Entity, dependent cacheKey, t target, path string) (Value, error) {
	source := cacheKey{ent.Ref(), t.id}
	if t.attribute {
		e.depend(source, dependent)
		v, ok := ent.Attribute(t.name)
		if !ok {
			return Undefined(&UndefinedPathError{Ref: dependent.ref, Path: path, Segment: t.name}), nil
		}
		return Number(v), nil
	}
	v, err := e.get(ent, e.graph.nodes[t.id])
	e.depend(source, dependent)
	return v, err
}

func (e *Engine) aggregate(ent Entity, key cacheKey, n *node) (Value, error) {
	agg := n.agg
	e.depend(cacheKey{key.ref, agg.collection.id}, key)
	members := ent.Members(agg.collection.name)
	path := agg.collection.name + "." + agg.member.name
	switch agg.kind {
	case aggregateSum:
		total := 0.0
		for _, m := range members {
			v, err := e.read(m, key, agg.member, path)
			if err != nil {
				return Value{}, &UndefinedResultError{Ref: key.ref, Field: n.key.Name, Err: err}
			}
			f, ok := v.Float()
			if !ok {
				return undefinedFrom(v, key.ref, path), nil
			}
			total += f
		}
		return Number(total), nil
	case aggregateSort:
		type keyed struct {
			ent     Entity
			key     float64
			defined bool
		}
		items := make([]keyed, 0, len(members))
		for _, m := range members {
			v, err := e.read(m, key, agg.member, path)
			if err != nil {
				return Value{}, &UndefinedResultError{Ref: key.ref, Field: n.key.Name, Err: err}
			}
			f, ok := v.Float()
			items = append(items, keyed{ent: m, key: f, defined: ok})
		}
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].defined != items[j].defined {
				return items[i].defined
			}
			return items[i].key < items[j].key
		})
		out := make([]Entity, len(items))
		for i, it := range items {
			out[i] = it.ent
		}
		return EntityList(out), nil
	default:
		return Value{}, fmt.Errorf("field %s: unknown aggregate kind %d", n.key, agg.kind)
	}
}

func (e *Engine) entry(key cacheKey) *entry {
	en, ok := e.entries[key]
	if !ok {
		en = &entry{dependents: make(map[cacheKey]struct{}), sources: make(map[cacheKey]struct{})}
		e.entries[key] = en
		ids, ok := e.byRef[key.ref]
		if !ok {
			ids = make(map[int]struct{})
			e.byRef[key.ref] = ids
		}
		ids[key.node] = struct{}{}
	}
	return en
}

func (e *Engine) depend(source, dependent cacheKey) {
	e.entry(source).dependents[dependent] = struct{}{}
	e.entry(dependent).sources[source] = struct{}{}
}

func (e *Engine) drop(key cacheKey) {
	delete(e.entries, key)
	if ids := e.byRef[key.ref]; ids != nil {
		delete(ids, key.node)
		if len(ids) == 0 {
			delete(e.byRef, key.ref)
		}
	}
}

// Invalidate marks name on ref as changed. name may be a raw attribute, a
// relation, a collection (membership change) or a derived field. Every cached
// value that read it, directly or transitively and on any entity, is dropped
// before Invalidate returns.
func (e *Engine) Invalidate(ref Ref, name string) {
	n, ok := e.graph.lookup(ref.Type, name)
	if !ok {
		e.log.V(2).Info("ignoring change to untracked name", "entity", ref.String(), "name", name)
		return
	}
	e.invalidate(cacheKey{ref, n.id})
}

// Forget drops every cache entry keyed by ref, propagating to dependents.
// Used when an entity is removed from the store.
func (e *Engine) Forget(ref Ref) {
	ids := e.byRef[ref]
	keys := make([]int, 0, len(ids))
	for id := range ids {
		keys = append(keys, id)
	}
	sort.Ints(keys)
	for _, id := range keys {
		e.invalidate(cacheKey{ref, id})
	}
}

// Reset empties the cache.
func (e *Engine) Reset() {
	e.entries = make(map[cacheKey]*entry)
	e.byRef = make(map[Ref]map[int]struct{})
}

func (e *Engine) invalidate(key cacheKey) {
	en, ok := e.entries[key]
	if !ok {
		return
	}
	e.drop(key)
	for src := range en.sources {
		s, ok := e.entries[src]
		if !ok {
			continue
		}
		delete(s.dependents, key)
		if !s.valid && len(s.dependents) == 0 {
			e.drop(src)
		}
	}
	if en.valid {
		n := e.graph.nodes[key.node]
		e.stats.Invalidations++
		if e.recorder != nil {
			e.recorder.Invalidated(n.key.Type, n.key.Name)
		}
		e.log.V(1).Info("invalidated field", "entity", key.ref.String(), "field", n.key.Name)
	}
	for dep := range en.dependents {
		e.invalidate(dep)
	}
}

// Inputs carries the resolved dependency values handed to a Formula.
type Inputs struct {
	field   string
	values  map[string]float64
	missing map[string]Value
	// read is the first undefined optional path the formula read.
	read *string
}

// Has reports whether path resolved to a number. Only optional dependencies
// can be absent.
func (in Inputs) Has(path string) bool {
	_, ok := in.values[path]
	return ok
}

// Num returns the value of a declared dependency path. Reading an undefined
// optional path makes the field undefined whatever the formula returns.
// Reading an undeclared path is a programming error and panics.
func (in Inputs) Num(path string) float64 {
	if v, ok := in.values[path]; ok {
		return v
	}
	if _, ok := in.missing[path]; ok {
		if in.read != nil && *in.read == "" {
			*in.read = path
		}
		return math.NaN()
	}
	panic(fmt.Sprintf("field %s reads undeclared dependency %q", in.field, path))
}
