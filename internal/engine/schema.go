package engine

import (
	"fmt"
	"sort"
	"strings"

	"brewcore/internal/engine/dag"
)

// RelationSpec declares a relation of an entity type.
type RelationSpec struct {
	Name   string
	Target string
	Many   bool
}

// One declares a single-valued relation.
func One(name, target string) RelationSpec { return RelationSpec{Name: name, Target: target} }

// Many declares a one-to-many collection.
func Many(name, member string) RelationSpec { return RelationSpec{Name: name, Target: member, Many: true} }

// TypeSpec declares the raw attributes and relations of an entity type.
type TypeSpec struct {
	Name       string
	Attributes []string
	Relations  []RelationSpec
}

// Formula computes a derived field from its resolved inputs.
type Formula func(in Inputs) (float64, error)

// Dependencies is the ordered set of paths a formula reads.
type Dependencies struct {
	paths    []string
	defaults map[string]float64
	optional map[string]bool
}

// Deps declares dependency paths: "attr", "relation.attr" or
// "relation.relation.field".
func Deps(paths ...string) Dependencies {
	return Dependencies{paths: append([]string(nil), paths...)}
}

// Default substitutes value when path resolves to undefined instead of making
// the field undefined.
func (d Dependencies) Default(path string, value float64) Dependencies {
	defaults := make(map[string]float64, len(d.defaults)+1)
	for k, v := range d.defaults {
		defaults[k] = v
	}
	defaults[path] = value
	d.defaults = defaults
	return d
}

// Optional lets the formula run when path is undefined. The formula may test
// it with Inputs.Has; reading it with Inputs.Num makes the field undefined.
func (d Dependencies) Optional(paths ...string) Dependencies {
	optional := make(map[string]bool, len(d.optional)+len(paths))
	for k := range d.optional {
		optional[k] = true
	}
	for _, p := range paths {
		optional[p] = true
	}
	d.optional = optional
	return d
}

type aggregateKind uint8

const (
	aggregateSum aggregateKind = iota + 1
	aggregateSort
)

// Aggregate describes a field computed over a collection.
type Aggregate struct {
	kind       aggregateKind
	collection string
	field      string
}

// Sum totals field over the current members of collection. An empty
// collection sums to 0.
func Sum(collection, field string) Aggregate {
	return Aggregate{kind: aggregateSum, collection: collection, field: field}
}

// SortBy orders the members of collection ascending by key. The sort is
// stable; members with an undefined key come last.
func SortBy(collection, key string) Aggregate {
	return Aggregate{kind: aggregateSort, collection: collection, field: key}
}

func (a Aggregate) String() string {
	op := "sum"
	if a.kind == aggregateSort {
		op = "sort"
	}
	return fmt.Sprintf("%s(%s.%s)", op, a.collection, a.field)
}

type nodeKind uint8

const (
	nodeAttribute nodeKind = iota
	nodeRelation
	nodeCollection
	nodeField
)

type nodeKey struct {
	Type string
	Name string
}

func (k nodeKey) String() string { return k.Type + "." + k.Name }

type hop struct {
	name string
	key  nodeKey
	id   int
}

type target struct {
	name      string
	key       nodeKey
	id        int
	attribute bool
}

type dependency struct {
	path string
	hops []hop
	leaf target
}

type aggregateDef struct {
	kind       aggregateKind
	label      string
	collection hop
	member     target
}

type fieldDef struct {
	key      nodeKey
	deps     []dependency
	defaults map[string]float64
	optional map[string]bool
	formula  Formula
	agg      *aggregateDef
}

type typeDecl struct {
	attributes map[string]bool
	relations  map[string]RelationSpec
}

// Schema collects type declarations and field registrations. Registration
// validates the dependency graph incrementally; Compile freezes it.
type Schema struct {
	types      map[string]*typeDecl
	fields     map[nodeKey]*fieldDef
	fieldOrder []nodeKey
	referenced map[nodeKey]nodeKey
	graph      *dag.DirectedAcyclicGraph[nodeKey]
	seq        int
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{
		types:      make(map[string]*typeDecl),
		fields:     make(map[nodeKey]*fieldDef),
		referenced: make(map[nodeKey]nodeKey),
		graph:      dag.NewDirectedAcyclicGraph[nodeKey](),
	}
}

func (s *Schema) addVertex(key nodeKey) error {
	s.seq++
	return s.graph.AddVertex(key, s.seq)
}

// DeclareType registers an entity type with its attributes and relations.
func (s *Schema) DeclareType(spec TypeSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("entity type name required")
	}
	if _, exists := s.types[spec.Name]; exists {
		return fmt.Errorf("entity type %q already declared", spec.Name)
	}
	decl := &typeDecl{attributes: make(map[string]bool), relations: make(map[string]RelationSpec)}
	for _, attr := range spec.Attributes {
		if decl.attributes[attr] {
			return fmt.Errorf("entity type %q: attribute %q declared twice", spec.Name, attr)
		}
		decl.attributes[attr] = true
	}
	for _, rel := range spec.Relations {
		if _, dup := decl.relations[rel.Name]; dup || decl.attributes[rel.Name] {
			return fmt.Errorf("entity type %q: relation %q clashes with another declaration", spec.Name, rel.Name)
		}
		decl.relations[rel.Name] = rel
	}
	for _, attr := range spec.Attributes {
		if err := s.addVertex(nodeKey{spec.Name, attr}); err != nil {
			return err
		}
	}
	for _, rel := range spec.Relations {
		if err := s.addVertex(nodeKey{spec.Name, rel.Name}); err != nil {
			return err
		}
	}
	s.types[spec.Name] = decl
	return nil
}

// Register adds a derived field computed by formula from deps.
func (s *Schema) Register(typ, name string, deps Dependencies, formula Formula) error {
	key, err := s.checkNew(typ, name)
	if err != nil {
		return err
	}
	if formula == nil {
		return fmt.Errorf("field %s: formula required", key)
	}
	def := &fieldDef{key: key, defaults: deps.defaults, optional: deps.optional, formula: formula}
	var placeholders []nodeKey
	declared := make(map[string]bool, len(deps.paths))
	for _, raw := range deps.paths {
		dep, created, err := s.resolvePath(key, raw)
		placeholders = append(placeholders, created...)
		if err != nil {
			s.dropPlaceholders(placeholders)
			return err
		}
		declared[raw] = true
		def.deps = append(def.deps, dep)
	}
	for path := range deps.defaults {
		if !declared[path] {
			s.dropPlaceholders(placeholders)
			return &UnknownPathError{Type: typ, Field: name, Path: path, Reason: "default for an undeclared dependency"}
		}
	}
	for path := range deps.optional {
		if !declared[path] {
			s.dropPlaceholders(placeholders)
			return &UnknownPathError{Type: typ, Field: name, Path: path, Reason: "optional flag on an undeclared dependency"}
		}
	}
	return s.add(def, placeholders)
}

// RegisterAggregate adds a field computed over a collection relation.
func (s *Schema) RegisterAggregate(typ, name string, agg Aggregate) error {
	key, err := s.checkNew(typ, name)
	if err != nil {
		return err
	}
	decl := s.types[typ]
	rel, ok := decl.relations[agg.collection]
	if !ok || !rel.Many {
		return &UnknownPathError{Type: typ, Field: name, Path: agg.collection, Reason: "not a collection relation"}
	}
	member, created, err := s.resolveLeaf(key, rel.Target, agg.field, agg.String())
	if err != nil {
		return err
	}
	def := &fieldDef{
		key: key,
		agg: &aggregateDef{
			kind:       agg.kind,
			label:      agg.String(),
			collection: hop{name: rel.Name, key: nodeKey{typ, rel.Name}},
			member:     member,
		},
	}
	return s.add(def, created)
}

func (s *Schema) checkNew(typ, name string) (nodeKey, error) {
	decl, ok := s.types[typ]
	if !ok {
		return nodeKey{}, &UnknownTypeError{Type: typ}
	}
	key := nodeKey{typ, name}
	if name == "" || strings.Contains(name, ".") {
		return nodeKey{}, fmt.Errorf("invalid field name %q", name)
	}
	if _, exists := s.fields[key]; exists || decl.attributes[name] {
		return nodeKey{}, &DuplicateFieldError{Type: typ, Field: name}
	}
	if _, exists := decl.relations[name]; exists {
		return nodeKey{}, &DuplicateFieldError{Type: typ, Field: name}
	}
	return key, nil
}

func (s *Schema) add(def *fieldDef, placeholders []nodeKey) error {
	fresh := !s.graph.HasVertex(def.key)
	if fresh {
		if err := s.addVertex(def.key); err != nil {
			s.dropPlaceholders(placeholders)
			return err
		}
	}
	depKeys := def.dependencyKeys()
	for _, k := range depKeys {
		if k == def.key {
			if fresh {
				_ = s.graph.RemoveVertex(def.key)
			}
			s.dropPlaceholders(placeholders)
			return &CycleError{Field: def.key.String(), Cycle: []string{def.key.String(), def.key.String()}}
		}
	}
	if err := s.graph.AddDependencies(def.key, depKeys); err != nil {
		if fresh {
			_ = s.graph.RemoveVertex(def.key)
		}
		s.dropPlaceholders(placeholders)
		if ce := dag.AsCycleError[nodeKey](err); ce != nil {
			cycle := make([]string, len(ce.Cycle))
			for i, k := range ce.Cycle {
				cycle[i] = k.String()
			}
			return &CycleError{Field: def.key.String(), Cycle: cycle}
		}
		return err
	}
	delete(s.referenced, def.key)
	s.fields[def.key] = def
	s.fieldOrder = append(s.fieldOrder, def.key)
	return nil
}

func (s *Schema) dropPlaceholders(keys []nodeKey) {
	for i := len(keys) - 1; i >= 0; i-- {
		if err := s.graph.RemoveVertex(keys[i]); err == nil {
			delete(s.referenced, keys[i])
		}
	}
}

func (d *fieldDef) dependencyKeys() []nodeKey {
	var keys []nodeKey
	if d.agg != nil {
		return []nodeKey{d.agg.collection.key, d.agg.member.key}
	}
	for _, dep := range d.deps {
		for _, h := range dep.hops {
			keys = append(keys, h.key)
		}
		keys = append(keys, dep.leaf.key)
	}
	return keys
}

// resolvePath walks raw from the owner's type through single relations.
func (s *Schema) resolvePath(owner nodeKey, raw string) (dependency, []nodeKey, error) {
	segments := strings.Split(raw, ".")
	for _, seg := range segments {
		if seg == "" {
			return dependency{}, nil, &UnknownPathError{Type: owner.Type, Field: owner.Name, Path: raw, Reason: "empty path segment"}
		}
	}
	dep := dependency{path: raw}
	cur := owner.Type
	for _, seg := range segments[:len(segments)-1] {
		rel, ok := s.types[cur].relations[seg]
		if !ok {
			return dependency{}, nil, &UnknownPathError{Type: owner.Type, Field: owner.Name, Path: raw, Reason: fmt.Sprintf("%s has no relation %q", cur, seg)}
		}
		if rel.Many {
			return dependency{}, nil, &UnknownPathError{Type: owner.Type, Field: owner.Name, Path: raw, Reason: fmt.Sprintf("collection %q needs an aggregate", seg)}
		}
		if _, declared := s.types[rel.Target]; !declared {
			return dependency{}, nil, &UnknownTypeError{Type: rel.Target}
		}
		dep.hops = append(dep.hops, hop{name: seg, key: nodeKey{cur, seg}})
		cur = rel.Target
	}
	leaf, created, err := s.resolveLeaf(owner, cur, segments[len(segments)-1], raw)
	if err != nil {
		return dependency{}, nil, err
	}
	dep.leaf = leaf
	return dep, created, nil
}

// resolveLeaf binds the final segment of a path to an attribute or a field of
// typ. Unknown names become placeholders that must be registered before
// Compile.
func (s *Schema) resolveLeaf(owner nodeKey, typ, name, raw string) (target, []nodeKey, error) {
	decl, ok := s.types[typ]
	if !ok {
		return target{}, nil, &UnknownTypeError{Type: typ}
	}
	key := nodeKey{typ, name}
	if decl.attributes[name] {
		return target{name: name, key: key, attribute: true}, nil, nil
	}
	if _, isRel := decl.relations[name]; isRel {
		return target{}, nil, &UnknownPathError{Type: owner.Type, Field: owner.Name, Path: raw, Reason: fmt.Sprintf("relation %q is not a value", name)}
	}
	var created []nodeKey
	if !s.graph.HasVertex(key) {
		if err := s.addVertex(key); err != nil {
			return target{}, nil, err
		}
		s.referenced[key] = owner
		created = append(created, key)
	}
	return target{name: name, key: key}, created, nil
}

// Compile checks that every referenced field was registered and freezes the
// schema into an evaluation graph.
func (s *Schema) Compile() (*Graph, error) {
	pending := make([]nodeKey, 0, len(s.referenced))
	for k := range s.referenced {
		pending = append(pending, k)
	}
	sort.Slice(pending, func(i, j int) bool {
		return s.graph.Vertices[pending[i]].Order < s.graph.Vertices[pending[j]].Order
	})
	if len(pending) > 0 {
		k := pending[0]
		owner := s.referenced[k]
		return nil, &UnknownPathError{Type: owner.Type, Field: owner.Name, Path: k.String(), Reason: "no such attribute or field"}
	}
	levels, err := s.graph.TopologicalSortLevels()
	if err != nil {
		return nil, err
	}
	return newGraph(s, levels), nil
}
