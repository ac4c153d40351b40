package engine

// node is an arena slot for one (entity type, name) pair.
type node struct {
	id       int
	key      nodeKey
	kind     nodeKind
	level    int
	deps     []dependency
	defaults map[string]float64
	optional map[string]bool
	formula  Formula
	agg      *aggregateDef
}

// Graph is the compiled, immutable evaluation graph. Nodes are addressed by
// dense indices so cache entries never hold live references to definitions.
type Graph struct {
	nodes []*node
	index map[nodeKey]int
	order []int
}

func newGraph(s *Schema, levels [][]nodeKey) *Graph {
	g := &Graph{index: make(map[nodeKey]int)}
	for lvl, keys := range levels {
		for _, key := range keys {
			n := &node{id: len(g.nodes), key: key, level: lvl}
			decl := s.types[key.Type]
			switch {
			case decl.attributes[key.Name]:
				n.kind = nodeAttribute
			case decl.relations[key.Name].Name != "":
				n.kind = nodeRelation
				if decl.relations[key.Name].Many {
					n.kind = nodeCollection
				}
			default:
				n.kind = nodeField
			}
			g.nodes = append(g.nodes, n)
			g.index[key] = n.id
		}
	}
	for _, key := range s.fieldOrder {
		def := s.fields[key]
		n := g.nodes[g.index[key]]
		n.formula = def.formula
		n.defaults = def.defaults
		n.optional = def.optional
		for _, dep := range def.deps {
			bound := dependency{path: dep.path, leaf: g.bindTarget(dep.leaf)}
			for _, h := range dep.hops {
				bound.hops = append(bound.hops, g.bindHop(h))
			}
			n.deps = append(n.deps, bound)
		}
		if def.agg != nil {
			agg := *def.agg
			agg.collection = g.bindHop(agg.collection)
			agg.member = g.bindTarget(agg.member)
			n.agg = &agg
		}
	}
	for _, n := range g.nodes {
		if n.kind == nodeField {
			g.order = append(g.order, n.id)
		}
	}
	return g
}

func (g *Graph) bindHop(h hop) hop {
	h.id = g.index[h.key]
	return h
}

func (g *Graph) bindTarget(t target) target {
	t.id = g.index[t.key]
	return t
}

func (g *Graph) lookup(typ, name string) (*node, bool) {
	id, ok := g.index[nodeKey{typ, name}]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// Order lists every derived field as "type.name" in topological order.
func (g *Graph) Order() []string {
	out := make([]string, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].key.String())
	}
	return out
}

// Fields lists the derived fields of typ in topological order.
func (g *Graph) Fields(typ string) []string {
	var out []string
	for _, id := range g.order {
		if n := g.nodes[id]; n.key.Type == typ {
			out = append(out, n.key.Name)
		}
	}
	return out
}

// Level returns the topological level of a field or source; sources sit at
// level 0.
func (g *Graph) Level(typ, name string) (int, bool) {
	n, ok := g.lookup(typ, name)
	if !ok {
		return 0, false
	}
	return n.level, true
}

// Dependencies returns the declared dependency paths of a field.
func (g *Graph) Dependencies(typ, name string) []string {
	n, ok := g.lookup(typ, name)
	if !ok || n.kind != nodeField {
		return nil
	}
	if n.agg != nil {
		return []string{n.agg.label}
	}
	out := make([]string, len(n.deps))
	for i, d := range n.deps {
		out[i] = d.path
	}
	return out
}

// IsField reports whether name is a derived field of typ.
func (g *Graph) IsField(typ, name string) bool {
	n, ok := g.lookup(typ, name)
	return ok && n.kind == nodeField
}
