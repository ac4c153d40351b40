// Package dag implements the directed acyclic graph used to validate and order
// derived field registrations.
package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Vertex is a node of the graph. Order records insertion order and is used to
// break ties when sorting.
type Vertex[T comparable] struct {
	ID        T
	Order     int
	DependsOn map[T]struct{}
}

// DirectedAcyclicGraph keeps its vertices acyclic at all times: edges that
// would close a cycle are rejected when they are added.
type DirectedAcyclicGraph[T comparable] struct {
	Vertices map[T]*Vertex[T]
}

// NewDirectedAcyclicGraph returns an empty graph.
func NewDirectedAcyclicGraph[T comparable]() *DirectedAcyclicGraph[T] {
	return &DirectedAcyclicGraph[T]{Vertices: make(map[T]*Vertex[T])}
}

// CycleError reports the vertices forming a cycle, starting and ending with
// the same vertex.
type CycleError[T comparable] struct {
	Cycle []T
}

func (e *CycleError[T]) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, v := range e.Cycle {
		parts[i] = fmt.Sprint(v)
	}
	return "graph contains a cycle: " + strings.Join(parts, " -> ")
}

// AsCycleError returns the CycleError in err's chain, or nil.
func AsCycleError[T comparable](err error) *CycleError[T] {
	var ce *CycleError[T]
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// AddVertex adds a vertex; adding an existing id is an error.
func (d *DirectedAcyclicGraph[T]) AddVertex(id T, order int) error {
	if _, exists := d.Vertices[id]; exists {
		return fmt.Errorf("node %v already exists", id)
	}
	d.Vertices[id] = &Vertex[T]{ID: id, Order: order, DependsOn: make(map[T]struct{})}
	return nil
}

// HasVertex reports whether id is part of the graph.
func (d *DirectedAcyclicGraph[T]) HasVertex(id T) bool {
	_, ok := d.Vertices[id]
	return ok
}

// RemoveVertex deletes a vertex nothing depends on.
func (d *DirectedAcyclicGraph[T]) RemoveVertex(id T) error {
	if _, ok := d.Vertices[id]; !ok {
		return fmt.Errorf("node %v does not exist", id)
	}
	for _, v := range d.Vertices {
		if _, found := v.DependsOn[id]; found {
			return fmt.Errorf("node %v is still a dependency of %v", id, v.ID)
		}
	}
	delete(d.Vertices, id)
	return nil
}

// AddDependencies records that from depends on every vertex in dependencies.
// Unknown vertices, self references and edges closing a cycle are rejected and
// leave the graph unchanged.
func (d *DirectedAcyclicGraph[T]) AddDependencies(from T, dependencies []T) error {
	v, ok := d.Vertices[from]
	if !ok {
		return fmt.Errorf("node %v does not exist", from)
	}
	var added []T
	rollback := func() {
		for _, dep := range added {
			delete(v.DependsOn, dep)
		}
	}
	for _, dep := range dependencies {
		if dep == from {
			rollback()
			return fmt.Errorf("node %v cannot depend on itself", from)
		}
		if _, ok := d.Vertices[dep]; !ok {
			rollback()
			return fmt.Errorf("dependency %v of node %v does not exist", dep, from)
		}
		if _, exists := v.DependsOn[dep]; exists {
			continue
		}
		v.DependsOn[dep] = struct{}{}
		added = append(added, dep)
		if path := d.pathTo(dep, from); path != nil {
			rollback()
			return &CycleError[T]{Cycle: append([]T{from}, path...)}
		}
	}
	return nil
}

// pathTo returns a dependency path from start to target (both inclusive), or
// nil when target is unreachable.
func (d *DirectedAcyclicGraph[T]) pathTo(start, target T) []T {
	visited := make(map[T]bool)
	var walk func(cur T) []T
	walk = func(cur T) []T {
		if cur == target {
			return []T{cur}
		}
		if visited[cur] {
			return nil
		}
		visited[cur] = true
		for _, next := range d.sortedDeps(cur) {
			if rest := walk(next); rest != nil {
				return append([]T{cur}, rest...)
			}
		}
		return nil
	}
	return walk(start)
}

func (d *DirectedAcyclicGraph[T]) sortedDeps(id T) []T {
	v := d.Vertices[id]
	out := make([]T, 0, len(v.DependsOn))
	for dep := range v.DependsOn {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return d.Vertices[out[i]].Order < d.Vertices[out[j]].Order })
	return out
}

func (d *DirectedAcyclicGraph[T]) hasCycle() (bool, []T) {
	for _, id := range d.ordered() {
		for dep := range d.Vertices[id].DependsOn {
			if path := d.pathTo(dep, id); path != nil {
				return true, append([]T{id}, path...)
			}
		}
	}
	return false, nil
}

func (d *DirectedAcyclicGraph[T]) ordered() []T {
	ids := make([]T, 0, len(d.Vertices))
	for id := range d.Vertices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return d.Vertices[ids[i]].Order < d.Vertices[ids[j]].Order })
	return ids
}

// TopologicalSortLevels groups vertices into levels: every vertex of level n
// depends only on vertices of levels < n. Within a level vertices keep their
// insertion order.
func (d *DirectedAcyclicGraph[T]) TopologicalSortLevels() ([][]T, error) {
	if cyclic, cycle := d.hasCycle(); cyclic {
		return nil, &CycleError[T]{Cycle: cycle}
	}
	remaining := d.ordered()
	done := make(map[T]bool, len(remaining))
	var levels [][]T
	for len(remaining) > 0 {
		var level, blocked []T
		for _, id := range remaining {
			ready := true
			for dep := range d.Vertices[id].DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			} else {
				blocked = append(blocked, id)
			}
		}
		for _, id := range level {
			done[id] = true
		}
		levels = append(levels, level)
		remaining = blocked
	}
	return levels, nil
}

// TopologicalSort returns every vertex after all of its dependencies.
func (d *DirectedAcyclicGraph[T]) TopologicalSort() ([]T, error) {
	levels, err := d.TopologicalSortLevels()
	if err != nil {
		return nil, err
	}
	var order []T
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}
