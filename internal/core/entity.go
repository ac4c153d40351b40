package core

import (
	"brewcore/internal/engine"
	"brewcore/pkg/domain"
)

// record is a stored record viewed through the engine's Entity interface. It
// holds only the record's identity: attributes, relations and collections are
// read from reader on every call, so an entity kept in a cached sort view
// never serves values older than the committed state.
type record struct {
	reader domain.Reader
	ref    engine.Ref
}

var _ engine.Entity = record{}

func refOf(entity EntityType, id string) engine.Ref {
	return engine.Ref{Type: string(entity), ID: id}
}

func (r record) Ref() engine.Ref { return r.ref }

func (r record) current() (domain.Record, bool) {
	return find(r.reader, EntityType(r.ref.Type), r.ref.ID)
}

func (r record) Attribute(name string) (float64, bool) {
	rec, ok := r.current()
	if !ok {
		return 0, false
	}
	return rec.Attribute(name)
}

func (r record) Related(relation string) (engine.Entity, bool) {
	rec, ok := r.current()
	if !ok {
		return nil, false
	}
	id, ok := rec.Related(relation)
	if !ok {
		return nil, false
	}
	for _, rel := range domain.Relations(rec.EntityType()) {
		if rel.Name == relation {
			return lookup(r.reader, rel.Target, id)
		}
	}
	return nil, false
}

func (r record) Members(collection string) []engine.Entity {
	if EntityType(r.ref.Type) != EntityRecipe {
		return nil
	}
	var out []engine.Entity
	switch collection {
	case collectionMash:
		for _, m := range r.reader.ListMashEntries(r.ref.ID) {
			out = append(out, record{reader: r.reader, ref: refOf(EntityMashEntry, m.ID)})
		}
	case collectionBoil:
		for _, b := range r.reader.ListBoilEntries(r.ref.ID) {
			out = append(out, record{reader: r.reader, ref: refOf(EntityBoilEntry, b.ID)})
		}
	}
	return out
}

const (
	collectionMash = "mashEntries"
	collectionBoil = "boilEntries"
)

// lookup finds a record by type and id and wraps it as an engine entity.
func lookup(reader domain.Reader, entity EntityType, id string) (engine.Entity, bool) {
	if _, ok := find(reader, entity, id); !ok {
		return nil, false
	}
	return record{reader: reader, ref: refOf(entity, id)}, true
}

func find(reader domain.Reader, entity EntityType, id string) (domain.Record, bool) {
	switch entity {
	case EntityRecipe:
		if r, ok := reader.FindRecipe(id); ok {
			return r, true
		}
	case EntityMashEntry:
		if m, ok := reader.FindMashEntry(id); ok {
			return m, true
		}
	case EntityBoilEntry:
		if b, ok := reader.FindBoilEntry(id); ok {
			return b, true
		}
	case EntityYeast:
		if y, ok := reader.FindYeast(id); ok {
			return y, true
		}
	case EntityPitchType:
		if p, ok := reader.FindPitchType(id); ok {
			return p, true
		}
	case EntityBeer:
		if b, ok := reader.FindBeer(id); ok {
			return b, true
		}
	case EntityBeerType:
		if b, ok := reader.FindBeerType(id); ok {
			return b, true
		}
	}
	return nil, false
}
