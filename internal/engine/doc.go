// Package engine evaluates derived fields declared over a graph of entities.
//
// A Schema declares entity types (raw attributes, single relations and
// collections) and registers derived fields against them. Every field names
// the paths it reads: a local attribute or field ("boilTime"), a chain of
// relation hops ending in an attribute or field ("beer.beerType.primingCo2Min"),
// or an aggregate over a collection (Sum, SortBy). Registration rejects
// duplicate names and dependency cycles immediately; Compile rejects
// references to fields that were never registered.
//
// The compiled Graph is evaluated by an Engine, which memoizes each field per
// entity instance. While computing a field the engine records every source it
// touched, so Invalidate drops exactly the cached values that read a changed
// attribute, relation slot or collection, across entity boundaries, and
// nothing else.
//
// Values are tagged: an unset relation hop or attribute produces an undefined
// Value (with an UndefinedPathError reason) rather than an error, while a
// formula that cannot produce a finite number fails with
// UndefinedResultError. Both propagate to dependent fields.
package engine
