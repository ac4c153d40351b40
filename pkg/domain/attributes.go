package domain

import "fmt"

// Record is the generic read surface shared by every stored record. Attribute
// and relation names are the ones used in formula dependency paths.
type Record interface {
	EntityType() EntityType
	RecordID() string
	Attribute(name string) (float64, bool)
	Related(relation string) (string, bool)
}

// Relation describes a single-valued reference from one record type to
// another.
type Relation struct {
	Name   string
	Target EntityType
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T { return &v }

type attributeColumn[T any] struct {
	name  string
	field func(*T) **float64
}

func column[T any](name string, field func(*T) **float64) attributeColumn[T] {
	return attributeColumn[T]{name: name, field: field}
}

// attributeTable maps attribute names to the nullable struct fields that
// back them.
type attributeTable[T any] struct {
	entity EntityType
	names  []string
	fields map[string]func(*T) **float64
}

func newAttributeTable[T any](entity EntityType, cols ...attributeColumn[T]) attributeTable[T] {
	t := attributeTable[T]{entity: entity, fields: make(map[string]func(*T) **float64, len(cols))}
	for _, c := range cols {
		t.names = append(t.names, c.name)
		t.fields[c.name] = c.field
	}
	return t
}

func (t attributeTable[T]) get(rec *T, name string) (float64, bool) {
	field, ok := t.fields[name]
	if !ok {
		return 0, false
	}
	p := *field(rec)
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (t attributeTable[T]) set(rec *T, name string, v *float64) error {
	field, ok := t.fields[name]
	if !ok {
		return UnknownAttributeError{Entity: t.entity, Name: name}
	}
	if v != nil {
		v = Ptr(*v)
	}
	*field(rec) = v
	return nil
}

func (t attributeTable[T]) clone(rec *T) {
	for _, field := range t.fields {
		if p := field(rec); *p != nil {
			*p = Ptr(**p)
		}
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	return Ptr(*s)
}

func optional(s *string) (string, bool) {
	if s == nil || *s == "" {
		return "", false
	}
	return *s, true
}

var recipeAttributes = newAttributeTable(EntityRecipe,
	column("mashingTemp", func(r *Recipe) **float64 { return &r.MashingTemp }),
	column("mashingTime", func(r *Recipe) **float64 { return &r.MashingTime }),
	column("mashOutTemp", func(r *Recipe) **float64 { return &r.MashOutTemp }),
	column("mashOutTime", func(r *Recipe) **float64 { return &r.MashOutTime }),
	column("spargeCount", func(r *Recipe) **float64 { return &r.SpargeCount }),
	column("spargeWaterTemp", func(r *Recipe) **float64 { return &r.SpargeWaterTemp }),
	column("spargeTime", func(r *Recipe) **float64 { return &r.SpargeTime }),
	column("conversionEfficiency", func(r *Recipe) **float64 { return &r.ConversionEfficiency }),
	column("preBoilVolume", func(r *Recipe) **float64 { return &r.PreBoilVolume }),
	column("postBoilVolume", func(r *Recipe) **float64 { return &r.PostBoilVolume }),
	column("fermentationVolume", func(r *Recipe) **float64 { return &r.FermentationVolume }),
	column("finalVolume", func(r *Recipe) **float64 { return &r.FinalVolume }),
	column("boilTime", func(r *Recipe) **float64 { return &r.BoilTime }),
	column("totalMaltWeight", func(r *Recipe) **float64 { return &r.TotalMaltWeight }),
	column("primaryFermentationTemp", func(r *Recipe) **float64 { return &r.PrimaryFermentationTemp }),
	column("primaryFermentationTime", func(r *Recipe) **float64 { return &r.PrimaryFermentationTime }),
	column("yeastAmount", func(r *Recipe) **float64 { return &r.YeastAmount }),
)

var mashEntryAttributes = newAttributeTable(EntityMashEntry,
	column("amount", func(m *MashEntry) **float64 { return &m.Amount }),
	column("extractYield", func(m *MashEntry) **float64 { return &m.ExtractYield }),
)

var boilEntryAttributes = newAttributeTable(EntityBoilEntry,
	column("addTime", func(b *BoilEntry) **float64 { return &b.AddTime }),
	column("amount", func(b *BoilEntry) **float64 { return &b.Amount }),
	column("alphaAcid", func(b *BoilEntry) **float64 { return &b.AlphaAcid }),
	column("extractYield", func(b *BoilEntry) **float64 { return &b.ExtractYield }),
)

var yeastAttributes = newAttributeTable(EntityYeast,
	column("attenuation", func(y *Yeast) **float64 { return &y.Attenuation }),
	column("cellConcentration", func(y *Yeast) **float64 { return &y.CellConcentration }),
)

var pitchTypeAttributes = newAttributeTable(EntityPitchType,
	column("pitchRate", func(p *PitchType) **float64 { return &p.PitchRate }),
)

var beerAttributes = newAttributeTable[Beer](EntityBeer)

var beerTypeAttributes = newAttributeTable(EntityBeerType,
	column("primingCo2Min", func(b *BeerType) **float64 { return &b.PrimingCO2Min }),
	column("primingCo2Max", func(b *BeerType) **float64 { return &b.PrimingCO2Max }),
)

// AttributeNames lists the raw numeric attributes of an entity type in
// declaration order.
func AttributeNames(entity EntityType) []string {
	var names []string
	switch entity {
	case EntityRecipe:
		names = recipeAttributes.names
	case EntityMashEntry:
		names = mashEntryAttributes.names
	case EntityBoilEntry:
		names = boilEntryAttributes.names
	case EntityYeast:
		names = yeastAttributes.names
	case EntityPitchType:
		names = pitchTypeAttributes.names
	case EntityBeer:
		names = beerAttributes.names
	case EntityBeerType:
		names = beerTypeAttributes.names
	}
	return append([]string(nil), names...)
}

// Relations lists the single-valued references of an entity type.
func Relations(entity EntityType) []Relation {
	switch entity {
	case EntityRecipe:
		return []Relation{{"yeast", EntityYeast}, {"pitchType", EntityPitchType}, {"beer", EntityBeer}}
	case EntityMashEntry, EntityBoilEntry:
		return []Relation{{"recipe", EntityRecipe}}
	case EntityBeer:
		return []Relation{{"beerType", EntityBeerType}}
	default:
		return nil
	}
}

// ChangedFields returns the attribute and relation names whose values differ
// between two versions of the same record. A nil side counts as a record with
// nothing set.
func ChangedFields(before, after Record) []string {
	var entity EntityType
	switch {
	case after != nil:
		entity = after.EntityType()
	case before != nil:
		entity = before.EntityType()
	default:
		return nil
	}
	var changed []string
	for _, name := range AttributeNames(entity) {
		bv, bok := attributeOf(before, name)
		av, aok := attributeOf(after, name)
		if bok != aok || bv != av {
			changed = append(changed, name)
		}
	}
	for _, rel := range Relations(entity) {
		bv, bok := relatedOf(before, rel.Name)
		av, aok := relatedOf(after, rel.Name)
		if bok != aok || bv != av {
			changed = append(changed, rel.Name)
		}
	}
	return changed
}

func attributeOf(r Record, name string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	return r.Attribute(name)
}

func relatedOf(r Record, name string) (string, bool) {
	if r == nil {
		return "", false
	}
	return r.Related(name)
}

// Recipe ----------------------------------------------------------------------

// EntityType implements Record.
func (Recipe) EntityType() EntityType { return EntityRecipe }

// Attribute returns a raw attribute by name.
func (r Recipe) Attribute(name string) (float64, bool) { return recipeAttributes.get(&r, name) }

// SetAttribute sets or clears (nil) a raw attribute by name.
func (r *Recipe) SetAttribute(name string, v *float64) error {
	return recipeAttributes.set(r, name, v)
}

// Related returns the ID referenced by relation.
func (r Recipe) Related(relation string) (string, bool) {
	switch relation {
	case "yeast":
		return optional(r.YeastID)
	case "pitchType":
		return optional(r.PitchTypeID)
	case "beer":
		return optional(r.BeerID)
	default:
		return "", false
	}
}

// SetRelated points relation at id, or clears it when id is nil.
func (r *Recipe) SetRelated(relation string, id *string) error {
	switch relation {
	case "yeast":
		r.YeastID = cloneString(id)
	case "pitchType":
		r.PitchTypeID = cloneString(id)
	case "beer":
		r.BeerID = cloneString(id)
	default:
		return UnknownAttributeError{Entity: EntityRecipe, Name: relation}
	}
	return nil
}

// Clone returns a deep copy.
func (r Recipe) Clone() Recipe {
	recipeAttributes.clone(&r)
	r.YeastID = cloneString(r.YeastID)
	r.PitchTypeID = cloneString(r.PitchTypeID)
	r.BeerID = cloneString(r.BeerID)
	return r
}

// MashEntry -------------------------------------------------------------------

// EntityType implements Record.
func (MashEntry) EntityType() EntityType { return EntityMashEntry }

// Attribute returns a raw attribute by name.
func (m MashEntry) Attribute(name string) (float64, bool) { return mashEntryAttributes.get(&m, name) }

// SetAttribute sets or clears (nil) a raw attribute by name.
func (m *MashEntry) SetAttribute(name string, v *float64) error {
	return mashEntryAttributes.set(m, name, v)
}

// Related returns the owning recipe.
func (m MashEntry) Related(relation string) (string, bool) {
	if relation != "recipe" {
		return "", false
	}
	return optional(&m.RecipeID)
}

// Clone returns a deep copy.
func (m MashEntry) Clone() MashEntry {
	mashEntryAttributes.clone(&m)
	return m
}

// BoilEntry -------------------------------------------------------------------

// EntityType implements Record.
func (BoilEntry) EntityType() EntityType { return EntityBoilEntry }

// Attribute returns a raw attribute by name.
func (b BoilEntry) Attribute(name string) (float64, bool) { return boilEntryAttributes.get(&b, name) }

// SetAttribute sets or clears (nil) a raw attribute by name.
func (b *BoilEntry) SetAttribute(name string, v *float64) error {
	return boilEntryAttributes.set(b, name, v)
}

// Related returns the owning recipe.
func (b BoilEntry) Related(relation string) (string, bool) {
	if relation != "recipe" {
		return "", false
	}
	return optional(&b.RecipeID)
}

// Clone returns a deep copy.
func (b BoilEntry) Clone() BoilEntry {
	boilEntryAttributes.clone(&b)
	return b
}

// Yeast -----------------------------------------------------------------------

// EntityType implements Record.
func (Yeast) EntityType() EntityType { return EntityYeast }

// Attribute returns a raw attribute by name.
func (y Yeast) Attribute(name string) (float64, bool) { return yeastAttributes.get(&y, name) }

// SetAttribute sets or clears (nil) a raw attribute by name.
func (y *Yeast) SetAttribute(name string, v *float64) error { return yeastAttributes.set(y, name, v) }

// Related implements Record; yeasts reference nothing.
func (Yeast) Related(string) (string, bool) { return "", false }

// Clone returns a deep copy.
func (y Yeast) Clone() Yeast {
	yeastAttributes.clone(&y)
	return y
}

// PitchType -------------------------------------------------------------------

// EntityType implements Record.
func (PitchType) EntityType() EntityType { return EntityPitchType }

// Attribute returns a raw attribute by name.
func (p PitchType) Attribute(name string) (float64, bool) { return pitchTypeAttributes.get(&p, name) }

// SetAttribute sets or clears (nil) a raw attribute by name.
func (p *PitchType) SetAttribute(name string, v *float64) error {
	return pitchTypeAttributes.set(p, name, v)
}

// Related implements Record; pitch types reference nothing.
func (PitchType) Related(string) (string, bool) { return "", false }

// Clone returns a deep copy.
func (p PitchType) Clone() PitchType {
	pitchTypeAttributes.clone(&p)
	return p
}

// Beer ------------------------------------------------------------------------

// EntityType implements Record.
func (Beer) EntityType() EntityType { return EntityBeer }

// Attribute implements Record; beers carry no numeric attributes.
func (b Beer) Attribute(name string) (float64, bool) { return beerAttributes.get(&b, name) }

// Related returns the beer's style.
func (b Beer) Related(relation string) (string, bool) {
	if relation != "beerType" {
		return "", false
	}
	return optional(b.BeerTypeID)
}

// SetRelated points relation at id, or clears it when id is nil.
func (b *Beer) SetRelated(relation string, id *string) error {
	if relation != "beerType" {
		return UnknownAttributeError{Entity: EntityBeer, Name: relation}
	}
	b.BeerTypeID = cloneString(id)
	return nil
}

// Clone returns a deep copy.
func (b Beer) Clone() Beer {
	b.BeerTypeID = cloneString(b.BeerTypeID)
	return b
}

// BeerType --------------------------------------------------------------------

// EntityType implements Record.
func (BeerType) EntityType() EntityType { return EntityBeerType }

// Attribute returns a raw attribute by name.
func (b BeerType) Attribute(name string) (float64, bool) { return beerTypeAttributes.get(&b, name) }

// SetAttribute sets or clears (nil) a raw attribute by name.
func (b *BeerType) SetAttribute(name string, v *float64) error {
	return beerTypeAttributes.set(b, name, v)
}

// Related implements Record; beer types reference nothing.
func (BeerType) Related(string) (string, bool) { return "", false }

// Clone returns a deep copy.
func (b BeerType) Clone() BeerType {
	beerTypeAttributes.clone(&b)
	return b
}

var (
	_ Record = Recipe{}
	_ Record = MashEntry{}
	_ Record = BoilEntry{}
	_ Record = Yeast{}
	_ Record = PitchType{}
	_ Record = Beer{}
	_ Record = BeerType{}
)

// String renders a relation for diagnostics.
func (r Relation) String() string { return fmt.Sprintf("%s->%s", r.Name, r.Target) }
