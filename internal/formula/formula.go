// Package formula holds the brewing formula set and registers it against an
// engine schema.
package formula

import (
	"fmt"

	"brewcore/internal/engine"
)

// Entity type names as seen by the engine.
const (
	TypeRecipe    = "recipe"
	TypeMashEntry = "mash_entry"
	TypeBoilEntry = "boil_entry"
	TypeYeast     = "yeast"
	TypePitchType = "pitch_type"
	TypeBeer      = "beer"
	TypeBeerType  = "beer_type"
)

// Types declares the raw attributes and relations of every brewing entity.
func Types() []engine.TypeSpec {
	return []engine.TypeSpec{
		{
			Name: TypeRecipe,
			Attributes: []string{
				"mashingTemp", "mashingTime", "mashOutTemp", "mashOutTime",
				"spargeCount", "spargeWaterTemp", "spargeTime", "conversionEfficiency",
				"preBoilVolume", "postBoilVolume", "fermentationVolume", "finalVolume",
				"boilTime", "totalMaltWeight", "primaryFermentationTemp",
				"primaryFermentationTime", "yeastAmount",
			},
			Relations: []engine.RelationSpec{
				engine.One("yeast", TypeYeast),
				engine.One("pitchType", TypePitchType),
				engine.One("beer", TypeBeer),
				engine.Many("mashEntries", TypeMashEntry),
				engine.Many("boilEntries", TypeBoilEntry),
			},
		},
		{
			Name:       TypeMashEntry,
			Attributes: []string{"amount", "extractYield"},
			Relations:  []engine.RelationSpec{engine.One("recipe", TypeRecipe)},
		},
		{
			Name:       TypeBoilEntry,
			Attributes: []string{"addTime", "amount", "alphaAcid", "extractYield"},
			Relations:  []engine.RelationSpec{engine.One("recipe", TypeRecipe)},
		},
		{Name: TypeYeast, Attributes: []string{"attenuation", "cellConcentration"}},
		{Name: TypePitchType, Attributes: []string{"pitchRate"}},
		{Name: TypeBeer, Relations: []engine.RelationSpec{engine.One("beerType", TypeBeerType)}},
		{Name: TypeBeerType, Attributes: []string{"primingCo2Min", "primingCo2Max"}},
	}
}

type definition struct {
	typ     string
	name    string
	deps    engine.Dependencies
	formula engine.Formula
	agg     *engine.Aggregate
}

func field(typ, name string, deps engine.Dependencies, formula engine.Formula) definition {
	return definition{typ: typ, name: name, deps: deps, formula: formula}
}

func aggregate(typ, name string, agg engine.Aggregate) definition {
	return definition{typ: typ, name: name, agg: &agg}
}

// definitions returns the built-in formula set grouped by brewing stage.
func definitions() []definition {
	var defs []definition
	defs = append(defs, mashDefinitions()...)
	defs = append(defs, gravityDefinitions()...)
	defs = append(defs, boilDefinitions()...)
	defs = append(defs, yeastDefinitions()...)
	defs = append(defs, carbonationDefinitions()...)
	return defs
}

// NewSchema declares the brewing types and registers every built-in formula.
// Any structural error (cycle, duplicate, unresolvable path) is returned.
func NewSchema() (*engine.Schema, error) {
	s := engine.NewSchema()
	for _, spec := range Types() {
		if err := s.DeclareType(spec); err != nil {
			return nil, err
		}
	}
	if err := Register(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Register adds the built-in formula set to a schema that already declares
// the brewing types.
func Register(s *engine.Schema) error {
	for _, def := range definitions() {
		var err error
		if def.agg != nil {
			err = s.RegisterAggregate(def.typ, def.name, *def.agg)
		} else {
			err = s.Register(def.typ, def.name, def.deps, def.formula)
		}
		if err != nil {
			return fmt.Errorf("register %s.%s: %w", def.typ, def.name, err)
		}
	}
	return nil
}

// Compile builds the evaluation graph of the brewing formula set.
func Compile() (*engine.Graph, error) {
	s, err := NewSchema()
	if err != nil {
		return nil, err
	}
	return s.Compile()
}

func ratio(num, den float64) (float64, error) {
	if den == 0 {
		return 0, engine.ErrDivisionByZero
	}
	return num / den, nil
}

// plato converts a specific gravity to degrees Plato.
func plato(sg float64) (float64, error) {
	inv, err := ratio(259, sg)
	if err != nil {
		return 0, err
	}
	return 259 - inv, nil
}

// extractGravity is the specific gravity of extract kg dissolved in water
// litres.
func extractGravity(extract, water float64) (float64, error) {
	p, err := ratio(100*extract, water+extract)
	if err != nil {
		return 0, err
	}
	return 1 + p/(258.6-(p/258.2)*227.1), nil
}

// gravityFromExtract inverts extract = 2.59 * (sg - 1) * volume.
func gravityFromExtract(extract, volume float64) (float64, error) {
	f, err := ratio(extract, volume*2.59)
	if err != nil {
		return 0, err
	}
	return 1 + f, nil
}

func fahrenheit(celsius float64) float64 { return celsius*1.8 + 32 }
