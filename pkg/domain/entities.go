// Package domain defines the persistent brewing records, change records and
// rule evaluation primitives used by brewcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityRecipe identifies a brewing recipe.
	EntityRecipe EntityType = "recipe"
	// EntityMashEntry identifies a malt addition to a recipe's mash.
	EntityMashEntry EntityType = "mash_entry"
	// EntityBoilEntry identifies a hop, sugar or extract addition to the boil.
	EntityBoilEntry EntityType = "boil_entry"
	// EntityYeast identifies a yeast strain.
	EntityYeast EntityType = "yeast"
	// EntityPitchType identifies a pitching regime (ale, lager, ...).
	EntityPitchType EntityType = "pitch_type"
	EntityBeer      EntityType = "beer"
	EntityBeerType  EntityType = "beer_type"
)

// EntityTypes lists every entity type in dependency order: referenced types
// come before the types that reference them.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityBeerType, EntityBeer, EntityYeast, EntityPitchType,
		EntityRecipe, EntityMashEntry, EntityBoilEntry,
	}
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordID returns the record identifier.
func (b Base) RecordID() string { return b.ID }

// Recipe holds the brewer's measurements for one brew. Unset attributes are
// nil; they are never treated as zero.
type Recipe struct {
	Base
	Name                    string   `json:"name"`
	MashingTemp             *float64 `json:"mashing_temp,omitempty"`
	MashingTime             *float64 `json:"mashing_time,omitempty"`
	MashOutTemp             *float64 `json:"mash_out_temp,omitempty"`
	MashOutTime             *float64 `json:"mash_out_time,omitempty"`
	SpargeCount             *float64 `json:"sparge_count,omitempty"`
	SpargeWaterTemp         *float64 `json:"sparge_water_temp,omitempty"`
	SpargeTime              *float64 `json:"sparge_time,omitempty"`
	ConversionEfficiency    *float64 `json:"conversion_efficiency,omitempty"`
	PreBoilVolume           *float64 `json:"pre_boil_volume,omitempty"`
	PostBoilVolume          *float64 `json:"post_boil_volume,omitempty"`
	FermentationVolume      *float64 `json:"fermentation_volume,omitempty"`
	FinalVolume             *float64 `json:"final_volume,omitempty"`
	BoilTime                *float64 `json:"boil_time,omitempty"`
	TotalMaltWeight         *float64 `json:"total_malt_weight,omitempty"`
	PrimaryFermentationTemp *float64 `json:"primary_fermentation_temp,omitempty"`
	PrimaryFermentationTime *float64 `json:"primary_fermentation_time,omitempty"`
	YeastAmount             *float64 `json:"yeast_amount,omitempty"`
	YeastID                 *string  `json:"yeast_id,omitempty"`
	PitchTypeID             *string  `json:"pitch_type_id,omitempty"`
	BeerID                  *string  `json:"beer_id,omitempty"`
}

// MashEntry is one malt of a recipe's grist. Position orders entries within
// their recipe and is assigned by the store on create.
type MashEntry struct {
	Base
	RecipeID     string   `json:"recipe_id"`
	Position     int      `json:"position"`
	Name         string   `json:"name"`
	Amount       *float64 `json:"amount,omitempty"`
	ExtractYield *float64 `json:"extract_yield,omitempty"`
}

// BoilEntry is an addition to the boil: hops, sugar or extract.
type BoilEntry struct {
	Base
	RecipeID     string   `json:"recipe_id"`
	Position     int      `json:"position"`
	Name         string   `json:"name"`
	AddTime      *float64 `json:"add_time,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	AlphaAcid    *float64 `json:"alpha_acid,omitempty"`
	ExtractYield *float64 `json:"extract_yield,omitempty"`
}

// Yeast describes a yeast product.
type Yeast struct {
	Base
	Name              string   `json:"name"`
	Attenuation       *float64 `json:"attenuation,omitempty"`
	CellConcentration *float64 `json:"cell_concentration,omitempty"`
}

// PitchType describes a pitching rate in million cells per ml per °P.
type PitchType struct {
	Base
	Name      string   `json:"name"`
	PitchRate *float64 `json:"pitch_rate,omitempty"`
}

// Beer is a named beer brewed from one or more recipes.
type Beer struct {
	Base
	Name       string  `json:"name"`
	BeerTypeID *string `json:"beer_type_id,omitempty"`
}

// BeerType is a beer style with its carbonation target in g/l CO2.
type BeerType struct {
	Base
	Name          string   `json:"name"`
	PrimingCO2Min *float64 `json:"priming_co2_min,omitempty"`
	PrimingCO2Max *float64 `json:"priming_co2_max,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in change lists.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
