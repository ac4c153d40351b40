package core

import (
	"context"
	"fmt"

	"brewcore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewQuantityRangeRule())
	engine.Register(NewGristShareRule())
	return engine
}

// NewQuantityRangeRule returns the in-transaction rule that blocks negative
// quantities and percentages above 100 on changed records.
func NewQuantityRangeRule() domain.Rule {
	return quantityRangeRule{}
}

type quantityRangeRule struct{}

func (quantityRangeRule) Name() string { return "quantity_range" }

// percentAttributes are bounded by 100; every other attribute only by 0.
// Temperatures may legitimately be negative and are not checked.
var percentAttributes = map[domain.EntityType]map[string]bool{
	EntityRecipe:    {"conversionEfficiency": true},
	EntityMashEntry: {"amount": true, "extractYield": true},
	EntityBoilEntry: {"alphaAcid": true, "extractYield": true},
	EntityYeast:     {"attenuation": true},
}

var signedAttributes = map[string]bool{
	"mashingTemp": true, "mashOutTemp": true, "spargeWaterTemp": true, "primaryFermentationTemp": true,
}

func (quantityRangeRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		rec, ok := change.After.(domain.Record)
		if !ok {
			continue
		}
		entity := rec.EntityType()
		for _, name := range domain.AttributeNames(entity) {
			v, ok := rec.Attribute(name)
			if !ok {
				continue
			}
			var msg string
			switch {
			case v < 0 && !signedAttributes[name]:
				msg = fmt.Sprintf("%s %s: %s must not be negative (%g)", entity, rec.RecordID(), name, v)
			case v > 100 && percentAttributes[entity][name]:
				msg = fmt.Sprintf("%s %s: %s is a percentage, got %g", entity, rec.RecordID(), name, v)
			default:
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "quantity_range",
				Severity: domain.SeverityBlock,
				Message:  msg,
				Entity:   entity,
				EntityID: rec.RecordID(),
			})
		}
	}
	return res, nil
}

// NewGristShareRule returns the rule warning when a recipe's mash entries add
// up to more than 100% of the grist.
func NewGristShareRule() domain.Rule {
	return gristShareRule{}
}

type gristShareRule struct{}

func (gristShareRule) Name() string { return "grist_share" }

func (gristShareRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		for _, side := range []any{change.Before, change.After} {
			switch rec := side.(type) {
			case domain.Recipe:
				touched[rec.ID] = struct{}{}
			case domain.MashEntry:
				touched[rec.RecipeID] = struct{}{}
			}
		}
	}

	res := domain.Result{}
	for _, recipe := range view.ListRecipes() {
		if _, ok := touched[recipe.ID]; !ok {
			continue
		}
		total := 0.0
		for _, entry := range view.ListMashEntries(recipe.ID) {
			if entry.Amount != nil {
				total += *entry.Amount
			}
		}
		if total > 100 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grist_share",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("recipe %s (%s) grist adds up to %g%%", recipe.Name, recipe.ID, total),
				Entity:   domain.EntityRecipe,
				EntityID: recipe.ID,
			})
		}
	}
	return res, nil
}
