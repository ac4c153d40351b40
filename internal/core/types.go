package core

import "brewcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Recipe             = domain.Recipe
	MashEntry          = domain.MashEntry
	BoilEntry          = domain.BoilEntry
	Yeast              = domain.Yeast
	PitchType          = domain.PitchType
	Beer               = domain.Beer
	BeerType           = domain.BeerType
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityRecipe    = domain.EntityRecipe
	EntityMashEntry = domain.EntityMashEntry
	EntityBoilEntry = domain.EntityBoilEntry
	EntityYeast     = domain.EntityYeast
	EntityPitchType = domain.EntityPitchType
	EntityBeer      = domain.EntityBeer
	EntityBeerType  = domain.EntityBeerType
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine returns an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
