package core

import (
	"context"
	"fmt"

	"brewcore/pkg/domain"
)

func mutate[T any](ctx context.Context, s *Service, fn func(Transaction) (T, error)) (T, Result, error) {
	var out T
	res, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, res, err
}

// CreateRecipe persists a new recipe.
func (s *Service) CreateRecipe(ctx context.Context, recipe Recipe) (Recipe, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (Recipe, error) { return tx.CreateRecipe(recipe) })
}

// UpdateRecipe applies mutator to an existing recipe.
func (s *Service) UpdateRecipe(ctx context.Context, id string, mutator func(*Recipe) error) (Recipe, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (Recipe, error) { return tx.UpdateRecipe(id, mutator) })
}

// DeleteRecipe removes a recipe together with its mash and boil entries.
func (s *Service) DeleteRecipe(ctx context.Context, id string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteRecipe(id) })
}

// AddMashEntry appends a malt to its recipe's grist.
func (s *Service) AddMashEntry(ctx context.Context, entry MashEntry) (MashEntry, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (MashEntry, error) { return tx.CreateMashEntry(entry) })
}

// UpdateMashEntry applies mutator to an existing mash entry.
func (s *Service) UpdateMashEntry(ctx context.Context, id string, mutator func(*MashEntry) error) (MashEntry, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (MashEntry, error) { return tx.UpdateMashEntry(id, mutator) })
}

// RemoveMashEntry deletes a mash entry.
func (s *Service) RemoveMashEntry(ctx context.Context, id string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteMashEntry(id) })
}

// AddBoilEntry appends an addition to its recipe's boil schedule.
func (s *Service) AddBoilEntry(ctx context.Context, entry BoilEntry) (BoilEntry, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (BoilEntry, error) { return tx.CreateBoilEntry(entry) })
}

// UpdateBoilEntry applies mutator to an existing boil entry.
func (s *Service) UpdateBoilEntry(ctx context.Context, id string, mutator func(*BoilEntry) error) (BoilEntry, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (BoilEntry, error) { return tx.UpdateBoilEntry(id, mutator) })
}

// RemoveBoilEntry deletes a boil entry.
func (s *Service) RemoveBoilEntry(ctx context.Context, id string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteBoilEntry(id) })
}

// CreateYeast persists a yeast product.
func (s *Service) CreateYeast(ctx context.Context, yeast Yeast) (Yeast, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (Yeast, error) { return tx.CreateYeast(yeast) })
}

// UpdateYeast applies mutator to an existing yeast.
func (s *Service) UpdateYeast(ctx context.Context, id string, mutator func(*Yeast) error) (Yeast, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (Yeast, error) { return tx.UpdateYeast(id, mutator) })
}

// DeleteYeast removes a yeast no recipe references.
func (s *Service) DeleteYeast(ctx context.Context, id string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteYeast(id) })
}

// CreatePitchType persists a pitching regime.
func (s *Service) CreatePitchType(ctx context.Context, pitch PitchType) (PitchType, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (PitchType, error) { return tx.CreatePitchType(pitch) })
}

// UpdatePitchType applies mutator to an existing pitch type.
func (s *Service) UpdatePitchType(ctx context.Context, id string, mutator func(*PitchType) error) (PitchType, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (PitchType, error) { return tx.UpdatePitchType(id, mutator) })
}

// DeletePitchType removes a pitch type no recipe references.
func (s *Service) DeletePitchType(ctx context.Context, id string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeletePitchType(id) })
}

// CreateBeer persists a beer.
func (s *Service) CreateBeer(ctx context.Context, beer Beer) (Beer, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (Beer, error) { return tx.CreateBeer(beer) })
}

// UpdateBeer applies mutator to an existing beer.
func (s *Service) UpdateBeer(ctx context.Context, id string, mutator func(*Beer) error) (Beer, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (Beer, error) { return tx.UpdateBeer(id, mutator) })
}

// DeleteBeer removes a beer no recipe references.
func (s *Service) DeleteBeer(ctx context.Context, id string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteBeer(id) })
}

// CreateBeerType persists a beer style.
func (s *Service) CreateBeerType(ctx context.Context, beerType BeerType) (BeerType, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (BeerType, error) { return tx.CreateBeerType(beerType) })
}

// UpdateBeerType applies mutator to an existing beer type.
func (s *Service) UpdateBeerType(ctx context.Context, id string, mutator func(*BeerType) error) (BeerType, Result, error) {
	return mutate(ctx, s, func(tx Transaction) (BeerType, error) { return tx.UpdateBeerType(id, mutator) })
}

// DeleteBeerType removes a beer type no beer references.
func (s *Service) DeleteBeerType(ctx context.Context, id string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteBeerType(id) })
}

// SetAttribute writes one raw attribute by name. A nil value clears it.
func (s *Service) SetAttribute(ctx context.Context, entity EntityType, id, name string, value *float64) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		switch entity {
		case EntityRecipe:
			_, err = tx.UpdateRecipe(id, func(r *Recipe) error { return r.SetAttribute(name, value) })
		case EntityMashEntry:
			_, err = tx.UpdateMashEntry(id, func(m *MashEntry) error { return m.SetAttribute(name, value) })
		case EntityBoilEntry:
			_, err = tx.UpdateBoilEntry(id, func(b *BoilEntry) error { return b.SetAttribute(name, value) })
		case EntityYeast:
			_, err = tx.UpdateYeast(id, func(y *Yeast) error { return y.SetAttribute(name, value) })
		case EntityPitchType:
			_, err = tx.UpdatePitchType(id, func(p *PitchType) error { return p.SetAttribute(name, value) })
		case EntityBeerType:
			_, err = tx.UpdateBeerType(id, func(b *BeerType) error { return b.SetAttribute(name, value) })
		default:
			err = domain.UnknownAttributeError{Entity: entity, Name: name}
		}
		return err
	})
}

// SetRelation points a single relation at another record. A nil target
// clears optional relations; an entry's recipe cannot be cleared.
func (s *Service) SetRelation(ctx context.Context, entity EntityType, id, relation string, target *string) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		switch entity {
		case EntityRecipe:
			_, err = tx.UpdateRecipe(id, func(r *Recipe) error { return r.SetRelated(relation, target) })
		case EntityBeer:
			_, err = tx.UpdateBeer(id, func(b *Beer) error { return b.SetRelated(relation, target) })
		case EntityMashEntry:
			_, err = tx.UpdateMashEntry(id, func(m *MashEntry) error {
				recipeID, err := entryRecipe(entity, relation, target)
				m.RecipeID = recipeID
				return err
			})
		case EntityBoilEntry:
			_, err = tx.UpdateBoilEntry(id, func(b *BoilEntry) error {
				recipeID, err := entryRecipe(entity, relation, target)
				b.RecipeID = recipeID
				return err
			})
		default:
			err = domain.UnknownAttributeError{Entity: entity, Name: relation}
		}
		return err
	})
}

func entryRecipe(entity EntityType, relation string, target *string) (string, error) {
	if relation != "recipe" {
		return "", domain.UnknownAttributeError{Entity: entity, Name: relation}
	}
	if target == nil || *target == "" {
		return "", fmt.Errorf("%s requires a recipe", entity)
	}
	return *target, nil
}
