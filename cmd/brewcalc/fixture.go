package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"brewcore/internal/core"
	"brewcore/pkg/domain"
)

// fixture is the YAML recipe file format. Attribute keys are the names used
// in formula dependency paths (preBoilVolume, alphaAcid, ...).
type fixture struct {
	BeerTypes  []fixtureRecord `yaml:"beer_types"`
	Beers      []fixtureRecord `yaml:"beers"`
	Yeasts     []fixtureRecord `yaml:"yeasts"`
	PitchTypes []fixtureRecord `yaml:"pitch_types"`
	Recipes    []fixtureRecipe `yaml:"recipes"`
}

type fixtureRecord struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name"`
	Attributes map[string]float64 `yaml:"attributes"`
	// Relations maps a relation name to the fixture id it points at.
	Relations map[string]string `yaml:"relations"`
}

type fixtureRecipe struct {
	fixtureRecord `yaml:",inline"`
	Mash          []fixtureRecord `yaml:"mash"`
	Boil          []fixtureRecord `yaml:"boil"`
}

func decodeFixture(r io.Reader) (fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f fixture
	if err := dec.Decode(&f); err != nil {
		return fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

// importFixture creates every record of f in one transaction and returns the
// ids of the created recipes in file order. Fixture ids are kept as record
// ids so relations can refer to them.
func importFixture(ctx context.Context, svc *core.Service, f fixture) ([]string, error) {
	var recipes []string
	_, err := svc.RunInTransaction(ctx, func(tx core.Transaction) error {
		recipes = recipes[:0]
		for _, fr := range f.BeerTypes {
			bt := domain.BeerType{Base: domain.Base{ID: fr.ID}, Name: fr.Name}
			if err := setAttributes(domain.EntityBeerType, fr, bt.SetAttribute); err != nil {
				return err
			}
			if _, err := tx.CreateBeerType(bt); err != nil {
				return err
			}
		}
		for _, fr := range f.Beers {
			beer := domain.Beer{Base: domain.Base{ID: fr.ID}, Name: fr.Name}
			if err := setRelations(fr, beer.SetRelated); err != nil {
				return err
			}
			if len(fr.Attributes) > 0 {
				return fmt.Errorf("beer %s: beers have no attributes", fr.ID)
			}
			if _, err := tx.CreateBeer(beer); err != nil {
				return err
			}
		}
		for _, fr := range f.Yeasts {
			y := domain.Yeast{Base: domain.Base{ID: fr.ID}, Name: fr.Name}
			if err := setAttributes(domain.EntityYeast, fr, y.SetAttribute); err != nil {
				return err
			}
			if _, err := tx.CreateYeast(y); err != nil {
				return err
			}
		}
		for _, fr := range f.PitchTypes {
			p := domain.PitchType{Base: domain.Base{ID: fr.ID}, Name: fr.Name}
			if err := setAttributes(domain.EntityPitchType, fr, p.SetAttribute); err != nil {
				return err
			}
			if _, err := tx.CreatePitchType(p); err != nil {
				return err
			}
		}
		for _, fr := range f.Recipes {
			id, err := importRecipe(tx, fr)
			if err != nil {
				return err
			}
			recipes = append(recipes, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

func importRecipe(tx core.Transaction, fr fixtureRecipe) (string, error) {
	r := domain.Recipe{Base: domain.Base{ID: fr.ID}, Name: fr.Name}
	if err := setAttributes(domain.EntityRecipe, fr.fixtureRecord, r.SetAttribute); err != nil {
		return "", err
	}
	if err := setRelations(fr.fixtureRecord, r.SetRelated); err != nil {
		return "", err
	}
	created, err := tx.CreateRecipe(r)
	if err != nil {
		return "", err
	}
	for _, me := range fr.Mash {
		m := domain.MashEntry{Base: domain.Base{ID: me.ID}, RecipeID: created.ID, Name: me.Name}
		if err := setAttributes(domain.EntityMashEntry, me, m.SetAttribute); err != nil {
			return "", err
		}
		if _, err := tx.CreateMashEntry(m); err != nil {
			return "", err
		}
	}
	for _, be := range fr.Boil {
		b := domain.BoilEntry{Base: domain.Base{ID: be.ID}, RecipeID: created.ID, Name: be.Name}
		if err := setAttributes(domain.EntityBoilEntry, be, b.SetAttribute); err != nil {
			return "", err
		}
		if _, err := tx.CreateBoilEntry(b); err != nil {
			return "", err
		}
	}
	return created.ID, nil
}

func setAttributes(entity domain.EntityType, fr fixtureRecord, set func(string, *float64) error) error {
	for _, name := range sortedKeys(fr.Attributes) {
		if err := set(name, domain.Ptr(fr.Attributes[name])); err != nil {
			return fmt.Errorf("%s %s: %w", entity, fr.Name, err)
		}
	}
	return nil
}

func setRelations(fr fixtureRecord, set func(string, *string) error) error {
	for _, name := range sortedKeys(fr.Relations) {
		if err := set(name, domain.Ptr(fr.Relations[name])); err != nil {
			return fmt.Errorf("%s: %w", fr.Name, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
