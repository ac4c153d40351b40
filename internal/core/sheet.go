package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"brewcore/internal/blob"
	"brewcore/pkg/domain"
)

// SheetField is one derived recipe field as shown on a brew sheet. Exactly
// one of Value, Entities, Undefined or Error is set, except for a defined
// empty entity list.
type SheetField struct {
	Name      string   `json:"name"`
	Level     int      `json:"level"`
	Value     *float64 `json:"value,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	Undefined string   `json:"undefined,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Sheet lists every derived field of a recipe in evaluation order.
type Sheet struct {
	RecipeID    string       `json:"recipe_id"`
	Name        string       `json:"name"`
	GeneratedAt time.Time    `json:"generated_at"`
	Fields      []SheetField `json:"fields"`
}

// Field returns the named field of the sheet.
func (s Sheet) Field(name string) (SheetField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SheetField{}, false
}

// Sheet evaluates every recipe field. Fields whose inputs are missing are
// reported as undefined and computation errors are reported per field, so a
// partially filled recipe still yields every computable value.
func (s *Service) Sheet(ctx context.Context, recipeID string) (Sheet, error) {
	if err := ctx.Err(); err != nil {
		return Sheet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked()
	recipe, ok := s.store.FindRecipe(recipeID)
	if !ok {
		return Sheet{}, domain.ErrNotFound{Entity: EntityRecipe, ID: recipeID}
	}
	ent := record{reader: s.store, ref: refOf(EntityRecipe, recipe.ID)}
	graph := s.engine.Graph()
	sheet := Sheet{RecipeID: recipe.ID, Name: recipe.Name, GeneratedAt: s.now()}
	for _, name := range graph.Fields(string(EntityRecipe)) {
		f := SheetField{Name: name}
		f.Level, _ = graph.Level(string(EntityRecipe), name)
		v, err := s.engine.Get(ent, name)
		switch {
		case err != nil:
			f.Error = err.Error()
		case !v.Defined():
			f.Undefined = "undefined"
			if reason := v.Reason(); reason != nil {
				f.Undefined = reason.Error()
			}
		default:
			if n, ok := v.Float(); ok {
				f.Value = &n
				break
			}
			for _, e := range v.Entities() {
				f.Entities = append(f.Entities, e.Ref().ID)
			}
		}
		sheet.Fields = append(sheet.Fields, f)
	}
	return sheet, nil
}

// SheetKey is the blob key a recipe sheet is exported under.
func SheetKey(recipeID string) string {
	return path.Join("sheets", recipeID+".json")
}

// ExportSheet writes the recipe sheet as JSON to store, replacing any earlier
// export of the same recipe.
func (s *Service) ExportSheet(ctx context.Context, store blob.Store, recipeID string) (blob.Info, error) {
	sheet, err := s.Sheet(ctx, recipeID)
	if err != nil {
		return blob.Info{}, err
	}
	payload, err := json.MarshalIndent(sheet, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode sheet %s: %w", recipeID, err)
	}
	info, err := store.Put(ctx, SheetKey(recipeID), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"recipe": sheet.Name},
		Overwrite:   true,
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("export sheet %s: %w", recipeID, err)
	}
	s.log.V(1).Info("exported sheet", "recipe", recipeID, "key", info.Key, "driver", string(store.Driver()))
	return info, nil
}
