package memory

import (
	"brewcore/pkg/domain"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func seedRecipe(t *testing.T, store *Store) (Recipe, []MashEntry) {
	t.Helper()
	var recipe Recipe
	var entries []MashEntry
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		bt, err := tx.CreateBeerType(BeerType{Name: "Pale Ale", PrimingCO2Min: domain.Ptr(4.5)})
		if err != nil {
			return err
		}
		beer, err := tx.CreateBeer(Beer{Name: "House Pale", BeerTypeID: &bt.ID})
		if err != nil {
			return err
		}
		yeast, err := tx.CreateYeast(Yeast{Name: "US-05", Attenuation: domain.Ptr(78.0)})
		if err != nil {
			return err
		}
		recipe, err = tx.CreateRecipe(Recipe{Name: "Batch 1", BeerID: &beer.ID, YeastID: &yeast.ID})
		if err != nil {
			return err
		}
		for _, name := range []string{"pils", "munich"} {
			e, err := tx.CreateMashEntry(MashEntry{RecipeID: recipe.ID, Name: name, Amount: domain.Ptr(50.0)})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return recipe, entries
}

func TestStoreCreateAndFind(t *testing.T) {
	store := NewStore(nil)
	recipe, entries := seedRecipe(t, store)

	got, ok := store.FindRecipe(recipe.ID)
	if !ok || got.Name != "Batch 1" {
		t.Fatalf("expected committed recipe, got %+v %v", got, ok)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("expected timestamps to be stamped on create")
	}
	if entries[0].Position != 1 || entries[1].Position != 2 {
		t.Fatalf("expected positions 1 and 2, got %d %d", entries[0].Position, entries[1].Position)
	}
	listed := store.ListMashEntries(recipe.ID)
	if len(listed) != 2 || listed[0].Name != "pils" || listed[1].Name != "munich" {
		t.Fatalf("unexpected listing %+v", listed)
	}
	if len(store.ListBoilEntries(recipe.ID)) != 0 {
		t.Fatalf("expected no boil entries")
	}
	if len(store.ListRecipes()) != 1 {
		t.Fatalf("expected one recipe")
	}
}

func TestStoreReturnsClones(t *testing.T) {
	store := NewStore(nil)
	recipe, entries := seedRecipe(t, store)
	got, _ := store.FindRecipe(recipe.ID)
	*got.YeastID = "mutated"
	again, _ := store.FindRecipe(recipe.ID)
	if *again.YeastID == "mutated" {
		t.Fatalf("store leaked internal pointer")
	}
	entry, _ := store.FindMashEntry(entries[0].ID)
	*entry.Amount = 1
	if e, _ := store.FindMashEntry(entries[0].ID); *e.Amount != 50 {
		t.Fatalf("store leaked entry pointer")
	}
}

func TestExplicitPositionOrdersEntries(t *testing.T) {
	store := NewStore(nil)
	recipe, _ := seedRecipe(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateBoilEntry(BoilEntry{RecipeID: recipe.ID, Name: "late", Position: 5}); err != nil {
			return err
		}
		if _, err := tx.CreateBoilEntry(BoilEntry{RecipeID: recipe.ID, Name: "early", Position: 1}); err != nil {
			return err
		}
		e, err := tx.CreateBoilEntry(BoilEntry{RecipeID: recipe.ID, Name: "appended"})
		if err != nil {
			return err
		}
		if e.Position != 6 {
			t.Errorf("expected appended entry at 6, got %d", e.Position)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	names := []string{}
	for _, e := range store.ListBoilEntries(recipe.ID) {
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "early,late,appended" {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestReferentialChecks(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	cases := map[string]func(Transaction) error{
		"entry without recipe": func(tx Transaction) error {
			_, err := tx.CreateMashEntry(MashEntry{RecipeID: "missing"})
			return err
		},
		"recipe with unknown yeast": func(tx Transaction) error {
			_, err := tx.CreateRecipe(Recipe{YeastID: domain.Ptr("missing")})
			return err
		},
		"beer with unknown type": func(tx Transaction) error {
			_, err := tx.CreateBeer(Beer{BeerTypeID: domain.Ptr("missing")})
			return err
		},
		"update unknown recipe": func(tx Transaction) error {
			_, err := tx.UpdateRecipe("missing", func(*Recipe) error { return nil })
			return err
		},
		"delete unknown boil entry": func(tx Transaction) error {
			return tx.DeleteBoilEntry("missing")
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.RunInTransaction(ctx, fn)
			if !domain.IsNotFound(err) {
				t.Fatalf("expected not found error, got %v", err)
			}
		})
	}
	if len(store.ListRecipes()) != 0 {
		t.Fatalf("failed transactions must not commit")
	}
}

func TestUpdateRecipeRelation(t *testing.T) {
	store := NewStore(nil)
	recipe, _ := seedRecipe(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateRecipe(recipe.ID, func(r *Recipe) error {
			r.PitchTypeID = domain.Ptr("missing")
			return nil
		})
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found for dangling pitch type, got %v", err)
	}

	created := recipe.CreatedAt
	store.SetNowFunc(func() time.Time { return created.Add(time.Hour) })
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateRecipe(recipe.ID, func(r *Recipe) error {
			r.ID = "hijack"
			r.BoilTime = domain.Ptr(60.0)
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := store.FindRecipe(recipe.ID)
	if !ok || got.BoilTime == nil || *got.BoilTime != 60 {
		t.Fatalf("expected boil time to be stored")
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(created.Add(time.Hour)) {
		t.Fatalf("unexpected timestamps %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestMoveEntryToAnotherRecipe(t *testing.T) {
	store := NewStore(nil)
	recipe, entries := seedRecipe(t, store)
	var other Recipe
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		other, err = tx.CreateRecipe(Recipe{Name: "Batch 2"})
		if err != nil {
			return err
		}
		_, err = tx.CreateMashEntry(MashEntry{RecipeID: other.ID, Name: "wheat"})
		if err != nil {
			return err
		}
		_, err = tx.UpdateMashEntry(entries[0].ID, func(m *MashEntry) error {
			m.RecipeID = other.ID
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(store.ListMashEntries(recipe.ID)) != 1 {
		t.Fatalf("expected entry removed from source recipe")
	}
	moved := store.ListMashEntries(other.ID)
	if len(moved) != 2 || moved[1].ID != entries[0].ID || moved[1].Position != 2 {
		t.Fatalf("expected moved entry appended, got %+v", moved)
	}
}

func TestDeleteRecipeCascades(t *testing.T) {
	store := NewStore(nil)
	recipe, _ := seedRecipe(t, store)
	var captured []Change
	store.Subscribe(func(changes []Change) { captured = changes })

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateBoilEntry(BoilEntry{RecipeID: recipe.ID, Name: "hops"}); err != nil {
			return err
		}
		return tx.DeleteRecipe(recipe.ID)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.FindRecipe(recipe.ID); ok {
		t.Fatalf("expected recipe removed")
	}
	if len(store.ListMashEntries(recipe.ID)) != 0 || len(store.ListBoilEntries(recipe.ID)) != 0 {
		t.Fatalf("expected entries removed with recipe")
	}
	if len(captured) != 5 {
		t.Fatalf("expected create plus four deletes, got %d changes", len(captured))
	}
	last := captured[len(captured)-1]
	if last.Entity != domain.EntityRecipe || last.Action != domain.ActionDelete {
		t.Fatalf("expected recipe deletion recorded last, got %+v", last)
	}
	for _, c := range captured[1:4] {
		if c.Action != domain.ActionDelete || c.Entity == domain.EntityRecipe {
			t.Fatalf("expected entry deletions before recipe deletion, got %+v", c)
		}
	}
}

func TestDeleteReferencedRecordsFails(t *testing.T) {
	store := NewStore(nil)
	recipe, _ := seedRecipe(t, store)
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteYeast(*recipe.YeastID) })
	if err == nil || !strings.Contains(err.Error(), "still referenced") {
		t.Fatalf("expected referenced yeast error, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteBeer(*recipe.BeerID) })
	if err == nil {
		t.Fatalf("expected referenced beer error")
	}
	beer, _ := store.FindBeer(*recipe.BeerID)
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteBeerType(*beer.BeerTypeID) })
	if err == nil {
		t.Fatalf("expected referenced beer type error")
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.UpdateRecipe(recipe.ID, func(r *Recipe) error {
			r.YeastID = nil
			return nil
		}); err != nil {
			return err
		}
		return tx.DeleteYeast(*recipe.YeastID)
	})
	if err != nil {
		t.Fatalf("expected unreferenced yeast to be deletable: %v", err)
	}
	if _, ok := store.FindYeast(*recipe.YeastID); ok {
		t.Fatalf("expected yeast removed")
	}
}

func TestDuplicateIDsRejected(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreatePitchType(PitchType{Base: domain.Base{ID: "ale"}}); err != nil {
			return err
		}
		_, err := tx.CreatePitchType(PitchType{Base: domain.Base{ID: "ale"}})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	for _, c := range changes {
		if c.Entity == domain.EntityYeast && c.Action == domain.ActionCreate {
			return Result{Violations: []domain.Violation{{Severity: domain.SeverityBlock, Entity: c.Entity}}}, nil
		}
	}
	if len(view.ListYeasts()) > 0 {
		return Result{Violations: []domain.Violation{{Severity: domain.SeverityWarn}}}, nil
	}
	return Result{}, nil
}

func TestRulesBlockCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	notified := false
	store.Subscribe(func([]Change) { notified = true })

	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateYeast(Yeast{Name: "blocked"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) || !res.HasBlocking() {
		t.Fatalf("expected blocking violation, got %v", err)
	}
	if violation.Result.Violations[0].Rule != "block" {
		t.Fatalf("expected violation attributed to rule")
	}
	if len(store.ExportState().Yeasts) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
	if notified {
		t.Fatalf("blocked transaction must not notify subscribers")
	}
	if store.RulesEngine() != engine {
		t.Fatalf("expected configured engine")
	}
}

func TestSubscribersRunAfterCommit(t *testing.T) {
	store := NewStore(nil)
	var order []string
	var seen bool
	store.Subscribe(func(changes []Change) {
		order = append(order, "first")
		// The lock is released, so reading back must not deadlock.
		_, seen = store.FindYeast(changes[0].After.(Yeast).ID)
	})
	unsubscribe := store.Subscribe(func([]Change) { order = append(order, "second") })

	ctx := context.Background()
	create := func(tx Transaction) error {
		_, err := tx.CreateYeast(Yeast{Name: "S-04"})
		return err
	}
	if _, err := store.RunInTransaction(ctx, create); err != nil {
		t.Fatalf("create: %v", err)
	}
	if strings.Join(order, ",") != "first,second" || !seen {
		t.Fatalf("unexpected dispatch %v seen=%v", order, seen)
	}

	unsubscribe()
	unsubscribe()
	order = nil
	if _, err := store.RunInTransaction(ctx, create); err != nil {
		t.Fatalf("create: %v", err)
	}
	if strings.Join(order, ",") != "first" {
		t.Fatalf("expected unsubscribed listener to be skipped, got %v", order)
	}

	order = nil
	if _, err := store.RunInTransaction(ctx, func(Transaction) error { return nil }); err != nil {
		t.Fatalf("empty transaction: %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("empty transactions must not notify")
	}
}

func TestViewAndSnapshot(t *testing.T) {
	store := NewStore(nil)
	recipe, _ := seedRecipe(t, store)
	err := store.View(context.Background(), func(v TransactionView) error {
		if len(v.ListYeasts()) != 1 || len(v.ListBeers()) != 1 || len(v.ListBeerTypes()) != 1 {
			t.Fatalf("unexpected view contents")
		}
		if len(v.ListPitchTypes()) != 0 {
			t.Fatalf("expected no pitch types")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if err := tx.DeleteMashEntry(store.ListMashEntries(recipe.ID)[0].ID); err != nil {
			return err
		}
		if got := len(tx.Snapshot().ListMashEntries(recipe.ID)); got != 1 {
			t.Fatalf("snapshot should see uncommitted delete, got %d", got)
		}
		if got := len(store.ListMashEntries(recipe.ID)); got != 2 {
			t.Fatalf("committed state changed before commit, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	recipe, _ := seedRecipe(t, store)
	snapshot := store.ExportState()

	restored := NewStore(nil)
	restored.ImportState(snapshot)
	if got := restored.ListMashEntries(recipe.ID); len(got) != 2 {
		t.Fatalf("expected entries restored, got %d", len(got))
	}
	delete(snapshot.Recipes, recipe.ID)
	if _, ok := store.FindRecipe(recipe.ID); !ok {
		t.Fatalf("exported snapshot must not alias store state")
	}
}

func TestMigrateSnapshot(t *testing.T) {
	snapshot := Snapshot{
		Recipes: map[string]Recipe{
			"r1": {Name: "kept", YeastID: domain.Ptr("gone"), PitchTypeID: domain.Ptr("ale")},
		},
		PitchTypes: map[string]PitchType{"ale": {}},
		MashEntries: map[string]MashEntry{
			"m1":     {RecipeID: "r1", Position: 3},
			"m2":     {RecipeID: "r1"},
			"m0":     {RecipeID: "r1"},
			"orphan": {RecipeID: "missing"},
		},
		Beers: map[string]Beer{"b1": {BeerTypeID: domain.Ptr("gone")}},
	}
	migrated := migrateSnapshot(snapshot)
	if migrated.BoilEntries == nil || migrated.Yeasts == nil || migrated.BeerTypes == nil {
		t.Fatalf("expected nil buckets to be initialised")
	}
	r := migrated.Recipes["r1"]
	if r.ID != "r1" || r.YeastID != nil || r.PitchTypeID == nil {
		t.Fatalf("unexpected migrated recipe %+v", r)
	}
	if migrated.Beers["b1"].BeerTypeID != nil {
		t.Fatalf("expected dangling beer type cleared")
	}
	if _, ok := migrated.MashEntries["orphan"]; ok {
		t.Fatalf("expected orphaned entry dropped")
	}
	if migrated.MashEntries["m0"].Position != 4 || migrated.MashEntries["m2"].Position != 5 {
		t.Fatalf("expected unpositioned entries appended in id order, got %d %d",
			migrated.MashEntries["m0"].Position, migrated.MashEntries["m2"].Position)
	}
}

func TestNowFuncDefaultsToUTC(t *testing.T) {
	store := NewStore(nil)
	if loc := store.NowFunc()().Location(); loc != time.UTC {
		t.Fatalf("expected UTC clock, got %v", loc)
	}
}

func TestSnapshotBuckets(t *testing.T) {
	var snapshot Snapshot
	for _, name := range Buckets {
		if snapshot.Bucket(name) == nil {
			t.Fatalf("bucket %s has no target", name)
		}
	}
	if snapshot.Bucket("hops") != nil {
		t.Fatalf("expected nil target for unknown bucket")
	}
	target := snapshot.Bucket("yeasts").(*map[string]Yeast)
	*target = map[string]Yeast{"y1": {Name: "S-04"}}
	if snapshot.Yeasts["y1"].Name != "S-04" {
		t.Fatalf("bucket target must alias the snapshot field")
	}
}
