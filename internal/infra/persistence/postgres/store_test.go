package postgres

import (
	"brewcore/internal/infra/persistence/postgres/testutil"
	"brewcore/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func openStub(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return db, conn
}

func TestNewStoreCreatesBucketTables(t *testing.T) {
	_, conn := openStub(t)
	if _, err := NewStore("", domain.NewRulesEngine()); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	created := 0
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS") {
			created++
		}
	}
	if created != 7 {
		t.Fatalf("expected 7 bucket tables, got %d: %v", created, conn.Execs)
	}
}

func TestRunInTransactionPersistsAndReloads(t *testing.T) {
	db, conn := openStub(t)
	store, err := NewStore("ignored", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() != db {
		t.Fatalf("expected DB handle to be exposed")
	}
	var recipeID string
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		bt, err := tx.CreateBeerType(domain.BeerType{Name: "Stout", PrimingCO2Min: domain.Ptr(3.5)})
		if err != nil {
			return err
		}
		beer, err := tx.CreateBeer(domain.Beer{Name: "Dry Stout", BeerTypeID: &bt.ID})
		if err != nil {
			return err
		}
		r, err := tx.CreateRecipe(domain.Recipe{Name: "Batch", BeerID: &beer.ID})
		if err != nil {
			return err
		}
		recipeID = r.ID
		_, err = tx.CreateBoilEntry(domain.BoilEntry{RecipeID: r.ID, AlphaAcid: domain.Ptr(5.5)})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if len(conn.Tables["recipes"]) != 1 || len(conn.Tables["boil_entries"]) != 1 || len(conn.Tables["beer_types"]) != 1 {
		t.Fatalf("expected one row per record, got %v", conn.Tables)
	}

	reloaded, err := NewStore("ignored", nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	r, ok := reloaded.FindRecipe(recipeID)
	if !ok || r.BeerID == nil {
		t.Fatalf("expected recipe with beer restored, got %+v %v", r, ok)
	}
	entries := reloaded.ListBoilEntries(recipeID)
	if len(entries) != 1 || entries[0].AlphaAcid == nil || *entries[0].AlphaAcid != 5.5 {
		t.Fatalf("expected boil entry restored, got %+v", entries)
	}
}

func TestPersistReplacesDeletedRows(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		y, err := tx.CreateYeast(domain.Yeast{Name: "W-34/70"})
		id = y.ID
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeleteYeast(id) }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(conn.Tables["yeasts"]) != 0 {
		t.Fatalf("expected yeast row removed, got %v", conn.Tables["yeasts"])
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("boom") })
	defer restore()
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestNewStorePingError(t *testing.T) {
	_, conn := openStub(t)
	conn.FailExec = true
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestLoadDecodeError(t *testing.T) {
	_, conn := openStub(t)
	conn.Tables["recipes"] = []map[string]any{{"id": "r1", "payload": []byte("{")}}
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "decode recipes") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestLoadQueryError(t *testing.T) {
	_, conn := openStub(t)
	conn.FailTables = map[string]bool{"mash_entries": true}
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "select mash_entries") {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestRunInTransactionSurfacesPersistErrors(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	create := func(tx domain.Transaction) error {
		_, err := tx.CreatePitchType(domain.PitchType{Name: "ale", PitchRate: domain.Ptr(0.75)})
		return err
	}

	conn.FailBegin = true
	if _, err := store.RunInTransaction(context.Background(), create); err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin error, got %v", err)
	}
	conn.FailBegin = false

	conn.FailTables = map[string]bool{"pitch_types": true}
	if _, err := store.RunInTransaction(context.Background(), create); err == nil || !strings.Contains(err.Error(), "insert pitch_types") {
		t.Fatalf("expected insert error, got %v", err)
	}
	conn.FailTables = nil

	conn.FailCommit = true
	if _, err := store.RunInTransaction(context.Background(), create); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := len(conn.Execs)
	_, err = store.RunInTransaction(context.Background(), func(domain.Transaction) error { return errors.New("stop") })
	if err == nil {
		t.Fatalf("expected user error")
	}
	if len(conn.Execs) != before {
		t.Fatalf("expected no statements after failed transaction")
	}
}
