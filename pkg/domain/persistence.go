package domain

import "context"

// Reader exposes lookups shared by committed state and transaction snapshots.
// Entry listings are ordered by Position.
type Reader interface {
	FindRecipe(id string) (Recipe, bool)
	FindMashEntry(id string) (MashEntry, bool)
	FindBoilEntry(id string) (BoilEntry, bool)
	FindYeast(id string) (Yeast, bool)
	FindPitchType(id string) (PitchType, bool)
	FindBeer(id string) (Beer, bool)
	FindBeerType(id string) (BeerType, bool)
	ListRecipes() []Recipe
	ListMashEntries(recipeID string) []MashEntry
	ListBoilEntries(recipeID string) []BoilEntry
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Reader
	Snapshot() TransactionView
	CreateRecipe(Recipe) (Recipe, error)
	UpdateRecipe(id string, mutator func(*Recipe) error) (Recipe, error)
	DeleteRecipe(id string) error
	CreateMashEntry(MashEntry) (MashEntry, error)
	UpdateMashEntry(id string, mutator func(*MashEntry) error) (MashEntry, error)
	DeleteMashEntry(id string) error
	CreateBoilEntry(BoilEntry) (BoilEntry, error)
	UpdateBoilEntry(id string, mutator func(*BoilEntry) error) (BoilEntry, error)
	DeleteBoilEntry(id string) error
	CreateYeast(Yeast) (Yeast, error)
	UpdateYeast(id string, mutator func(*Yeast) error) (Yeast, error)
	DeleteYeast(id string) error
	CreatePitchType(PitchType) (PitchType, error)
	UpdatePitchType(id string, mutator func(*PitchType) error) (PitchType, error)
	DeletePitchType(id string) error
	CreateBeer(Beer) (Beer, error)
	UpdateBeer(id string, mutator func(*Beer) error) (Beer, error)
	DeleteBeer(id string) error
	CreateBeerType(BeerType) (BeerType, error)
	UpdateBeerType(id string, mutator func(*BeerType) error) (BeerType, error)
	DeleteBeerType(id string) error
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	Reader
	ListYeasts() []Yeast
	ListPitchTypes() []PitchType
	ListBeers() []Beer
	ListBeerTypes() []BeerType
}

// ChangeListener receives the changes of every committed transaction.
type ChangeListener func([]Change)

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	Reader
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// Subscribe registers fn to run after each commit, once the store lock is
	// released. The returned func removes the subscription.
	Subscribe(fn ChangeListener) (unsubscribe func())
}
