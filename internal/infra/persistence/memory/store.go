// Package memory provides an in-memory implementation of the brewing record
// store used for tests, the CLI and as the working set of the snapshotting
// SQL stores.
package memory

import (
	"brewcore/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Recipe aliases domain.Recipe for in-memory persistence operations.
	Recipe = domain.Recipe
	// MashEntry aliases domain.MashEntry.
	MashEntry = domain.MashEntry
	// BoilEntry aliases domain.BoilEntry.
	BoilEntry = domain.BoilEntry
	// Yeast aliases domain.Yeast.
	Yeast = domain.Yeast
	// PitchType aliases domain.PitchType.
	PitchType = domain.PitchType
	// Beer aliases domain.Beer.
	Beer = domain.Beer
	// BeerType aliases domain.BeerType.
	BeerType = domain.BeerType
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// ChangeListener aliases domain.ChangeListener.
	ChangeListener = domain.ChangeListener
)

type memoryState struct {
	recipes     map[string]Recipe
	mashEntries map[string]MashEntry
	boilEntries map[string]BoilEntry
	yeasts      map[string]Yeast
	pitchTypes  map[string]PitchType
	beers       map[string]Beer
	beerTypes   map[string]BeerType
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Recipes     map[string]Recipe    `json:"recipes"`
	MashEntries map[string]MashEntry `json:"mash_entries"`
	BoilEntries map[string]BoilEntry `json:"boil_entries"`
	Yeasts      map[string]Yeast     `json:"yeasts"`
	PitchTypes  map[string]PitchType `json:"pitch_types"`
	Beers       map[string]Beer      `json:"beers"`
	BeerTypes   map[string]BeerType  `json:"beer_types"`
}

func newMemoryState() memoryState {
	return memoryState{
		recipes:     make(map[string]Recipe),
		mashEntries: make(map[string]MashEntry),
		boilEntries: make(map[string]BoilEntry),
		yeasts:      make(map[string]Yeast),
		pitchTypes:  make(map[string]PitchType),
		beers:       make(map[string]Beer),
		beerTypes:   make(map[string]BeerType),
	}
}

func cloneMap[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func cloneRecipe(r Recipe) Recipe          { return r.Clone() }
func cloneMashEntry(m MashEntry) MashEntry { return m.Clone() }
func cloneBoilEntry(b BoilEntry) BoilEntry { return b.Clone() }
func cloneYeast(y Yeast) Yeast             { return y.Clone() }
func clonePitchType(p PitchType) PitchType { return p.Clone() }
func cloneBeer(b Beer) Beer                { return b.Clone() }
func cloneBeerType(b BeerType) BeerType    { return b.Clone() }

func (s memoryState) clone() memoryState {
	return memoryState{
		recipes:     cloneMap(s.recipes, cloneRecipe),
		mashEntries: cloneMap(s.mashEntries, cloneMashEntry),
		boilEntries: cloneMap(s.boilEntries, cloneBoilEntry),
		yeasts:      cloneMap(s.yeasts, cloneYeast),
		pitchTypes:  cloneMap(s.pitchTypes, clonePitchType),
		beers:       cloneMap(s.beers, cloneBeer),
		beerTypes:   cloneMap(s.beerTypes, cloneBeerType),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Recipes:     c.recipes,
		MashEntries: c.mashEntries,
		BoilEntries: c.boilEntries,
		Yeasts:      c.yeasts,
		PitchTypes:  c.pitchTypes,
		Beers:       c.beers,
		BeerTypes:   c.beerTypes,
	}
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	return memoryState{
		recipes:     snapshot.Recipes,
		mashEntries: snapshot.MashEntries,
		boilEntries: snapshot.BoilEntries,
		yeasts:      snapshot.Yeasts,
		pitchTypes:  snapshot.PitchTypes,
		beers:       snapshot.Beers,
		beerTypes:   snapshot.BeerTypes,
	}.clone()
}

func ensureMap[T any](m map[string]T) map[string]T {
	if m == nil {
		return map[string]T{}
	}
	return m
}

// migrateSnapshot fills missing buckets, drops entries whose recipe is gone,
// clears dangling relations and numbers unpositioned entries.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	snapshot.Recipes = ensureMap(snapshot.Recipes)
	snapshot.MashEntries = ensureMap(snapshot.MashEntries)
	snapshot.BoilEntries = ensureMap(snapshot.BoilEntries)
	snapshot.Yeasts = ensureMap(snapshot.Yeasts)
	snapshot.PitchTypes = ensureMap(snapshot.PitchTypes)
	snapshot.Beers = ensureMap(snapshot.Beers)
	snapshot.BeerTypes = ensureMap(snapshot.BeerTypes)

	for id, beer := range snapshot.Beers {
		beer.ID = id
		if beer.BeerTypeID != nil {
			if _, ok := snapshot.BeerTypes[*beer.BeerTypeID]; !ok {
				beer.BeerTypeID = nil
			}
		}
		snapshot.Beers[id] = beer
	}
	for id, recipe := range snapshot.Recipes {
		recipe.ID = id
		if recipe.YeastID != nil {
			if _, ok := snapshot.Yeasts[*recipe.YeastID]; !ok {
				recipe.YeastID = nil
			}
		}
		if recipe.PitchTypeID != nil {
			if _, ok := snapshot.PitchTypes[*recipe.PitchTypeID]; !ok {
				recipe.PitchTypeID = nil
			}
		}
		if recipe.BeerID != nil {
			if _, ok := snapshot.Beers[*recipe.BeerID]; !ok {
				recipe.BeerID = nil
			}
		}
		snapshot.Recipes[id] = recipe
	}
	for id, entry := range snapshot.MashEntries {
		if _, ok := snapshot.Recipes[entry.RecipeID]; !ok {
			delete(snapshot.MashEntries, id)
			continue
		}
		entry.ID = id
		snapshot.MashEntries[id] = entry
	}
	for id, entry := range snapshot.BoilEntries {
		if _, ok := snapshot.Recipes[entry.RecipeID]; !ok {
			delete(snapshot.BoilEntries, id)
			continue
		}
		entry.ID = id
		snapshot.BoilEntries[id] = entry
	}
	assignPositions(snapshot.MashEntries,
		func(e MashEntry) (string, int) { return e.RecipeID, e.Position },
		func(e *MashEntry, p int) { e.Position = p })
	assignPositions(snapshot.BoilEntries,
		func(e BoilEntry) (string, int) { return e.RecipeID, e.Position },
		func(e *BoilEntry, p int) { e.Position = p })
	return snapshot
}

// assignPositions appends entries without a position after the highest
// position of their recipe, in id order.
func assignPositions[T any](entries map[string]T, key func(T) (string, int), set func(*T, int)) {
	highest := make(map[string]int)
	var missing []string
	for id, e := range entries {
		recipeID, pos := key(e)
		if pos <= 0 {
			missing = append(missing, id)
			continue
		}
		if pos > highest[recipeID] {
			highest[recipeID] = pos
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		e := entries[id]
		recipeID, _ := key(e)
		highest[recipeID]++
		set(&e, highest[recipeID])
		entries[id] = e
	}
}

// Store provides an in-memory implementation of the domain persistence
// contract. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	state        memoryState
	engine       *RulesEngine
	nowFn        func() time.Time
	listeners    map[int]ChangeListener
	nextListener int
}

// NewStore constructs an empty store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:     newMemoryState(),
		engine:    engine,
		nowFn:     func() time.Time { return time.Now().UTC() },
		listeners: make(map[int]ChangeListener),
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. Listeners
// are not notified.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// Subscribe registers fn to receive the changes of every committed
// transaction. Listeners run in subscription order after the store lock is
// released, so they may read from the store.
func (s *Store) Subscribe(fn ChangeListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
		})
	}
}

func (s *Store) listenersLocked() []ChangeListener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]ChangeListener, len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}

// transaction represents a mutation set applied to a clone of the store state.
type transaction struct {
	transactionView
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView answers reads against a state it does not own.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// RunInTransaction applies fn to a clone of the current state, evaluates the
// registered rules against the resulting changes and commits when no rule
// blocks. Subscribers receive the committed changes once the lock is released.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	result, changes, listeners, err := s.runLocked(ctx, fn)
	if err != nil {
		return result, err
	}
	if len(changes) > 0 {
		for _, l := range listeners {
			l(changes)
		}
	}
	return result, nil
}

func (s *Store) runLocked(ctx context.Context, fn func(tx Transaction) error) (Result, []Change, []ChangeListener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	tx.transactionView = newTransactionView(&tx.state)

	if err := fn(tx); err != nil {
		return Result{}, nil, nil, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return Result{}, nil, nil, err
		}
		result = res
		if res.HasBlocking() {
			return res, nil, nil, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, tx.changes, s.listenersLocked(), nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return tx.transactionView
}

func (tx *transaction) checkRecipeRelations(r Recipe) error {
	if r.YeastID != nil {
		if _, ok := tx.state.yeasts[*r.YeastID]; !ok {
			return domain.ErrNotFound{Entity: domain.EntityYeast, ID: *r.YeastID}
		}
	}
	if r.PitchTypeID != nil {
		if _, ok := tx.state.pitchTypes[*r.PitchTypeID]; !ok {
			return domain.ErrNotFound{Entity: domain.EntityPitchType, ID: *r.PitchTypeID}
		}
	}
	if r.BeerID != nil {
		if _, ok := tx.state.beers[*r.BeerID]; !ok {
			return domain.ErrNotFound{Entity: domain.EntityBeer, ID: *r.BeerID}
		}
	}
	return nil
}

func (tx *transaction) checkRecipe(id string) error {
	if id == "" {
		return fmt.Errorf("entry requires recipe id")
	}
	if _, ok := tx.state.recipes[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityRecipe, ID: id}
	}
	return nil
}

func (tx *transaction) nextMashPosition(recipeID string) int {
	highest := 0
	for _, e := range tx.state.mashEntries {
		if e.RecipeID == recipeID && e.Position > highest {
			highest = e.Position
		}
	}
	return highest + 1
}

func (tx *transaction) nextBoilPosition(recipeID string) int {
	highest := 0
	for _, e := range tx.state.boilEntries {
		if e.RecipeID == recipeID && e.Position > highest {
			highest = e.Position
		}
	}
	return highest + 1
}

// CreateRecipe stores a new recipe. Referenced yeast, pitch type and beer must exist.
func (tx *transaction) CreateRecipe(r Recipe) (Recipe, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.recipes[r.ID]; exists {
		return Recipe{}, fmt.Errorf("recipe %q already exists", r.ID)
	}
	if err := tx.checkRecipeRelations(r); err != nil {
		return Recipe{}, err
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.recipes[r.ID] = r.Clone()
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionCreate, After: r.Clone()})
	return r.Clone(), nil
}

// UpdateRecipe mutates an existing recipe.
func (tx *transaction) UpdateRecipe(id string, mutator func(*Recipe) error) (Recipe, error) {
	current, ok := tx.state.recipes[id]
	if !ok {
		return Recipe{}, domain.ErrNotFound{Entity: domain.EntityRecipe, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Recipe{}, err
	}
	if err := tx.checkRecipeRelations(current); err != nil {
		return Recipe{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.recipes[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteRecipe removes a recipe together with its mash and boil entries. The
// entry deletions are recorded before the recipe's.
func (tx *transaction) DeleteRecipe(id string) error {
	current, ok := tx.state.recipes[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityRecipe, ID: id}
	}
	for _, e := range tx.ListMashEntries(id) {
		delete(tx.state.mashEntries, e.ID)
		tx.recordChange(Change{Entity: domain.EntityMashEntry, Action: domain.ActionDelete, Before: e})
	}
	for _, e := range tx.ListBoilEntries(id) {
		delete(tx.state.boilEntries, e.ID)
		tx.recordChange(Change{Entity: domain.EntityBoilEntry, Action: domain.ActionDelete, Before: e})
	}
	delete(tx.state.recipes, id)
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreateMashEntry appends a malt to a recipe's grist. A zero Position places
// the entry after the recipe's last mash entry.
func (tx *transaction) CreateMashEntry(m MashEntry) (MashEntry, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.mashEntries[m.ID]; exists {
		return MashEntry{}, fmt.Errorf("mash entry %q already exists", m.ID)
	}
	if err := tx.checkRecipe(m.RecipeID); err != nil {
		return MashEntry{}, err
	}
	if m.Position <= 0 {
		m.Position = tx.nextMashPosition(m.RecipeID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.mashEntries[m.ID] = m.Clone()
	tx.recordChange(Change{Entity: domain.EntityMashEntry, Action: domain.ActionCreate, After: m.Clone()})
	return m.Clone(), nil
}

// UpdateMashEntry mutates an existing mash entry.
func (tx *transaction) UpdateMashEntry(id string, mutator func(*MashEntry) error) (MashEntry, error) {
	current, ok := tx.state.mashEntries[id]
	if !ok {
		return MashEntry{}, domain.ErrNotFound{Entity: domain.EntityMashEntry, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return MashEntry{}, err
	}
	if err := tx.checkRecipe(current.RecipeID); err != nil {
		return MashEntry{}, err
	}
	if current.RecipeID != before.RecipeID && current.Position == before.Position {
		current.Position = tx.nextMashPosition(current.RecipeID)
	}
	if current.Position <= 0 {
		current.Position = before.Position
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.mashEntries[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityMashEntry, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteMashEntry removes a mash entry from state.
func (tx *transaction) DeleteMashEntry(id string) error {
	current, ok := tx.state.mashEntries[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityMashEntry, ID: id}
	}
	delete(tx.state.mashEntries, id)
	tx.recordChange(Change{Entity: domain.EntityMashEntry, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreateBoilEntry appends an addition to a recipe's boil.
func (tx *transaction) CreateBoilEntry(b BoilEntry) (BoilEntry, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.boilEntries[b.ID]; exists {
		return BoilEntry{}, fmt.Errorf("boil entry %q already exists", b.ID)
	}
	if err := tx.checkRecipe(b.RecipeID); err != nil {
		return BoilEntry{}, err
	}
	if b.Position <= 0 {
		b.Position = tx.nextBoilPosition(b.RecipeID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.boilEntries[b.ID] = b.Clone()
	tx.recordChange(Change{Entity: domain.EntityBoilEntry, Action: domain.ActionCreate, After: b.Clone()})
	return b.Clone(), nil
}

// UpdateBoilEntry mutates an existing boil entry.
func (tx *transaction) UpdateBoilEntry(id string, mutator func(*BoilEntry) error) (BoilEntry, error) {
	current, ok := tx.state.boilEntries[id]
	if !ok {
		return BoilEntry{}, domain.ErrNotFound{Entity: domain.EntityBoilEntry, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return BoilEntry{}, err
	}
	if err := tx.checkRecipe(current.RecipeID); err != nil {
		return BoilEntry{}, err
	}
	if current.RecipeID != before.RecipeID && current.Position == before.Position {
		current.Position = tx.nextBoilPosition(current.RecipeID)
	}
	if current.Position <= 0 {
		current.Position = before.Position
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.boilEntries[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityBoilEntry, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteBoilEntry removes a boil entry from state.
func (tx *transaction) DeleteBoilEntry(id string) error {
	current, ok := tx.state.boilEntries[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityBoilEntry, ID: id}
	}
	delete(tx.state.boilEntries, id)
	tx.recordChange(Change{Entity: domain.EntityBoilEntry, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreateYeast stores a yeast product.
func (tx *transaction) CreateYeast(y Yeast) (Yeast, error) {
	if y.ID == "" {
		y.ID = tx.store.newID()
	}
	if _, exists := tx.state.yeasts[y.ID]; exists {
		return Yeast{}, fmt.Errorf("yeast %q already exists", y.ID)
	}
	y.CreatedAt = tx.now
	y.UpdatedAt = tx.now
	tx.state.yeasts[y.ID] = y.Clone()
	tx.recordChange(Change{Entity: domain.EntityYeast, Action: domain.ActionCreate, After: y.Clone()})
	return y.Clone(), nil
}

// UpdateYeast mutates an existing yeast.
func (tx *transaction) UpdateYeast(id string, mutator func(*Yeast) error) (Yeast, error) {
	current, ok := tx.state.yeasts[id]
	if !ok {
		return Yeast{}, domain.ErrNotFound{Entity: domain.EntityYeast, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Yeast{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.yeasts[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityYeast, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteYeast removes a yeast that no recipe references.
func (tx *transaction) DeleteYeast(id string) error {
	current, ok := tx.state.yeasts[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityYeast, ID: id}
	}
	for _, r := range tx.state.recipes {
		if r.YeastID != nil && *r.YeastID == id {
			return fmt.Errorf("yeast %q still referenced by recipe %q", id, r.ID)
		}
	}
	delete(tx.state.yeasts, id)
	tx.recordChange(Change{Entity: domain.EntityYeast, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreatePitchType stores a pitching regime.
func (tx *transaction) CreatePitchType(p PitchType) (PitchType, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.pitchTypes[p.ID]; exists {
		return PitchType{}, fmt.Errorf("pitch type %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.pitchTypes[p.ID] = p.Clone()
	tx.recordChange(Change{Entity: domain.EntityPitchType, Action: domain.ActionCreate, After: p.Clone()})
	return p.Clone(), nil
}

// UpdatePitchType mutates an existing pitch type.
func (tx *transaction) UpdatePitchType(id string, mutator func(*PitchType) error) (PitchType, error) {
	current, ok := tx.state.pitchTypes[id]
	if !ok {
		return PitchType{}, domain.ErrNotFound{Entity: domain.EntityPitchType, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return PitchType{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.pitchTypes[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityPitchType, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeletePitchType removes a pitch type that no recipe references.
func (tx *transaction) DeletePitchType(id string) error {
	current, ok := tx.state.pitchTypes[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPitchType, ID: id}
	}
	for _, r := range tx.state.recipes {
		if r.PitchTypeID != nil && *r.PitchTypeID == id {
			return fmt.Errorf("pitch type %q still referenced by recipe %q", id, r.ID)
		}
	}
	delete(tx.state.pitchTypes, id)
	tx.recordChange(Change{Entity: domain.EntityPitchType, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreateBeer stores a beer. A referenced beer type must exist.
func (tx *transaction) CreateBeer(b Beer) (Beer, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.beers[b.ID]; exists {
		return Beer{}, fmt.Errorf("beer %q already exists", b.ID)
	}
	if b.BeerTypeID != nil {
		if _, ok := tx.state.beerTypes[*b.BeerTypeID]; !ok {
			return Beer{}, domain.ErrNotFound{Entity: domain.EntityBeerType, ID: *b.BeerTypeID}
		}
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.beers[b.ID] = b.Clone()
	tx.recordChange(Change{Entity: domain.EntityBeer, Action: domain.ActionCreate, After: b.Clone()})
	return b.Clone(), nil
}

// UpdateBeer mutates an existing beer.
func (tx *transaction) UpdateBeer(id string, mutator func(*Beer) error) (Beer, error) {
	current, ok := tx.state.beers[id]
	if !ok {
		return Beer{}, domain.ErrNotFound{Entity: domain.EntityBeer, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Beer{}, err
	}
	if current.BeerTypeID != nil {
		if _, ok := tx.state.beerTypes[*current.BeerTypeID]; !ok {
			return Beer{}, domain.ErrNotFound{Entity: domain.EntityBeerType, ID: *current.BeerTypeID}
		}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.beers[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityBeer, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteBeer removes a beer that no recipe references.
func (tx *transaction) DeleteBeer(id string) error {
	current, ok := tx.state.beers[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityBeer, ID: id}
	}
	for _, r := range tx.state.recipes {
		if r.BeerID != nil && *r.BeerID == id {
			return fmt.Errorf("beer %q still referenced by recipe %q", id, r.ID)
		}
	}
	delete(tx.state.beers, id)
	tx.recordChange(Change{Entity: domain.EntityBeer, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreateBeerType stores a beer style.
func (tx *transaction) CreateBeerType(b BeerType) (BeerType, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.beerTypes[b.ID]; exists {
		return BeerType{}, fmt.Errorf("beer type %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.beerTypes[b.ID] = b.Clone()
	tx.recordChange(Change{Entity: domain.EntityBeerType, Action: domain.ActionCreate, After: b.Clone()})
	return b.Clone(), nil
}

// UpdateBeerType mutates an existing beer type.
func (tx *transaction) UpdateBeerType(id string, mutator func(*BeerType) error) (BeerType, error) {
	current, ok := tx.state.beerTypes[id]
	if !ok {
		return BeerType{}, domain.ErrNotFound{Entity: domain.EntityBeerType, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return BeerType{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.beerTypes[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityBeerType, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteBeerType removes a beer type that no beer references.
func (tx *transaction) DeleteBeerType(id string) error {
	current, ok := tx.state.beerTypes[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityBeerType, ID: id}
	}
	for _, b := range tx.state.beers {
		if b.BeerTypeID != nil && *b.BeerTypeID == id {
			return fmt.Errorf("beer type %q still referenced by beer %q", id, b.ID)
		}
	}
	delete(tx.state.beerTypes, id)
	tx.recordChange(Change{Entity: domain.EntityBeerType, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// FindRecipe returns a recipe by id.
func (v transactionView) FindRecipe(id string) (Recipe, bool) {
	r, ok := v.state.recipes[id]
	if !ok {
		return Recipe{}, false
	}
	return r.Clone(), true
}

// FindMashEntry returns a mash entry by id.
func (v transactionView) FindMashEntry(id string) (MashEntry, bool) {
	e, ok := v.state.mashEntries[id]
	if !ok {
		return MashEntry{}, false
	}
	return e.Clone(), true
}

// FindBoilEntry returns a boil entry by id.
func (v transactionView) FindBoilEntry(id string) (BoilEntry, bool) {
	e, ok := v.state.boilEntries[id]
	if !ok {
		return BoilEntry{}, false
	}
	return e.Clone(), true
}

func (v transactionView) FindYeast(id string) (Yeast, bool) {
	y, ok := v.state.yeasts[id]
	if !ok {
		return Yeast{}, false
	}
	return y.Clone(), true
}

func (v transactionView) FindPitchType(id string) (PitchType, bool) {
	p, ok := v.state.pitchTypes[id]
	if !ok {
		return PitchType{}, false
	}
	return p.Clone(), true
}

func (v transactionView) FindBeer(id string) (Beer, bool) {
	b, ok := v.state.beers[id]
	if !ok {
		return Beer{}, false
	}
	return b.Clone(), true
}

func (v transactionView) FindBeerType(id string) (BeerType, bool) {
	b, ok := v.state.beerTypes[id]
	if !ok {
		return BeerType{}, false
	}
	return b.Clone(), true
}

// listSorted clones the values of m ordered by id.
func listSorted[T any](m map[string]T, clone func(T) T) []T {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(m[id]))
	}
	return out
}

// ListRecipes returns every recipe ordered by id.
func (v transactionView) ListRecipes() []Recipe {
	return listSorted(v.state.recipes, cloneRecipe)
}

// ListMashEntries returns the mash entries of a recipe ordered by position.
func (v transactionView) ListMashEntries(recipeID string) []MashEntry {
	var out []MashEntry
	for _, e := range v.state.mashEntries {
		if e.RecipeID == recipeID {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListBoilEntries returns the boil entries of a recipe ordered by position.
func (v transactionView) ListBoilEntries(recipeID string) []BoilEntry {
	var out []BoilEntry
	for _, e := range v.state.boilEntries {
		if e.RecipeID == recipeID {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) ListYeasts() []Yeast { return listSorted(v.state.yeasts, cloneYeast) }

func (v transactionView) ListPitchTypes() []PitchType {
	return listSorted(v.state.pitchTypes, clonePitchType)
}

func (v transactionView) ListBeers() []Beer { return listSorted(v.state.beers, cloneBeer) }

func (v transactionView) ListBeerTypes() []BeerType {
	return listSorted(v.state.beerTypes, cloneBeerType)
}

func (s *Store) read() (transactionView, func()) {
	s.mu.RLock()
	return newTransactionView(&s.state), s.mu.RUnlock
}

// FindRecipe returns a committed recipe by id.
func (s *Store) FindRecipe(id string) (Recipe, bool) {
	v, done := s.read()
	defer done()
	return v.FindRecipe(id)
}

// FindMashEntry returns a committed mash entry by id.
func (s *Store) FindMashEntry(id string) (MashEntry, bool) {
	v, done := s.read()
	defer done()
	return v.FindMashEntry(id)
}

// FindBoilEntry returns a committed boil entry by id.
func (s *Store) FindBoilEntry(id string) (BoilEntry, bool) {
	v, done := s.read()
	defer done()
	return v.FindBoilEntry(id)
}

// FindYeast returns a committed yeast by id.
func (s *Store) FindYeast(id string) (Yeast, bool) {
	v, done := s.read()
	defer done()
	return v.FindYeast(id)
}

// FindPitchType returns a committed pitch type by id.
func (s *Store) FindPitchType(id string) (PitchType, bool) {
	v, done := s.read()
	defer done()
	return v.FindPitchType(id)
}

// FindBeer returns a committed beer by id.
func (s *Store) FindBeer(id string) (Beer, bool) {
	v, done := s.read()
	defer done()
	return v.FindBeer(id)
}

// FindBeerType returns a committed beer type by id.
func (s *Store) FindBeerType(id string) (BeerType, bool) {
	v, done := s.read()
	defer done()
	return v.FindBeerType(id)
}

// ListRecipes returns every committed recipe.
func (s *Store) ListRecipes() []Recipe {
	v, done := s.read()
	defer done()
	return v.ListRecipes()
}

// ListMashEntries returns a recipe's committed mash entries ordered by position.
func (s *Store) ListMashEntries(recipeID string) []MashEntry {
	v, done := s.read()
	defer done()
	return v.ListMashEntries(recipeID)
}

// ListBoilEntries returns a recipe's committed boil entries ordered by position.
func (s *Store) ListBoilEntries(recipeID string) []BoilEntry {
	v, done := s.read()
	defer done()
	return v.ListBoilEntries(recipeID)
}

// Buckets names the snapshot sections in the order the SQL stores persist them.
var Buckets = []string{"beer_types", "beers", "yeasts", "pitch_types", "recipes", "mash_entries", "boil_entries"}

// Bucket returns a pointer to the map holding the named section, suitable for
// json encoding and decoding, or nil for an unknown name.
func (s *Snapshot) Bucket(name string) any {
	switch name {
	case "recipes":
		return &s.Recipes
	case "mash_entries":
		return &s.MashEntries
	case "boil_entries":
		return &s.BoilEntries
	case "yeasts":
		return &s.Yeasts
	case "pitch_types":
		return &s.PitchTypes
	case "beers":
		return &s.Beers
	case "beer_types":
		return &s.BeerTypes
	default:
		return nil
	}
}
