// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics, keeping one row per record in a table per bucket.
package postgres

import (
	"brewcore/internal/infra/persistence/memory"
	"brewcore/pkg/domain"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/brewcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the bucket tables exist and hydrates the in-memory store from them.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTables(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies the provided function within a transaction, then snapshots to Postgres if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, bucket := range memory.Buckets {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`, bucket)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure %s table: %w", bucket, err)
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	for _, bucket := range memory.Buckets {
		if err := loadBucket(ctx, db, bucket, snapshot.Bucket(bucket)); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return snapshot, nil
}

// loadBucket decodes each row of a bucket table into the map behind target.
func loadBucket(ctx context.Context, db *sql.DB, bucket string, target any) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, payload FROM %s`, bucket))
	if err != nil {
		return fmt.Errorf("select %s: %w", bucket, err)
	}
	defer func() { _ = rows.Close() }()

	m := reflect.ValueOf(target).Elem()
	if m.IsNil() {
		m.Set(reflect.MakeMap(m.Type()))
	}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan %s: %w", bucket, err)
		}
		record := reflect.New(m.Type().Elem())
		if err := json.Unmarshal(payload, record.Interface()); err != nil {
			return fmt.Errorf("decode %s %q: %w", bucket, id, err)
		}
		m.SetMapIndex(reflect.ValueOf(id), record.Elem())
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", bucket, err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(memory.Buckets, ", ")); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	for _, bucket := range memory.Buckets {
		if err := insertBucket(ctx, tx, bucket, snapshot.Bucket(bucket)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func insertBucket(ctx context.Context, tx *sql.Tx, bucket string, source any) error {
	m := reflect.ValueOf(source).Elem()
	ids := make([]string, 0, m.Len())
	for _, k := range m.MapKeys() {
		ids = append(ids, k.String())
	}
	sort.Strings(ids)
	stmt := fmt.Sprintf(`INSERT INTO %s (id, payload) VALUES ($1, $2)`, bucket)
	for _, id := range ids {
		data, err := json.Marshal(m.MapIndex(reflect.ValueOf(id)).Interface())
		if err != nil {
			return fmt.Errorf("encode %s %q: %w", bucket, id, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, id, data); err != nil {
			return fmt.Errorf("insert %s %q: %w", bucket, id, err)
		}
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
