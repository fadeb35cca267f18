package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/sds/internal/catalog"
	"github.com/arkilian/sds/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Repository implements catalog.Repository on SQLite.
type Repository struct {
	db     *sqlx.DB // Write connection (single writer)
	readDB *sqlx.DB // Read connection pool
	dbPath string
	mu     sync.Mutex // Write-only lock
}

var _ catalog.Repository = (*Repository)(nil)

type row struct {
	ID   string `db:"id"`
	Body string `db:"body"`
}

// Open opens or creates the manifest at dbPath.
func Open(dbPath string) (*Repository, error) {
	// Write connection: single writer with WAL mode
	db, err := sqlx.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Repository{db: db, dbPath: dbPath}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	// Read pool opens after the schema exists; read-only mode cannot create
	// the file.
	readDB, err := sqlx.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	r.readDB = readDB
	return r, nil
}

// initSchema creates the tables and records the layout version.
func (r *Repository) initSchema() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	var current int
	if err := r.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_versions"); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	switch {
	case current > SchemaVersion:
		return fmt.Errorf("manifest layout version %d is newer than supported version %d", current, SchemaVersion)
	case current < SchemaVersion:
		if _, err := r.db.Exec("INSERT INTO schema_versions (version, created_at) VALUES (?, ?)",
			SchemaVersion, time.Now().Unix()); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}

// Version returns the recorded layout version.
func (r *Repository) Version(ctx context.Context) (int, error) {
	var v int
	if err := r.readDB.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_versions"); err != nil {
		return 0, fmt.Errorf("manifest: failed to read schema version: %w", err)
	}
	return v, nil
}

func (r *Repository) exec(ctx context.Context, what, query string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("manifest: failed to %s: %w", what, err)
	}
	return nil
}

// SaveType inserts or replaces a type.
func (r *Repository) SaveType(ctx context.Context, t *types.Type) error {
	body, err := json.MarshalToString(t)
	if err != nil {
		return fmt.Errorf("manifest: failed to encode type %q: %w", t.ID, err)
	}
	return r.exec(ctx, "save type",
		`INSERT INTO types (id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		t.ID, body, time.Now().UnixNano())
}

// DeleteType removes a type. A missing type is not an error.
func (r *Repository) DeleteType(ctx context.Context, id string) error {
	return r.exec(ctx, "delete type", "DELETE FROM types WHERE id = ?", id)
}

// SaveView inserts or replaces a stream view.
func (r *Repository) SaveView(ctx context.Context, v *types.StreamView) error {
	body, err := json.MarshalToString(v)
	if err != nil {
		return fmt.Errorf("manifest: failed to encode stream view %q: %w", v.ID, err)
	}
	return r.exec(ctx, "save stream view",
		`INSERT INTO stream_views (id, source_type_id, target_type_id, body, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET source_type_id = excluded.source_type_id,
		   target_type_id = excluded.target_type_id, body = excluded.body, updated_at = excluded.updated_at`,
		v.ID, v.SourceTypeID, v.TargetTypeID, body, time.Now().UnixNano())
}

// DeleteView removes a stream view.
func (r *Repository) DeleteView(ctx context.Context, id string) error {
	return r.exec(ctx, "delete stream view", "DELETE FROM stream_views WHERE id = ?", id)
}

// SaveStream inserts or replaces a stream definition.
func (r *Repository) SaveStream(ctx context.Context, s *types.Stream) error {
	body, err := json.MarshalToString(s)
	if err != nil {
		return fmt.Errorf("manifest: failed to encode stream %q: %w", s.ID, err)
	}
	storage := s.StorageTypeID
	if storage == "" {
		storage = s.TypeID
	}
	return r.exec(ctx, "save stream",
		`INSERT INTO streams (id, type_id, storage_type_id, body, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET type_id = excluded.type_id,
		   storage_type_id = excluded.storage_type_id, body = excluded.body, updated_at = excluded.updated_at`,
		s.ID, s.TypeID, storage, body, time.Now().UnixNano())
}

// DeleteStream removes a stream definition.
func (r *Repository) DeleteStream(ctx context.Context, id string) error {
	return r.exec(ctx, "delete stream", "DELETE FROM streams WHERE id = ?", id)
}

// Load reads every definition ordered by id.
func (r *Repository) Load(ctx context.Context) (*catalog.State, error) {
	state := &catalog.State{}

	typeRows, err := r.rows(ctx, "types")
	if err != nil {
		return nil, err
	}
	for _, rw := range typeRows {
		var t types.Type
		if err := decode(rw, &t); err != nil {
			return nil, err
		}
		state.Types = append(state.Types, &t)
	}

	viewRows, err := r.rows(ctx, "stream_views")
	if err != nil {
		return nil, err
	}
	for _, rw := range viewRows {
		var v types.StreamView
		if err := decode(rw, &v); err != nil {
			return nil, err
		}
		state.Views = append(state.Views, &v)
	}

	streamRows, err := r.rows(ctx, "streams")
	if err != nil {
		return nil, err
	}
	for _, rw := range streamRows {
		var s types.Stream
		if err := decode(rw, &s); err != nil {
			return nil, err
		}
		state.Streams = append(state.Streams, &s)
	}
	return state, nil
}

func (r *Repository) rows(ctx context.Context, table string) ([]row, error) {
	var out []row
	if err := r.readDB.SelectContext(ctx, &out, "SELECT id, body FROM "+table+" ORDER BY id"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: failed to read %s: %w", table, err)
	}
	return out, nil
}

func decode(rw row, into any) error {
	if err := json.UnmarshalFromString(rw.Body, into); err != nil {
		return fmt.Errorf("manifest: corrupt definition %q: %w", rw.ID, err)
	}
	return nil
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.dbPath
}

// Close closes both connections.
func (r *Repository) Close() error {
	readErr := r.readDB.Close()
	if err := r.db.Close(); err != nil {
		return err
	}
	return readErr
}
