package providers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	// sqlite driver registered as "sqlite"
	_ "modernc.org/sqlite"

	"github.com/memohai/provsync/internal/atomicfile"
)

// Store persists the ordered provider list. Save replaces the whole list.
type Store interface {
	Load(ctx context.Context) ([]Provider, error)
	Save(ctx context.Context, items []Provider) error
}

// OpenStore builds the store selected by driver ("json" or "sqlite").
func OpenStore(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "json":
		return NewJSONStore(path), nil
	case "sqlite":
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

type registryDocument struct {
	Version   int        `json:"version"`
	Providers []Provider `json:"providers"`
}

const registryVersion = 1

// JSONStore keeps the registry in a single JSON document.
type JSONStore struct {
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Load(_ context.Context) ([]Provider, error) {
	data, exists, err := atomicfile.Read(s.path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if !exists || len(strings.TrimSpace(string(data))) == 0 {
		return []Provider{}, nil
	}
	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", s.path, err)
	}
	if doc.Providers == nil {
		doc.Providers = []Provider{}
	}
	return doc.Providers, nil
}

func (s *JSONStore) Save(_ context.Context, items []Provider) error {
	if items == nil {
		items = []Provider{}
	}
	data, err := json.MarshalIndent(registryDocument{Version: registryVersion, Providers: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	data = append(data, '\n')
	if _, err := atomicfile.Write(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// SQLiteStore keeps one row per provider, ordered by position.
type SQLiteStore struct {
	db   *sql.DB
	once sync.Once
	err  error
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS providers (
	name     TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	payload  TEXT NOT NULL
)`

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	s.once.Do(func() {
		_, s.err = s.db.ExecContext(ctx, sqliteSchema)
	})
	return s.err
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Provider, error) {
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM providers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	items := []Provider{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		var p Provider
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode provider: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, items []Provider) error {
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM providers`); err != nil {
		return fmt.Errorf("clear providers: %w", err)
	}
	for i, p := range items {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode provider %s: %w", p.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO providers (name, position, payload) VALUES (?, ?, ?)`,
			p.Name, i, string(payload),
		); err != nil {
			return fmt.Errorf("insert provider %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
