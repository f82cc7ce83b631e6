package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/engine/embedding"
)

//go:embed schema.sql
var schemaFS embed.FS

// SchemaVersion is the version of schema.sql.
const SchemaVersion = 1

const herbColumns = "id, common_name, scientific_name, uses, description, image_path, embedding, embedding_model, updated_at"

// SQLiteCatalog is the default persistent catalog, backed by a pure-Go
// SQLite driver.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the catalog file location under the XDG data dir.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "share", "herbid", "herbs.db")
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "herbid", "herbs.db")
}

// OpenSQLite opens or creates the catalog at path and applies the schema.
func OpenSQLite(path string) (*SQLiteCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("catalog: create data dir: %w", err)
	}
	return openSQLite(path, path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}

// OpenSQLiteInMemory creates a throwaway catalog, mainly for tests.
func OpenSQLiteInMemory() (*SQLiteCatalog, error) {
	return openSQLite(":memory:", ":memory:")
}

func openSQLite(path, dsn string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping %s: %w", path, err)
	}
	c := &SQLiteCatalog{db: db, path: path}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate %s: %w", path, err)
	}
	return c, nil
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error { return c.db.Close() }

func (c *SQLiteCatalog) migrate() error {
	version, err := c.schemaVersion()
	if err != nil {
		return err
	}
	if version >= SchemaVersion {
		return nil
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		SchemaVersion, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

func (c *SQLiteCatalog) schemaVersion() (int, error) {
	var exists int
	if err := c.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check schema_version: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var version int
	err := c.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHerb(row rowScanner) (domain.HerbRecord, error) {
	var (
		h       domain.HerbRecord
		blob    []byte
		updated string
	)
	if err := row.Scan(&h.ID, &h.CommonName, &h.ScientificName, &h.Uses, &h.Description,
		&h.ImagePath, &blob, &h.EmbeddingModel, &updated); err != nil {
		return h, err
	}
	vec, err := embedding.DecodeVector(blob)
	if err != nil {
		return h, fmt.Errorf("catalog: herb %s: %w", h.ID, err)
	}
	h.Embedding = vec
	h.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return h, nil
}

func (c *SQLiteCatalog) AllRecords(ctx context.Context) ([]domain.HerbRecord, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT "+herbColumns+" FROM herbs ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("catalog: list herbs: %w", err)
	}
	defer rows.Close()

	var out []domain.HerbRecord
	for rows.Next() {
		h, err := scanHerb(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) queryOne(ctx context.Context, where string, arg any) (domain.HerbRecord, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+herbColumns+" FROM herbs WHERE "+where+" ORDER BY seq LIMIT 1", arg)
	h, err := scanHerb(row)
	if errors.Is(err, sql.ErrNoRows) {
		return h, domain.ErrNotFound
	}
	if err != nil {
		return h, fmt.Errorf("catalog: query herb: %w", err)
	}
	return h, nil
}

func (c *SQLiteCatalog) FindByName(ctx context.Context, name string) (domain.HerbRecord, error) {
	h, err := c.FindByScientificName(ctx, name)
	if !errors.Is(err, domain.ErrNotFound) {
		return h, err
	}
	if name == "" {
		return h, err
	}
	h, err = c.queryOne(ctx, "common_name = ? COLLATE NOCASE", name)
	if !errors.Is(err, domain.ErrNotFound) {
		return h, err
	}
	return c.queryOne(ctx, "instr(lower(common_name), lower(?)) > 0", name)
}

func (c *SQLiteCatalog) FindByScientificName(ctx context.Context, name string) (domain.HerbRecord, error) {
	if name == "" {
		return domain.HerbRecord{}, domain.ErrNotFound
	}
	return c.queryOne(ctx, "scientific_name = ? COLLATE NOCASE", name)
}

// SampleAny returns the oldest record.
func (c *SQLiteCatalog) SampleAny(ctx context.Context) (domain.HerbRecord, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+herbColumns+" FROM herbs ORDER BY seq LIMIT 1")
	h, err := scanHerb(row)
	if errors.Is(err, sql.ErrNoRows) {
		return h, domain.ErrEmptyCatalog
	}
	if err != nil {
		return h, fmt.Errorf("catalog: sample: %w", err)
	}
	return h, nil
}

func (c *SQLiteCatalog) Upsert(ctx context.Context, h domain.HerbRecord) error {
	h, err := prepare(h)
	if err != nil {
		return err
	}
	var blob any
	if h.HasEmbedding() {
		blob = embedding.EncodeVector(h.Embedding)
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO herbs (`+herbColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    common_name = excluded.common_name,
    scientific_name = excluded.scientific_name,
    uses = excluded.uses,
    description = excluded.description,
    image_path = excluded.image_path,
    embedding = COALESCE(excluded.embedding, herbs.embedding),
    embedding_model = CASE WHEN excluded.embedding IS NULL THEN herbs.embedding_model ELSE excluded.embedding_model END,
    updated_at = excluded.updated_at`,
		h.ID, h.CommonName, h.ScientificName, h.Uses, h.Description, h.ImagePath,
		blob, h.EmbeddingModel, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", h.ID, err)
	}
	return nil
}

func (c *SQLiteCatalog) SetEmbedding(ctx context.Context, id string, vec []float32, model string) error {
	res, err := c.db.ExecContext(ctx,
		"UPDATE herbs SET embedding = ?, embedding_model = ?, updated_at = ? WHERE id = ?",
		embedding.EncodeVector(vec), model, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("catalog: set embedding %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: herb %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (c *SQLiteCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM herbs").Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

var _ Store = (*SQLiteCatalog)(nil)
