package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/layerforge/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

// DefaultFileName is the database file name under the data directory.
const DefaultFileName = "documents.db"

// Store is a SQLite-backed document store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the database at path.
// If path is empty, defaults to ~/.layerforge/data/documents.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".layerforge", "data", DefaultFileName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode lets the relay watcher and a run read concurrently.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: path,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// migrate runs all pending migrations and records their versions.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// CreateDocument inserts the document and its layers in one transaction.
// The new document becomes the active one.
func (s *documentStore) CreateDocument(
	ctx context.Context,
	doc domain.DocumentRef,
	layers []domain.Layer,
) (*domain.DocumentRef, []domain.Layer, error) {
	if strings.TrimSpace(doc.Name) == "" || doc.Width <= 0 || doc.Height <= 0 {
		return nil, nil, fmt.Errorf("%w: document needs a name and a positive size", domain.ErrInvalidInput)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (name, width, height, opened_at)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(opened_at), 0) + 1 FROM documents))
	`, doc.Name, doc.Width, doc.Height)
	if err != nil {
		return nil, nil, fmt.Errorf("saving document: %w", err)
	}
	doc.ID, err = res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("reading document id: %w", err)
	}

	saved := make([]domain.Layer, len(layers))
	for i, layer := range layers {
		if layer.Kind == "" {
			layer.Kind = domain.LayerOther
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO layers (document_id, position, name, kind, text, font_size, visible)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, doc.ID, i, layer.Name, string(layer.Kind), layer.Text, layer.FontSize, layer.Visible)
		if err != nil {
			return nil, nil, fmt.Errorf("saving layer %q: %w", layer.Name, err)
		}
		if layer.ID, err = res.LastInsertId(); err != nil {
			return nil, nil, fmt.Errorf("reading layer id: %w", err)
		}
		saved[i] = layer
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing document: %w", err)
	}
	return &doc, saved, nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id int64) (*domain.DocumentRef, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, width, height FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// ActiveDocument returns the most recently opened document.
func (s *documentStore) ActiveDocument(ctx context.Context) (*domain.DocumentRef, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, width, height FROM documents
		ORDER BY opened_at DESC, id DESC LIMIT 1
	`)
	doc, err := scanDocument(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoDocument
	}
	return doc, err
}

// OpenDocument marks a document as the active one.
func (s *documentStore) OpenDocument(ctx context.Context, id int64) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents
		SET opened_at = (SELECT COALESCE(MAX(opened_at), 0) + 1 FROM documents)
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("opening document: %w", err)
	}
	return requireAffected(res, "document", id)
}

// ListDocuments returns all documents ordered by ID.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.DocumentRef, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, name, width, height FROM documents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentRef
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document. Layers cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// GetLayers returns the layers of a document in stacking order.
func (s *documentStore) GetLayers(ctx context.Context, documentID int64) ([]domain.Layer, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, name, kind, text, font_size, visible
		FROM layers WHERE document_id = ? ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing layers: %w", err)
	}
	defer rows.Close()

	var layers []domain.Layer
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		layers = append(layers, *layer)
	}
	return layers, rows.Err()
}

// GetLayer retrieves one layer of a document.
func (s *documentStore) GetLayer(ctx context.Context, documentID, layerID int64) (*domain.Layer, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, kind, text, font_size, visible
		FROM layers WHERE document_id = ? AND id = ?
	`, documentID, layerID)
	return scanLayer(row)
}

// SaveLayer updates the name, text, size and visibility of a layer.
func (s *documentStore) SaveLayer(ctx context.Context, documentID int64, layer domain.Layer) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE layers SET name = ?, text = ?, font_size = ?, visible = ?
		WHERE document_id = ? AND id = ?
	`, layer.Name, layer.Text, layer.FontSize, layer.Visible, documentID, layer.ID)
	if err != nil {
		return fmt.Errorf("saving layer: %w", err)
	}
	return requireAffected(res, "layer", layer.ID)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.DocumentRef, error) {
	var doc domain.DocumentRef
	err := row.Scan(&doc.ID, &doc.Name, &doc.Width, &doc.Height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

func scanLayer(row scanner) (*domain.Layer, error) {
	var (
		layer domain.Layer
		kind  string
	)
	err := row.Scan(&layer.ID, &layer.Name, &kind, &layer.Text, &layer.FontSize, &layer.Visible)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning layer: %w", err)
	}
	layer.Kind = domain.LayerKind(kind)
	return &layer, nil
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s update: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
	}
	return nil
}
