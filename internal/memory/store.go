package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Document is a durable project-memory record: a research note, an answered
// gap, or any other artifact the planning loop wants to find again later.
type Document struct {
	ID        string
	ProjectID string
	Content   string
	Tags      []string
	CreatedAt time.Time
}

// DocumentStore is the persistence interface for project memory.
type DocumentStore interface {
	// Save persists a document. ID is generated if empty; an existing ID
	// replaces the previous content.
	Save(ctx context.Context, doc Document) error

	// Search performs a full-text search over document content, optionally
	// restricted to a single project (empty projectID searches everything).
	Search(ctx context.Context, projectID, query string, topK int) ([]Document, error)

	// Get returns a single document by ID, or nil if absent.
	Get(ctx context.Context, id string) (*Document, error)

	// Delete removes a document by ID.
	Delete(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close() error
}

// SQLiteStore implements DocumentStore on modernc SQLite with an FTS5 index.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database and applies migrations.
func NewSQLiteStore(dsn string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "memory").Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			content    TEXT NOT NULL,
			tags       TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			id UNINDEXED,
			content,
			tokenize = 'porter ascii'
		);

		CREATE TRIGGER IF NOT EXISTS documents_fts_insert
		AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(id, content) VALUES (new.id, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS documents_fts_delete
		AFTER DELETE ON documents BEGIN
			DELETE FROM documents_fts WHERE id = old.id;
		END;

		CREATE TRIGGER IF NOT EXISTS documents_fts_update
		AFTER UPDATE ON documents BEGIN
			DELETE FROM documents_fts WHERE id = old.id;
			INSERT INTO documents_fts(id, content) VALUES (new.id, new.content);
		END;
	`)
	return err
}

// Save persists a document, generating a UUID if ID is empty.
func (s *SQLiteStore) Save(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	tags := strings.Join(doc.Tags, ",")

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, project_id, content, tags, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content    = excluded.content,
		   tags       = excluded.tags,
		   created_at = excluded.created_at`,
		doc.ID, doc.ProjectID, doc.Content, tags, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	s.logger.Debug().Str("id", doc.ID).Str("project", doc.ProjectID).Msg("document saved")
	return nil
}

// Search performs an FTS5 query, falling back to LIKE when the query
// contains characters FTS5 rejects.
func (s *SQLiteStore) Search(ctx context.Context, projectID, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.project_id, d.content, d.tags, d.created_at
		FROM documents d
		JOIN documents_fts f ON d.id = f.id
		WHERE documents_fts MATCH ?
		  AND (? = '' OR d.project_id = ?)
		ORDER BY rank
		LIMIT ?`, query, projectID, projectID, topK)
	if err != nil {
		return s.searchLike(ctx, projectID, query, topK)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *SQLiteStore) searchLike(ctx context.Context, projectID, query string, topK int) ([]Document, error) {
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, content, tags, created_at
		FROM documents
		WHERE content LIKE ?
		  AND (? = '' OR project_id = ?)
		ORDER BY created_at DESC
		LIMIT ?`, like, projectID, projectID, topK)
	if err != nil {
		return nil, fmt.Errorf("search documents (like): %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// Get returns a single document by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, content, tags, created_at FROM documents WHERE id = ?`, id)

	var d Document
	var tags string
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Content, &tags, &d.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	if tags != "" {
		d.Tags = strings.Split(tags, ",")
	}
	return &d, nil
}

// Delete removes a document by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var d Document
		var tags string
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Content, &tags, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if tags != "" {
			d.Tags = strings.Split(tags, ",")
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
