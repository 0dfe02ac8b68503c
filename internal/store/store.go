// Package store provides the SQLite-backed catalog of ingested documents.
// The vector index holds chunk embeddings; this store holds the document
// records themselves (identity, classification, extraction stats) plus the
// record of which engine and embedder each collection was built with.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a document or collection record is absent.
var ErrNotFound = errors.New("store: not found")

// Document is the catalog record for one ingested document.
type Document struct {
	// ID is the document's UUID.
	ID string
	// Filename is the original upload name.
	Filename string
	// MediaType is the declared MIME type of the upload.
	MediaType string
	// SizeBytes is the raw upload size.
	SizeBytes int64

	// SubjectID, TopicID and SubtopicID classify the document.
	SubjectID  string
	TopicID    string
	SubtopicID string
	// UploaderID identifies who submitted the document.
	UploaderID string

	// TextLength is the extracted text length in characters.
	TextLength int
	// PageCount is the source page count, 0 when unknown.
	PageCount int
	// ChunkCount is the number of chunks indexed for this document.
	ChunkCount int
	// Quality is the extraction quality rating (poor/fair/good/excellent).
	Quality string
	// QualityIssues lists any extraction problems detected.
	QualityIssues []string

	// UploadedAt is when ingestion completed.
	UploadedAt time.Time
	// DeletedAt is when the document was removed, nil while live.
	DeletedAt *time.Time
}

// ListFilter restricts ListDocuments. Zero-valued fields are ignored.
type ListFilter struct {
	SubjectID string
	TopicID   string
	// Limit caps the number of records returned; 0 means no cap.
	Limit int
	// Offset skips the first n records.
	Offset int
}

// DocumentStore persists document catalog records and collection backend
// identities. Implementations must be safe for concurrent use.
type DocumentStore interface {
	// SaveDocument inserts or replaces a document record by ID.
	SaveDocument(ctx context.Context, doc *Document) error
	// GetDocument returns a live document by ID, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*Document, error)
	// ListDocuments returns live documents newest-first, restricted by filter.
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error)
	// SoftDelete marks a document deleted, keeping the record for audit.
	// Deleting an absent or already-deleted document returns ErrNotFound.
	SoftDelete(ctx context.Context, id string) error
	// CountDocuments returns the number of live documents.
	CountDocuments(ctx context.Context) (int64, error)

	// RecordCollectionBackend persists which engine and embedder a collection
	// was first built with. Recording the same identity again is a no-op.
	RecordCollectionBackend(ctx context.Context, collection, engine, embedder string) error
	// CollectionBackend returns the recorded engine and embedder for a
	// collection, or ErrNotFound if nothing was recorded yet.
	CollectionBackend(ctx context.Context, collection string) (engine, embedder string, err error)

	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a DocumentStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the document catalog database.
// It resolves to ~/.edurag/catalog.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".edurag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id             TEXT    PRIMARY KEY,
    filename       TEXT    NOT NULL,
    media_type     TEXT    NOT NULL,
    size_bytes     INTEGER NOT NULL,
    subject_id     TEXT    NOT NULL,
    topic_id       TEXT    NOT NULL,
    subtopic_id    TEXT    NOT NULL DEFAULT '',
    uploader_id    TEXT    NOT NULL DEFAULT '',
    text_length    INTEGER NOT NULL DEFAULT 0,
    page_count     INTEGER NOT NULL DEFAULT 0,
    chunk_count    INTEGER NOT NULL DEFAULT 0,
    quality        TEXT    NOT NULL DEFAULT '',
    quality_issues TEXT    NOT NULL DEFAULT '[]',  -- JSON array of strings
    uploaded_at    INTEGER NOT NULL,               -- Unix timestamp (seconds)
    deleted_at     INTEGER                         -- NULL while live
);
CREATE INDEX IF NOT EXISTS idx_documents_subject_topic
    ON documents (subject_id, topic_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS collection_backends (
    collection  TEXT    PRIMARY KEY,
    engine      TEXT    NOT NULL,
    embedder    TEXT    NOT NULL,
    recorded_at INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveDocument inserts or replaces a document record by ID.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	issues, err := json.Marshal(doc.QualityIssues)
	if err != nil {
		return fmt.Errorf("store: marshal quality issues: %w", err)
	}
	uploadedAt := doc.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}

	const q = `
INSERT OR REPLACE INTO documents
    (id, filename, media_type, size_bytes, subject_id, topic_id, subtopic_id,
     uploader_id, text_length, page_count, chunk_count, quality, quality_issues,
     uploaded_at, deleted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`
	_, err = s.db.ExecContext(ctx, q,
		doc.ID, doc.Filename, doc.MediaType, doc.SizeBytes,
		doc.SubjectID, doc.TopicID, doc.SubtopicID, doc.UploaderID,
		doc.TextLength, doc.PageCount, doc.ChunkCount, doc.Quality, string(issues),
		uploadedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: save document: %w", err)
	}
	return nil
}

const documentColumns = `id, filename, media_type, size_bytes, subject_id, topic_id,
    subtopic_id, uploader_id, text_length, page_count, chunk_count, quality,
    quality_issues, uploaded_at, deleted_at`

// GetDocument returns a live document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = ? AND deleted_at IS NULL`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns live documents newest-first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE deleted_at IS NULL`
	var args []any
	if filter.SubjectID != "" {
		q += ` AND subject_id = ?`
		args = append(args, filter.SubjectID)
	}
	if filter.TopicID != "" {
		q += ` AND topic_id = ?`
		args = append(args, filter.TopicID)
	}
	q += ` ORDER BY uploaded_at DESC, id DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			q += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return docs, nil
}

// SoftDelete marks a live document deleted.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string) error {
	const q = `UPDATE documents SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: soft delete rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

// CountDocuments returns the number of live documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	const q = `SELECT count(*) FROM documents WHERE deleted_at IS NULL`
	var n int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count documents: %w", err)
	}
	return n, nil
}

// RecordCollectionBackend persists the engine and embedder identity for a
// collection. The first record wins; later records are ignored so identity
// queries always report what the collection was built with.
func (s *SQLiteStore) RecordCollectionBackend(ctx context.Context, collection, engine, embedder string) error {
	const q = `
INSERT INTO collection_backends (collection, engine, embedder, recorded_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (collection) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q, collection, engine, embedder, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: record collection backend: %w", err)
	}
	return nil
}

// CollectionBackend returns the recorded engine and embedder for a collection.
func (s *SQLiteStore) CollectionBackend(ctx context.Context, collection string) (string, string, error) {
	const q = `SELECT engine, embedder FROM collection_backends WHERE collection = ?`
	var engine, embedder string
	err := s.db.QueryRowContext(ctx, q, collection).Scan(&engine, &embedder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: collection %s", ErrNotFound, collection)
	}
	if err != nil {
		return "", "", fmt.Errorf("store: collection backend: %w", err)
	}
	return engine, embedder, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanDocument.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var issues string
	var uploadedAt int64
	var deletedAt sql.NullInt64
	err := row.Scan(&doc.ID, &doc.Filename, &doc.MediaType, &doc.SizeBytes,
		&doc.SubjectID, &doc.TopicID, &doc.SubtopicID, &doc.UploaderID,
		&doc.TextLength, &doc.PageCount, &doc.ChunkCount, &doc.Quality,
		&issues, &uploadedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(issues), &doc.QualityIssues); err != nil {
		return nil, fmt.Errorf("unmarshal quality issues: %w", err)
	}
	doc.UploadedAt = time.Unix(uploadedAt, 0)
	if deletedAt.Valid {
		t := time.Unix(deletedAt.Int64, 0)
		doc.DeletedAt = &t
	}
	return &doc, nil
}
