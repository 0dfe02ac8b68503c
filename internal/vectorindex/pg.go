package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PGIndex implements Index backed by PostgreSQL with the pgvector extension.
// Each collection gets its own table (vector columns have a fixed size), and
// a shared meta table records the declared dimension per collection.
type PGIndex struct {
	pool *pgxpool.Pool
}

// NewPGIndex connects to PostgreSQL, verifies reachability, and prepares the
// pgvector extension and the collections meta table.
func NewPGIndex(ctx context.Context, dsn string) (*PGIndex, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: parse dsn: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	setup := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS vector_collections (
			name      text PRIMARY KEY,
			dimension integer NOT NULL
		)`,
	}
	for _, stmt := range setup {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgvector: setup: %w", err)
		}
	}

	return &PGIndex{pool: pool}, nil
}

// Name identifies this engine.
func (s *PGIndex) Name() string { return "pgvector" }

// Ping probes the connection pool.
func (s *PGIndex) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgvector: ping: %w", err)
	}
	return nil
}

// EnsureCollection records the collection's dimension and creates its chunk
// table if missing.
func (s *PGIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	var existing int
	err := s.pool.QueryRow(ctx,
		`SELECT dimension FROM vector_collections WHERE name = $1`, collection).Scan(&existing)
	switch {
	case err == nil:
		if existing != dimension {
			return fmt.Errorf("%w: %q has %d, want %d", ErrCollectionSizeConflict, collection, existing, dimension)
		}
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to creation
	default:
		return fmt.Errorf("pgvector: lookup collection: %w", err)
	}

	table := collectionTable(collection)
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id            uuid PRIMARY KEY,
		subject_id    text NOT NULL,
		topic_id      text NOT NULL,
		subtopic_id   text NOT NULL DEFAULT '',
		document_id   text NOT NULL,
		chunk_index   integer NOT NULL,
		section_title text NOT NULL DEFAULT '',
		page_number   integer NOT NULL DEFAULT 0,
		is_heading    boolean NOT NULL DEFAULT false,
		is_list       boolean NOT NULL DEFAULT false,
		char_count    integer NOT NULL,
		content       text NOT NULL,
		embedding     vector(%d) NOT NULL
	)`, table, dimension)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("pgvector: create table %s: %w", table, err)
	}
	indexStmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, table, table)
	if _, err := s.pool.Exec(ctx, indexStmt); err != nil {
		return fmt.Errorf("pgvector: create index on %s: %w", table, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO vector_collections (name, dimension) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`, collection, dimension)
	if err != nil {
		return fmt.Errorf("pgvector: register collection: %w", err)
	}
	return nil
}

// Upsert stores or replaces points by ID.
func (s *PGIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`INSERT INTO %s
		(id, subject_id, topic_id, subtopic_id, document_id, chunk_index,
		 section_title, page_number, is_heading, is_list, char_count, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
		 subject_id = EXCLUDED.subject_id, topic_id = EXCLUDED.topic_id,
		 subtopic_id = EXCLUDED.subtopic_id, document_id = EXCLUDED.document_id,
		 chunk_index = EXCLUDED.chunk_index, section_title = EXCLUDED.section_title,
		 page_number = EXCLUDED.page_number, is_heading = EXCLUDED.is_heading,
		 is_list = EXCLUDED.is_list, char_count = EXCLUDED.char_count,
		 content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
		collectionTable(collection))

	batch := &pgx.Batch{}
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has %d, collection %q wants %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), collection, dim)
		}
		pl := p.Payload
		batch.Queue(stmt,
			p.ID, pl.SubjectID, pl.TopicID, pl.SubtopicID, pl.DocumentID, pl.ChunkIndex,
			pl.SectionTitle, pl.PageNumber, pl.IsHeading, pl.IsList, pl.CharCount, pl.Text,
			pgvector.NewVector(p.Vector))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector: upsert: %w", err)
	}
	return nil
}

// Query performs a filtered cosine similarity search. pgvector's <=> operator
// yields cosine distance, so similarity is 1 - distance.
func (s *PGIndex) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]Result, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, collection %q wants %d",
			ErrDimensionMismatch, len(vector), collection, dim)
	}

	where, args := filterClause(filter, 2)
	args = append([]any{pgvector.NewVector(vector)}, args...)
	args = append(args, limit)

	stmt := fmt.Sprintf(`SELECT id, subject_id, topic_id, subtopic_id, document_id,
		chunk_index, section_title, page_number, is_heading, is_list, char_count, content,
		1 - (embedding <=> $1) AS score
		FROM %s%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, collectionTable(collection), where, len(args))

	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var score float64
		if err := rows.Scan(&r.ID, &r.Payload.SubjectID, &r.Payload.TopicID,
			&r.Payload.SubtopicID, &r.Payload.DocumentID, &r.Payload.ChunkIndex,
			&r.Payload.SectionTitle, &r.Payload.PageNumber, &r.Payload.IsHeading,
			&r.Payload.IsList, &r.Payload.CharCount, &r.Payload.Text, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan result: %w", err)
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: iterate results: %w", err)
	}
	return results, nil
}

// DeleteByFilter removes all points matching filter and reports how many
// rows were deleted. An unregistered collection yields ErrCollectionNotFound
// instead of the driver's undefined-table error.
func (s *PGIndex) DeleteByFilter(ctx context.Context, collection string, filter *Filter) (uint64, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}

	where, args := filterClause(filter, 1)
	stmt := fmt.Sprintf(`DELETE FROM %s%s`, collectionTable(collection), where)
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("pgvector: delete by filter: %w", err)
	}
	return uint64(tag.RowsAffected()), nil
}

// Stats reports the collection's point count and declared dimension.
func (s *PGIndex) Stats(ctx context.Context, collection string) (*Stats, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	var count uint64
	stmt := fmt.Sprintf(`SELECT count(*) FROM %s`, collectionTable(collection))
	if err := s.pool.QueryRow(ctx, stmt).Scan(&count); err != nil {
		return nil, fmt.Errorf("pgvector: count points: %w", err)
	}
	return &Stats{PointCount: count, Dimension: dim}, nil
}

// Close releases the connection pool.
func (s *PGIndex) Close() error {
	s.pool.Close()
	return nil
}

// dimension looks up the collection's declared vector size.
func (s *PGIndex) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.pool.QueryRow(ctx,
		`SELECT dimension FROM vector_collections WHERE name = $1`, collection).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, fmt.Errorf("pgvector: lookup collection: %w", err)
	}
	return dim, nil
}

// collectionTable maps a collection name to a safe SQL identifier. Collection
// names come from configuration, not request input, but sanitizing here keeps
// the fmt.Sprintf table interpolation injection-free regardless.
func collectionTable(collection string) string {
	var b strings.Builder
	b.WriteString("chunks_")
	for _, r := range strings.ToLower(collection) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// filterClause builds a WHERE clause for filter with placeholders starting
// at $start. An empty clause is returned for a zero filter.
func filterClause(filter *Filter, start int) (string, []any) {
	if filter.IsZero() {
		return "", nil
	}

	var conds []string
	var args []any
	add := func(expr, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(expr, start+len(args)-1))
	}

	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.TopicID != "" {
		add("topic_id = $%d", filter.TopicID)
	}
	if filter.SubtopicID != "" {
		add("subtopic_id = $%d", filter.SubtopicID)
	}
	if filter.DocumentID != "" {
		add("document_id = $%d", filter.DocumentID)
	}
	if filter.ExcludeDocumentID != "" {
		add("document_id <> $%d", filter.ExcludeDocumentID)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
