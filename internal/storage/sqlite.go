package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/litsearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidPassage is returned when a passage is missing required fields
	ErrInvalidPassage = errors.New("invalid passage")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Passage operations

func (s *SQLiteStorage) UpsertPassage(ctx context.Context, passage *Passage) error {
	if err := validatePassage(passage); err != nil {
		return err
	}
	metadata, err := encodeMetadata(passage.Metadata)
	if err != nil {
		return err
	}
	if passage.ContentHash == ([32]byte{}) {
		passage.ContentHash = HashContent(passage.Text)
	}

	// Use atomic INSERT ... ON CONFLICT to avoid race conditions
	query := `
		INSERT INTO passages (
			source_type, external_id, source_ref, title, content, metadata,
			content_hash, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, external_id)
		DO UPDATE SET
			source_ref = excluded.source_ref,
			title = excluded.title,
			content = excluded.content,
			metadata = excluded.metadata,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		string(passage.SourceType), passage.ExternalID, passage.SourceRef,
		passage.Title, passage.Text, metadata, passage.ContentHash[:],
		now, now,
	).Scan(&passage.ID, &passage.CreatedAt, &passage.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert passage: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) GetPassage(ctx context.Context, source types.SourceType, externalID string) (*Passage, error) {
	query := `SELECT ` + passageColumns + ` FROM passages p WHERE p.source_type = ? AND p.external_id = ?`
	passage, err := scanPassage(s.db.QueryRowContext(ctx, query, string(source), externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get passage: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM embeddings WHERE passage_id = ?)`, passage.ID,
	).Scan(&passage.Embedded)
	if err != nil {
		return nil, fmt.Errorf("failed to check embedding: %w", err)
	}
	return passage, nil
}

func validatePassage(p *Passage) error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil passage", ErrInvalidPassage)
	case !p.SourceType.Valid():
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidPassage, p.SourceType)
	case p.ExternalID == "":
		return fmt.Errorf("%w: external id is required", ErrInvalidPassage)
	case p.Text == "":
		return fmt.Errorf("%w: text is required", ErrInvalidPassage)
	}
	return nil
}

// Embedding operations

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (passage_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(passage_id)
		DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
		RETURNING id
	`
	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		embedding.PassageID, embedding.Vector, embedding.Dimension,
		embedding.Provider, embedding.Model, now,
	).Scan(&embedding.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, source types.SourceType, queryVector []float32, limit int, minSimilarity float64) ([]VectorResult, error) {
	return searchVector(ctx, s.db, source, queryVector, limit, minSimilarity)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*IndexStatus, error) {
	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}

	status := &IndexStatus{
		Backend:       "sqlite-" + BuildMode,
		SchemaVersion: version,
	}

	counts := make(map[types.SourceType]*SourceStatus)
	for _, src := range types.AllSourceTypes() {
		counts[src] = &SourceStatus{Source: src}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.source_type, COUNT(p.id), COUNT(e.id)
		FROM passages p
		LEFT JOIN embeddings e ON e.passage_id = p.id
		GROUP BY p.source_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count passages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var source string
		var passages, embeddings int
		if err := rows.Scan(&source, &passages, &embeddings); err != nil {
			return nil, err
		}
		st, ok := counts[types.SourceType(source)]
		if !ok {
			continue
		}
		st.PassagesCount = passages
		st.EmbeddingsCount = embeddings
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, src := range types.AllSourceTypes() {
		status.Sources = append(status.Sources, *counts[src])
	}
	_, totalEmbeddings := status.Totals()

	// Calculate database size
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: totalEmbeddings > 0,
	}

	return status, nil
}
