package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/litsearch/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage.db)

	version, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, RollbackMigration(ctx, db))

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	// Re-applying restores the latest version
	require.NoError(t, ApplyMigrations(ctx, db))
	version, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestUpsertPassage_SQLite(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	passage := &Passage{
		SourceType: types.SourceBookPage,
		ExternalID: "bb-164",
		SourceRef:  "164",
		Title:      "A Vision For You",
		Text:       "Abandon yourself to God as you understand God.",
		Metadata:   map[string]string{"chapter": "A Vision For You"},
	}
	require.NoError(t, storage.UpsertPassage(ctx, passage))
	firstID := passage.ID
	assert.Greater(t, firstID, int64(0))
	assert.Equal(t, HashContent(passage.Text), passage.ContentHash)

	// Upsert with the same identity updates in place
	update := &Passage{
		SourceType: types.SourceBookPage,
		ExternalID: "bb-164",
		SourceRef:  "164",
		Text:       "Updated text.",
	}
	require.NoError(t, storage.UpsertPassage(ctx, update))
	assert.Equal(t, firstID, update.ID)

	got, err := storage.GetPassage(ctx, types.SourceBookPage, "bb-164")
	require.NoError(t, err)
	assert.Equal(t, "Updated text.", got.Text)
	assert.Nil(t, got.Metadata)
}

func TestGetPassage_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetPassage(context.Background(), types.SourceStep, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertPassage_Invalid(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	tests := []struct {
		name    string
		passage *Passage
	}{
		{name: "nil", passage: nil},
		{name: "unknown source", passage: &Passage{SourceType: "podcast", ExternalID: "1", Text: "x"}},
		{name: "missing id", passage: &Passage{SourceType: types.SourceStep, Text: "x"}},
		{name: "missing text", passage: &Passage{SourceType: types.SourceStep, ExternalID: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, storage.UpsertPassage(ctx, tt.passage), ErrInvalidPassage)
		})
	}
}

func TestUpsertEmbedding_SQLite(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	passage := &Passage{SourceType: types.SourceStep, ExternalID: "step-4", SourceRef: "4", Text: "Made a searching and fearless moral inventory of ourselves."}
	require.NoError(t, storage.UpsertPassage(ctx, passage))

	emb := NewEmbedding(passage.ID, []float32{1, 0, 0}, "local", "m")
	require.NoError(t, storage.UpsertEmbedding(ctx, emb))
	assert.Greater(t, emb.ID, int64(0))

	// Replace the vector
	require.NoError(t, storage.UpsertEmbedding(ctx, NewEmbedding(passage.ID, []float32{0, 1, 0}, "local", "m")))

	results, err := storage.SearchVector(ctx, types.SourceStep, []float32{0, 1, 0}, 5, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
}

func TestUpsertEmbedding_UnknownPassage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	err := storage.UpsertEmbedding(context.Background(), NewEmbedding(999, []float32{1}, "local", "m"))
	assert.Error(t, err) // Foreign key violation
}
