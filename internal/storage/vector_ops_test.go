package storage

import (
	"context"
	"database/sql"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/litsearch/pkg/types"
)

func TestSerializeVector(t *testing.T) {
	in := []float32{0, 1.5, -2.25, math.MaxFloat32}
	blob := SerializeVector(in)
	assert.Len(t, blob, len(in)*4)
	assert.Equal(t, in, DeserializeVector(blob))
	assert.Empty(t, DeserializeVector(nil))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "scaled", a: []float32{1, 1}, b: []float32{3, 3}, want: 1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 1}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

// TestVectorSearchOptimization verifies that the optimized vector search produces
// identical results to the fallback implementation
func TestVectorSearchOptimization(t *testing.T) {
	if !VectorExtensionAvailable {
		t.Skip("Skipping test: sqlite-vec extension not available")
	}

	ctx := context.Background()
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	require.NoError(t, ApplyMigrations(ctx, db))

	storage := &SQLiteStorage{db: db}
	for i := 0; i < 20; i++ {
		vec := make([]float32, 16)
		for j := range vec {
			vec[j] = float32((i*7+j*3)%11) * 0.1
		}
		seed(t, storage, []fixture{{types.SourceBookPage, string(rune('a' + i)), string(rune('a' + i)), "text", vec}})
	}

	query := make([]float32, 16)
	for i := range query {
		query[i] = float32(i) * 0.01
	}

	for _, minSim := range []float64{0, 0.5, 0.8} {
		optimized, err := searchVectorOptimized(ctx, db, types.SourceBookPage, query, 10, minSim)
		require.NoError(t, err)
		fallback, err := searchVectorFallback(ctx, db, types.SourceBookPage, query, 10, minSim)
		require.NoError(t, err)

		require.Equal(t, len(fallback), len(optimized))
		for i := range optimized {
			assert.InDelta(t, fallback[i].SimilarityScore, optimized[i].SimilarityScore, 1e-4)
		}
	}
}

func TestMetadataCodec(t *testing.T) {
	raw, err := encodeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)

	raw, err = encodeMetadata(map[string]string{"chapter": "How It Works"})
	require.NoError(t, err)

	meta, err := decodeMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "How It Works", meta["chapter"])

	_, err = decodeMetadata("{not json")
	assert.Error(t, err)
}

func TestMergeTieGroup(t *testing.T) {
	p := func(ref string) *Passage { return &Passage{SourceRef: ref, ExternalID: "bb-" + ref} }
	top := []candidate{{p("5"), 0.9}, {p("100"), 0.7}, {p("10"), 0.7}}
	ties := []candidate{{p("100"), 0.7}, {p("10"), 0.7}, {p("9"), 0.7}}

	merged := mergeTieGroup(top, ties, 0.7)
	sortCandidates(merged)
	results := buildVectorResults(merged, 3)

	refs := make([]string, len(results))
	for i, r := range results {
		refs[i] = r.Passage.SourceRef
	}
	assert.Equal(t, []string{"5", "9", "10"}, refs)
}
