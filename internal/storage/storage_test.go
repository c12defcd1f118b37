package storage

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/litsearch/pkg/types"
)

// backends opens every Storage implementation on an in-memory store.
func backends(t *testing.T) map[string]Storage {
	t.Helper()
	sqlite, err := Open(BackendSQLite, ":memory:", nil)
	require.NoError(t, err)
	badger, err := Open(BackendBadger, "", log.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlite.Close()
		_ = badger.Close()
	})
	return map[string]Storage{"sqlite": sqlite, "badger": badger}
}

type fixture struct {
	source types.SourceType
	id     string
	ref    string
	text   string
	vector []float32
}

func seed(t *testing.T, s Storage, fixtures []fixture) {
	t.Helper()
	ctx := context.Background()
	for _, f := range fixtures {
		p := &Passage{SourceType: f.source, ExternalID: f.id, SourceRef: f.ref, Text: f.text}
		require.NoError(t, s.UpsertPassage(ctx, p))
		if f.vector != nil {
			require.NoError(t, s.UpsertEmbedding(ctx, NewEmbedding(p.ID, f.vector, "local", "test")))
		}
	}
}

var storageFixtures = []fixture{
	{types.SourceBookPage, "bb-66", "66", "Resentment is the number one offender.", []float32{1, 0, 0}},
	{types.SourceBookPage, "bb-67", "67", "We were prepared to look at it from an entirely different angle.", []float32{0.8, 0.6, 0}},
	{types.SourceBookPage, "bb-164", "164", "Abandon yourself to God.", []float32{0, 0, 1}},
	{types.SourceBookPage, "bb-9", "9", "Same vector as page 66.", []float32{1, 0, 0}},
	{types.SourceBookPage, "bb-x", "x", "Not yet embedded.", nil},
	{types.SourceStep, "step-4", "4", "Made a searching and fearless moral inventory.", []float32{1, 0, 0}},
	{types.SourceArticle, "blog-1", "wrong-dim", "Different dimension.", []float32{1, 0}},
}

func TestSearchVector_Backends(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, storageFixtures)

			results, err := s.SearchVector(ctx, types.SourceBookPage, []float32{1, 0, 0}, 10, 0.5)
			require.NoError(t, err)

			refs := make([]string, len(results))
			for i, r := range results {
				refs[i] = r.Passage.SourceRef
				assert.Equal(t, types.SourceBookPage, r.Passage.SourceType)
				assert.GreaterOrEqual(t, r.SimilarityScore, 0.5)
			}
			// Equal scores break ties by natural ref order; page 164 is below the floor
			assert.Equal(t, []string{"9", "66", "67"}, refs)
			assert.InDelta(t, 0.8, results[2].SimilarityScore, 1e-6)
		})
	}
}

func TestSearchVector_Limits(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, storageFixtures)

			results, err := s.SearchVector(ctx, types.SourceBookPage, []float32{1, 0, 0}, 1, 0)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "bb-9", results[0].Passage.ExternalID)

			results, err = s.SearchVector(ctx, types.SourceBookPage, []float32{1, 0, 0}, 0, 0)
			require.NoError(t, err)
			assert.Empty(t, results)

			// Rows of another dimension are skipped
			results, err = s.SearchVector(ctx, types.SourceArticle, []float32{1, 0, 0}, 10, 0)
			require.NoError(t, err)
			assert.Empty(t, results)

			// Empty corpus
			results, err = s.SearchVector(ctx, types.SourceReflection, []float32{1, 0, 0}, 10, 0)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestGetStatus_Backends(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			status, err := s.GetStatus(ctx)
			require.NoError(t, err)
			assert.False(t, status.Health.EmbeddingsAvailable)
			assert.Len(t, status.Sources, len(types.AllSourceTypes()))

			seed(t, s, storageFixtures)

			status, err = s.GetStatus(ctx)
			require.NoError(t, err)
			assert.True(t, status.Health.DatabaseAccessible)
			assert.True(t, status.Health.EmbeddingsAvailable)
			assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)

			bySource := map[types.SourceType]SourceStatus{}
			for _, st := range status.Sources {
				bySource[st.Source] = st
			}
			assert.Equal(t, 5, bySource[types.SourceBookPage].PassagesCount)
			assert.Equal(t, 4, bySource[types.SourceBookPage].EmbeddingsCount)
			assert.Equal(t, 1, bySource[types.SourceStep].EmbeddingsCount)
			assert.Equal(t, 0, bySource[types.SourceReflection].PassagesCount)

			passages, embeddings := status.Totals()
			assert.Equal(t, 7, passages)
			assert.Equal(t, 6, embeddings)
		})
	}
}

func TestPassageRoundTrip_Backends(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			in := &Passage{
				SourceType: types.SourceReflection,
				ExternalID: "dr-0112",
				SourceRef:  "01-12",
				Title:      "Willingness",
				Text:       "Willingness is the key.",
				Metadata:   map[string]string{"quote": "We are only as sick as our secrets."},
			}
			require.NoError(t, s.UpsertPassage(ctx, in))

			got, err := s.GetPassage(ctx, types.SourceReflection, "dr-0112")
			require.NoError(t, err)
			assert.Equal(t, in.ID, got.ID)
			assert.Equal(t, "01-12", got.SourceRef)
			assert.Equal(t, "Willingness", got.Title)
			assert.Equal(t, in.Metadata, got.Metadata)
			assert.Equal(t, in.ContentHash, got.ContentHash)

			chunk := got.ToChunk()
			assert.Equal(t, "dr-0112", chunk.ID)
			assert.Equal(t, types.SourceReflection, chunk.SourceType)
			assert.Equal(t, "We are only as sick as our secrets.", chunk.Meta("quote"))

			_, err = s.GetPassage(ctx, types.SourceReflection, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("postgres", "", nil)
	assert.Error(t, err)
}

func TestSearchVector_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, storageFixtures)

			const readers = 10
			errs := make(chan error, readers)
			counts := make(chan int, readers)
			for i := 0; i < readers; i++ {
				go func() {
					results, err := s.SearchVector(ctx, types.SourceBookPage, []float32{1, 0, 0}, 10, 0.5)
					errs <- err
					counts <- len(results)
				}()
			}
			for i := 0; i < readers; i++ {
				require.NoError(t, <-errs)
				assert.Equal(t, 3, <-counts)
			}
		})
	}
}

func TestSearchVector_TiesAtLimit(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			vec := []float32{0, 1, 0}
			seed(t, s, []fixture{
				{types.SourceBookPage, "bb-100", "100", "One hundred.", vec},
				{types.SourceBookPage, "bb-10", "10", "Ten.", vec},
				{types.SourceBookPage, "bb-9", "9", "Nine.", vec},
				{types.SourceBookPage, "bb-2", "2", "Two.", vec},
			})

			results, err := s.SearchVector(ctx, types.SourceBookPage, vec, 2, 0.5)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "2", results[0].Passage.SourceRef)
			assert.Equal(t, "9", results[1].Passage.SourceRef)
		})
	}
}
