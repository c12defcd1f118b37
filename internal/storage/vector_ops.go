package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/litsearch/pkg/types"
)

const passageColumns = `p.id, p.source_type, p.external_id, p.source_ref, p.title, p.content, p.metadata, p.content_hash, p.created_at, p.updated_at`

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, source types.SourceType, queryVector []float32, limit int, minSimilarity float64) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, source, queryVector, limit, minSimilarity)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, source, queryVector, limit, minSimilarity)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, db *sql.DB, source types.SourceType, queryVector []float32, limit int, minSimilarity float64) ([]VectorResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better); convert to similarity
	query := `
		SELECT ` + passageColumns + `,
			1.0 - vec_distance_cosine(e.vector, ?) as similarity
		FROM passages p
		INNER JOIN embeddings e ON p.id = e.passage_id
		WHERE p.source_type = ? AND e.dimension = ?
			AND (1.0 - vec_distance_cosine(e.vector, ?)) >= ?
		ORDER BY similarity DESC
		LIMIT ?
	`
	candidates, err := queryCandidates(ctx, db, query,
		queryVectorBlob, string(source), len(queryVector), queryVectorBlob, minSimilarity, limit)
	if err != nil {
		return nil, err
	}

	// SQL cannot order refs naturally, so a tie group cut by LIMIT is fetched
	// whole and ordered in Go.
	if len(candidates) == limit {
		cutoff := candidates[len(candidates)-1].score
		tieQuery := `
			SELECT ` + passageColumns + `,
				1.0 - vec_distance_cosine(e.vector, ?) as similarity
			FROM passages p
			INNER JOIN embeddings e ON p.id = e.passage_id
			WHERE p.source_type = ? AND e.dimension = ?
				AND (1.0 - vec_distance_cosine(e.vector, ?)) = ?
		`
		ties, err := queryCandidates(ctx, db, tieQuery,
			queryVectorBlob, string(source), len(queryVector), queryVectorBlob, cutoff)
		if err != nil {
			return nil, err
		}
		candidates = mergeTieGroup(candidates, ties, cutoff)
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

func queryCandidates(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]candidate, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []candidate
	for rows.Next() {
		var score float64
		passage, err := scanPassage(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		candidates = append(candidates, candidate{passage: passage, score: score})
	}
	return candidates, rows.Err()
}

// mergeTieGroup replaces the rows of top that score exactly cutoff with the
// complete tie group.
func mergeTieGroup(top, ties []candidate, cutoff float64) []candidate {
	merged := make([]candidate, 0, len(top)+len(ties))
	for _, c := range top {
		if c.score > cutoff {
			merged = append(merged, c)
		}
	}
	return append(merged, ties...)
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorFallback(ctx context.Context, db *sql.DB, source types.SourceType, queryVector []float32, limit int, minSimilarity float64) ([]VectorResult, error) {
	query := `
		SELECT ` + passageColumns + `, e.vector
		FROM passages p
		INNER JOIN embeddings e ON p.id = e.passage_id
		WHERE p.source_type = ?
	`
	rows, err := db.QueryContext(ctx, query, string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]candidate, 0, 256)
	for rows.Next() {
		var vectorBlob []byte
		passage, err := scanPassage(rows, &vectorBlob)
		if err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, vector)
		if similarity < minSimilarity {
			continue
		}
		candidates = append(candidates, candidate{passage: passage, score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPassage scans passageColumns followed by any extra destinations.
func scanPassage(row rowScanner, extra ...interface{}) (*Passage, error) {
	var (
		p        Passage
		source   string
		metadata string
		hash     []byte
	)
	dest := []interface{}{
		&p.ID, &source, &p.ExternalID, &p.SourceRef, &p.Title, &p.Text,
		&metadata, &hash, &p.CreatedAt, &p.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p.SourceType = types.SourceType(source)
	copy(p.ContentHash[:], hash)

	meta, err := decodeMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("passage %d: %w", p.ID, err)
	}
	p.Metadata = meta
	return &p, nil
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// buildVectorResults creates VectorResult slice from sorted candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			Passage:         candidates[i].passage,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a passage with its similarity score
type candidate struct {
	passage *Passage
	score   float64
}

// sortCandidates sorts by score descending. Ties fall back to the stored ref and
// external id so equal scores never depend on row order.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if c := types.CompareRefs(a.passage.SourceRef, b.passage.SourceRef); c != 0 {
			return c < 0
		}
		return types.CompareRefs(a.passage.ExternalID, b.passage.ExternalID) < 0
	})
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
