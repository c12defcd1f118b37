package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/litsearch/pkg/types"
)

// Storage defines the interface for persisting and querying indexed literature.
// The search path only reads; the write operations exist for fixtures and tests.
type Storage interface {
	// Passage operations
	UpsertPassage(ctx context.Context, passage *Passage) error
	GetPassage(ctx context.Context, source types.SourceType, externalID string) (*Passage, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error

	// SearchVector returns the passages of one source whose cosine similarity to
	// vector is at least minSimilarity, best first, at most limit.
	SearchVector(ctx context.Context, source types.SourceType, vector []float32, limit int, minSimilarity float64) ([]VectorResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*IndexStatus, error)

	Close() error
}

// Passage is one indexed unit of a corpus
type Passage struct {
	ID          int64
	SourceType  types.SourceType
	ExternalID  string // Identifier assigned by the corpus, unique per source
	SourceRef   string // Raw locator as stored (page, date, step, slug)
	Title       string
	Text        string
	Metadata    map[string]string
	ContentHash [32]byte
	Embedded    bool // Set by GetPassage when an embedding row exists
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Embedding represents the vector of a passage
type Embedding struct {
	ID        int64
	PassageID int64
	Vector    []byte // Serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	Passage         *Passage
	SimilarityScore float64
}

// IndexStatus contains statistics about the index
type IndexStatus struct {
	Backend       string
	SchemaVersion string
	Sources       []SourceStatus
	IndexSizeMB   float64
	Health        HealthStatus
}

// SourceStatus holds per-corpus counts
type SourceStatus struct {
	Source          types.SourceType
	PassagesCount   int
	EmbeddingsCount int
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
}

// Totals sums passage and embedding counts across sources.
func (s *IndexStatus) Totals() (passages, embeddings int) {
	for _, src := range s.Sources {
		passages += src.PassagesCount
		embeddings += src.EmbeddingsCount
	}
	return passages, embeddings
}

// ToChunk converts a stored passage to the domain chunk.
func (p *Passage) ToChunk() types.ContentChunk {
	var meta map[string]string
	if len(p.Metadata) > 0 {
		meta = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			meta[k] = v
		}
	}
	return types.ContentChunk{
		ID:         p.ExternalID,
		SourceType: p.SourceType,
		SourceRef:  p.SourceRef,
		Text:       p.Text,
		Title:      p.Title,
		Metadata:   meta,
	}
}

// HashContent computes the content hash stored with a passage.
func HashContent(text string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(text)))
}

// NewEmbedding serializes vector into an Embedding row for passageID.
func NewEmbedding(passageID int64, vector []float32, provider, model string) *Embedding {
	return &Embedding{
		PassageID: passageID,
		Vector:    serializeVector(vector),
		Dimension: len(vector),
		Provider:  provider,
		Model:     model,
	}
}

// Index backends
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Open opens the index at path with the named backend. For badger an empty path
// opens an in-memory store; for sqlite use ":memory:".
func Open(backend, path string, logger *log.Logger) (Storage, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStorage(path)
	case BackendBadger:
		return NewBadgerStorage(path, logger)
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}
