package types

import (
	"fmt"
	"strings"
)

// SourceType identifies one independently indexed corpus.
type SourceType string

const (
	SourceBookPage   SourceType = "book-page"
	SourceReflection SourceType = "reflection"
	SourceStep       SourceType = "step"
	SourceArticle    SourceType = "article"
)

var canonicalSources = []SourceType{SourceBookPage, SourceReflection, SourceStep, SourceArticle}

// AllSourceTypes returns every known source in canonical order.
func AllSourceTypes() []SourceType {
	out := make([]SourceType, len(canonicalSources))
	copy(out, canonicalSources)
	return out
}

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	return s.rank() >= 0
}

// Label returns the human-readable corpus name.
func (s SourceType) Label() string {
	switch s {
	case SourceBookPage:
		return "Big Book"
	case SourceReflection:
		return "Daily Reflection"
	case SourceStep:
		return "Twelve Steps"
	case SourceArticle:
		return "Article"
	default:
		return ""
	}
}

// rank is the canonical position of s, or -1 for unknown sources.
func (s SourceType) rank() int {
	for i, c := range canonicalSources {
		if c == s {
			return i
		}
	}
	return -1
}

// ParseSourceType accepts canonical names and the aliases used in configuration files.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "book-page", "book_page", "bookpage", "bigbook", "big-book", "book":
		return SourceBookPage, nil
	case "reflection", "reflections":
		return SourceReflection, nil
	case "step", "steps":
		return SourceStep, nil
	case "article", "articles", "blog":
		return SourceArticle, nil
	default:
		return "", fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, s)
	}
}

// ContentChunk is one retrievable unit of text owned by a corpus.
type ContentChunk struct {
	ID         string     // Unique within its source
	SourceType SourceType
	SourceRef  string // Page number, MM-DD date key, step number or slug
	Text       string
	Title      string            // Optional
	Metadata   map[string]string // Optional corpus-specific fields (chapter, quote, author)
}

// ChunkKey uniquely identifies a chunk across all sources.
type ChunkKey struct {
	Source SourceType
	ID     string
}

func (k ChunkKey) String() string {
	return string(k.Source) + ":" + k.ID
}

// ScoredChunk is a chunk matched by one query.
type ScoredChunk struct {
	ContentChunk
	RawScore        float64 // Native similarity on the source's scale
	NormalizedScore float64 // Comparable across sources, in [0,1]
}

// Key returns the (SourceType, ID) identity of the chunk.
func (c ScoredChunk) Key() ChunkKey {
	return ChunkKey{Source: c.SourceType, ID: c.ID}
}

// Meta returns a metadata value or "" when absent.
func (c ContentChunk) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}
