package ranking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/dshills/litsearch/pkg/types"
)

// DedupOptions selects which keys mark two results as duplicates. (SourceType, ID)
// is always a key.
type DedupOptions struct {
	// ByRef treats results of the same source with the same SourceRef as duplicates.
	ByRef map[types.SourceType]bool
	// ByText treats results with the same normalized text as duplicates across sources.
	ByText bool
}

// Deduplicate keeps the first occurrence of each key in results, which must already
// be in rank order. Only kept results register keys, so a dropped result never
// causes a later one to be dropped.
func Deduplicate(results []types.ScoredChunk, opts DedupOptions) []types.ScoredChunk {
	out := make([]types.ScoredChunk, 0, len(results))
	seenIDs := make(map[types.ChunkKey]struct{}, len(results))
	seenRefs := make(map[types.ChunkKey]struct{})
	seenText := make(map[string]struct{})

	for _, r := range results {
		idKey := r.Key()
		if _, dup := seenIDs[idKey]; dup {
			continue
		}

		var refKey types.ChunkKey
		useRef := opts.ByRef[r.SourceType] && r.SourceRef != ""
		if useRef {
			refKey = types.ChunkKey{Source: r.SourceType, ID: r.SourceRef}
			if _, dup := seenRefs[refKey]; dup {
				continue
			}
		}

		var fp string
		if opts.ByText {
			fp = TextFingerprint(r.Text)
			if fp != "" {
				if _, dup := seenText[fp]; dup {
					continue
				}
			}
		}

		out = append(out, r)
		seenIDs[idKey] = struct{}{}
		if useRef {
			seenRefs[refKey] = struct{}{}
		}
		if fp != "" {
			seenText[fp] = struct{}{}
		}
	}
	return out
}

// TextFingerprint hashes text after lowercasing, dropping punctuation and
// collapsing whitespace. Empty text has no fingerprint.
func TextFingerprint(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	if b.Len() == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
