package citation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/litsearch/pkg/types"
)

const (
	// SnippetRunes bounds the snippet length before the ellipsis.
	SnippetRunes = 250

	// FallbackLabel is used for chunks from an unknown corpus.
	FallbackLabel = "Literature excerpt"

	ellipsis = "..."
)

// FormatCitations builds one citation per result, in order. It never fails and
// returns an empty, non-nil slice for empty input.
func FormatCitations(results []types.ScoredChunk) []types.Citation {
	out := make([]types.Citation, 0, len(results))
	for _, r := range results {
		out = append(out, Format(r))
	}
	return out
}

// Format builds the citation for a single result.
func Format(r types.ScoredChunk) types.Citation {
	c := types.Citation{
		Source:          r.SourceType,
		Snippet:         Snippet(r.Text, SnippetRunes),
		Score:           roundScore(r.NormalizedScore),
		ScorePercentage: Percentage(r.NormalizedScore),
	}

	ref := strings.TrimSpace(r.SourceRef)
	title := strings.TrimSpace(r.Title)

	switch r.SourceType {
	case types.SourceBookPage:
		c.Label = r.SourceType.Label()
		c.Reference = title
		if page, ok := positiveInt(ref); ok {
			c.Label = fmt.Sprintf("Big Book, p.%d", page)
			c.Link = fmt.Sprintf("/big-book/page/%d", page)
		}
	case types.SourceReflection:
		c.Label = r.SourceType.Label()
		if month, day, ok := parseDateKey(ref); ok {
			c.Label = fmt.Sprintf("Daily Reflection, %s %d", time.Month(month), day)
			c.Link = fmt.Sprintf("/%02d-%02d", month, day)
		}
		if title != "" {
			c.Label += " - " + title
		}
	case types.SourceStep:
		c.Label = r.SourceType.Label()
		if step, ok := positiveInt(ref); ok && step <= 12 {
			c.Label = fmt.Sprintf("Step %d", step)
			c.Link = fmt.Sprintf("/steps/%d", step)
		}
		if title != "" {
			c.Label += ": " + title
		}
	case types.SourceArticle:
		c.Label = title
		if c.Label == "" {
			c.Label = r.SourceType.Label()
		}
		if ref != "" {
			c.Link = "/blog/" + ref
		}
	default:
		c.Label = FallbackLabel
		c.Reference = title
	}
	return c
}

// Snippet collapses whitespace and truncates text to at most n runes, cutting
// at the last word boundary and appending an ellipsis when anything was dropped.
func Snippet(text string, n int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if n <= 0 || utf8.RuneCountInString(collapsed) <= n {
		return collapsed
	}

	runes := []rune(collapsed)
	cut := n
	for i := n; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	// A single word longer than n is cut mid-word.
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + ellipsis
}

// Percentage renders a normalized score as a whole percentage, e.g. "87%".
func Percentage(score float64) string {
	if math.IsNaN(score) {
		score = 0
	}
	return strconv.Itoa(int(math.Round(score*100))) + "%"
}

func roundScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Round(score*10000) / 10000
}

func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseDateKey accepts the canonical MM-DD reflection key.
func parseDateKey(key string) (int, int, bool) {
	m, d, found := strings.Cut(key, "-")
	if !found || len(m) != 2 || len(d) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	day, err := strconv.Atoi(d)
	if err != nil || day < 1 {
		return 0, 0, false
	}
	// 2024 is a leap year so Feb 29 is accepted.
	if day > time.Date(2024, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day() {
		return 0, 0, false
	}
	return month, day, true
}

// RenderContext formats results as numbered context blocks for an answer
// generator. citations and results are parallel slices; extra entries in
// either are ignored.
func RenderContext(citations []types.Citation, results []types.ScoredChunk) string {
	n := min(len(citations), len(results))
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString("\n\n")
		}
		text := strings.Join(strings.Fields(results[i].Text), " ")
		fmt.Fprintf(&b, "[%d] From %s:\n\"%s\"", i+1, citations[i].Label, text)
	}
	return b.String()
}
