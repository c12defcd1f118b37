package searcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/dshills/litsearch/internal/storage"
	"github.com/dshills/litsearch/pkg/types"
)

// Metadata keys read by the corpus adapters
const (
	MetaPage    = "page"
	MetaChapter = "chapter"
	MetaDate    = "date"
	MetaStep    = "step"
	MetaSlug    = "slug"
)

// NewBookPageSearcher searches Big Book pages. Refs become bare page numbers.
func NewBookPageSearcher(store storage.Storage, opts ...Option) *IndexSearcher {
	return NewIndexSearcher(types.SourceBookPage, store, mapBookPage, opts...)
}

// NewReflectionSearcher searches daily reflections. Refs become MM-DD date keys.
func NewReflectionSearcher(store storage.Storage, opts ...Option) *IndexSearcher {
	return NewIndexSearcher(types.SourceReflection, store, mapReflection, opts...)
}

// NewStepSearcher searches step descriptions. Refs become step numbers 1..12.
func NewStepSearcher(store storage.Storage, opts ...Option) *IndexSearcher {
	return NewIndexSearcher(types.SourceStep, store, mapStep, opts...)
}

// NewArticleSearcher searches blog articles. Refs become URL slugs.
func NewArticleSearcher(store storage.Storage, opts ...Option) *IndexSearcher {
	return NewIndexSearcher(types.SourceArticle, store, mapArticle, opts...)
}

// New returns the searcher for source.
func New(source types.SourceType, store storage.Storage, opts ...Option) (*IndexSearcher, error) {
	switch source {
	case types.SourceBookPage:
		return NewBookPageSearcher(store, opts...), nil
	case types.SourceReflection:
		return NewReflectionSearcher(store, opts...), nil
	case types.SourceStep:
		return NewStepSearcher(store, opts...), nil
	case types.SourceArticle:
		return NewArticleSearcher(store, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", types.ErrInvalidInput, source)
	}
}

func refOrMeta(p *storage.Passage, key string) string {
	if ref := strings.TrimSpace(p.SourceRef); ref != "" {
		return ref
	}
	return strings.TrimSpace(p.Metadata[key])
}

func mapBookPage(p *storage.Passage) types.ContentChunk {
	chunk := p.ToChunk()
	chunk.SourceRef = CanonicalPageRef(refOrMeta(p, MetaPage))
	if chunk.Title == "" {
		chunk.Title = chunk.Meta(MetaChapter)
	}
	return chunk
}

func mapReflection(p *storage.Passage) types.ContentChunk {
	chunk := p.ToChunk()
	chunk.SourceRef = CanonicalDateKey(refOrMeta(p, MetaDate))
	return chunk
}

func mapStep(p *storage.Passage) types.ContentChunk {
	chunk := p.ToChunk()
	chunk.SourceRef = CanonicalStepRef(refOrMeta(p, MetaStep))
	return chunk
}

func mapArticle(p *storage.Passage) types.ContentChunk {
	chunk := p.ToChunk()
	ref := refOrMeta(p, MetaSlug)
	if ref == "" {
		ref = chunk.Title
	}
	chunk.SourceRef = CanonicalArticleRef(ref)
	return chunk
}

var (
	digitsPattern = regexp.MustCompile(`\d+`)
	monthDayNum   = regexp.MustCompile(`^(\d{1,2})\s*[-/.]\s*(\d{1,2})$`)
	isoDate       = regexp.MustCompile(`^\d{4}-(\d{1,2})-(\d{1,2})`)
	monthDayName  = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d{1,2})`)
)

// CanonicalPageRef extracts the page number from refs such as "p. 0164", "page 164"
// or "164". Refs without a number are returned unchanged.
func CanonicalPageRef(ref string) string {
	m := digitsPattern.FindString(ref)
	if m == "" {
		return ref
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return ref
	}
	return strconv.Itoa(n)
}

// CanonicalDateKey converts "1/12", "01-12", "Jan 12", "January 12" or
// "2024-01-12" to "01-12". Unparseable refs are returned unchanged.
func CanonicalDateKey(ref string) string {
	ref = strings.TrimSpace(ref)
	var month, day int

	if m := isoDate.FindStringSubmatch(ref); m != nil {
		month, _ = strconv.Atoi(m[1])
		day, _ = strconv.Atoi(m[2])
	} else if m := monthDayNum.FindStringSubmatch(ref); m != nil {
		month, _ = strconv.Atoi(m[1])
		day, _ = strconv.Atoi(m[2])
	} else if m := monthDayName.FindStringSubmatch(ref); m != nil {
		month = parseMonth(m[1])
		day, _ = strconv.Atoi(m[2])
	}

	if !validMonthDay(month, day) {
		return ref
	}
	return fmt.Sprintf("%02d-%02d", month, day)
}

func parseMonth(name string) int {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0
	}
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if strings.HasPrefix(full, name) {
			return int(m)
		}
	}
	return 0
}

func validMonthDay(month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	// Leap year so that 02-29 is accepted
	return day <= time.Date(2024, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CanonicalStepRef extracts a step number 1..12 from refs such as "Step 4",
// "step-4" or "4". Anything else is returned unchanged.
func CanonicalStepRef(ref string) string {
	m := digitsPattern.FindString(ref)
	if m == "" {
		return ref
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 || n > 12 {
		return ref
	}
	return strconv.Itoa(n)
}

// CanonicalArticleRef slugifies an article ref or title.
func CanonicalArticleRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if s := slug.Make(ref); s != "" {
		return s
	}
	return ref
}
