package searcher

import (
	"testing"

	"github.com/dshills/litsearch/internal/storage"
	"github.com/dshills/litsearch/pkg/types"
)

func TestCanonicalPageRef(t *testing.T) {
	tests := map[string]string{
		"p. 0164":  "164",
		"page 86":  "86",
		"164":      "164",
		"":         "",
		"preface":  "preface",
		"p. 0":     "p. 0",
		"xv":       "xv",
		"pp. 83-4": "83",
	}
	for in, want := range tests {
		if got := CanonicalPageRef(in); got != want {
			t.Errorf("CanonicalPageRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalDateKey(t *testing.T) {
	tests := map[string]string{
		"1/12":        "01-12",
		"01-12":       "01-12",
		"1.12":        "01-12",
		"Jan 12":      "01-12",
		"January 12":  "01-12",
		"Sept. 3":     "09-03",
		"2024-01-12":  "01-12",
		"02-29":       "02-29",
		"02-30":       "02-30",
		"13/01":       "13/01",
		"Ja 12":       "Ja 12",
		"new year":    "new year",
		"December 31": "12-31",
	}
	for in, want := range tests {
		if got := CanonicalDateKey(in); got != want {
			t.Errorf("CanonicalDateKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalStepRef(t *testing.T) {
	tests := map[string]string{
		"Step 4":    "4",
		"step-12":   "12",
		"4":         "4",
		"13":        "13",
		"0":         "0",
		"Tradition": "Tradition",
	}
	for in, want := range tests {
		if got := CanonicalStepRef(in); got != want {
			t.Errorf("CanonicalStepRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalArticleRef(t *testing.T) {
	tests := map[string]string{
		"Letting Go of Fear":  "letting-go-of-fear",
		"already-a-slug":      "already-a-slug",
		"  Gratitude, Daily ": "gratitude-daily",
		"":                    "",
	}
	for in, want := range tests {
		if got := CanonicalArticleRef(in); got != want {
			t.Errorf("CanonicalArticleRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMappers(t *testing.T) {
	t.Run("reflection ref from metadata", func(t *testing.T) {
		chunk := mapReflection(&storage.Passage{
			SourceType: types.SourceReflection,
			ExternalID: "r1",
			Title:      "Acceptance",
			Metadata:   map[string]string{MetaDate: "March 5"},
		})
		if chunk.SourceRef != "03-05" {
			t.Errorf("SourceRef = %q, want 03-05", chunk.SourceRef)
		}
		if chunk.Title != "Acceptance" {
			t.Errorf("Title = %q", chunk.Title)
		}
	})

	t.Run("article slug from title", func(t *testing.T) {
		chunk := mapArticle(&storage.Passage{
			SourceType: types.SourceArticle,
			ExternalID: "42",
			Title:      "Finding a Sponsor",
		})
		if chunk.SourceRef != "finding-a-sponsor" {
			t.Errorf("SourceRef = %q", chunk.SourceRef)
		}
	})

	t.Run("step keeps unknown ref", func(t *testing.T) {
		chunk := mapStep(&storage.Passage{SourceType: types.SourceStep, ExternalID: "s", SourceRef: "Tradition Three"})
		if chunk.SourceRef != "Tradition Three" {
			t.Errorf("SourceRef = %q", chunk.SourceRef)
		}
	})

	t.Run("book page without ref", func(t *testing.T) {
		chunk := mapBookPage(&storage.Passage{SourceType: types.SourceBookPage, ExternalID: "bb"})
		if chunk.SourceRef != "" {
			t.Errorf("SourceRef = %q", chunk.SourceRef)
		}
	})
}
