// Package citation turns ranked chunks into display-ready references.
//
// FormatCitations is pure and tolerant of missing metadata: a chunk whose
// reference cannot be interpreted degrades to its corpus label with no link.
// RenderContext produces the numbered context block handed to an answer
// generator.
package citation
