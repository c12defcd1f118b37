// Package types defines the shared domain model of the literature search engine:
// content chunks and their scores, search queries, citations, and the error
// taxonomy every layer reports through.
//
// Chunks are owned by their corpus and are read-only here. ScoredChunk values
// live for the duration of a single query. Citations are display-only
// projections and are never persisted.
package types
