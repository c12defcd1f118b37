// Package storage holds the per-corpus vector indexes searched at query time.
//
// Two backends implement Storage:
//   - SQLiteStorage: passages and embeddings tables, schema managed by semver migrations
//   - BadgerStorage: one JSON record per passage under passage/<source>/<external id>
//
// # Database Schema
//
// Tables (SQLite):
//   - passages: one row per passage, UNIQUE(source_type, external_id); metadata is a JSON object
//   - embeddings: little-endian float32 vector per passage
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	store, err := storage.Open(storage.BackendSQLite, "~/.litsearch/index.db", logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	results, err := store.SearchVector(ctx, types.SourceBookPage, vector, 20, 0.6)
//	for _, r := range results {
//	    fmt.Println(r.Passage.SourceRef, r.SimilarityScore)
//	}
//
// # Vector Operations
//
// Similarity is cosine. Builds tagged sqlite_vec compute it in SQL through
// vec_distance_cosine; the default pure Go build scans the source's rows and
// computes it in Go. Rows whose dimension differs from the query are skipped.
//
// Results with equal similarity are ordered by source ref, then external id.
//
// # Build Modes
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec" ./...   // mattn/go-sqlite3
//	CGO_ENABLED=0 go build -tags "purego" ./...       // modernc.org/sqlite
//
// The search path never writes. UpsertPassage and UpsertEmbedding exist for
// fixtures and tests; index construction happens elsewhere.
package storage
