// Package embedder turns query text into vector embeddings.
//
// Four providers implement the Embedder interface:
//
//   - openai: OpenAI /v1/embeddings over HTTP (text-embedding-3-small, 1536 dims)
//   - jina: Jina AI /v1/embeddings over HTTP (jina-embeddings-v3, 1024 dims)
//   - langchain: any OpenAI-compatible endpoint through langchaingo
//   - local: deterministic hashed bag-of-words vectors for offline use
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", CacheSize: 1000}, logger)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.Embed(ctx, "dealing with resentment")
//	fmt.Printf("Vector dimension: %d\n", len(result.Vector))
//
// # Error Handling
//
// Failures are classified against the sentinels in pkg/types:
//
//   - types.ErrInvalidInput: empty text
//   - types.ErrProviderUnavailable: network errors, HTTP 5xx and 429; retried
//     with exponential backoff (100ms, 200ms, 400ms, capped at 5s)
//   - types.ErrProviderRejected: other 4xx responses and dimension mismatches;
//     returned immediately
//
// Context cancellation stops retries and returns the context error.
//
// # Caching
//
// Embeddings are cached by SHA-256 of provider, model and text. Cache is an
// in-memory LRU; BoltCache adds a bbolt file behind it so vectors survive
// restarts. Cached vectors are copied on read.
//
// # Thread Safety
//
// All providers are safe for concurrent use.
package embedder
