package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/litsearch/pkg/types"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// embeddingServer answers /embeddings with a vector of dim values, after
// failing the first failures calls with status.
func embeddingServer(t *testing.T, dim, failures, status int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if int(n) <= failures {
			http.Error(w, "try later", status)
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Input, 1)

		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = 0.01 * float32(i%10)
		}
		resp := map[string]interface{}{
			"model": req.Model,
			"data": []map[string]interface{}{
				{"index": 0, "embedding": vec},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful embedding", func(t *testing.T) {
		var calls int32
		server := embeddingServer(t, OpenAIDimension, 0, 0, &calls)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", NewCache(10), WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
		require.NoError(t, err)
		defer func() { _ = provider.Close() }()

		emb, err := provider.Embed(ctx, "dealing with resentment")
		require.NoError(t, err)
		assert.Len(t, emb.Vector, OpenAIDimension)
		assert.Equal(t, ProviderOpenAI, emb.Provider)
		assert.Equal(t, DefaultOpenAIModel, emb.Model)
		assert.NotEmpty(t, emb.Hash)
	})

	t.Run("metadata", func(t *testing.T) {
		provider, err := NewOpenAIProvider("test-key", nil)
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, provider.Provider())
		assert.Equal(t, OpenAIDimension, provider.Dimension())
		assert.Equal(t, DefaultOpenAIModel, provider.Model())
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv(EnvOpenAIAPIKey, "")
		_, err := NewOpenAIProvider("", nil)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestJinaProvider(t *testing.T) {
	var calls int32
	server := embeddingServer(t, JinaDimension, 0, 0, &calls)
	defer server.Close()

	provider, err := NewJinaProvider("test-key", nil, WithBaseURL(server.URL+"/"))
	require.NoError(t, err)

	emb, err := provider.Embed(context.Background(), "step four inventory")
	require.NoError(t, err)
	assert.Equal(t, JinaDimension, emb.Dimension)
	assert.Equal(t, ProviderJina, provider.Provider())
	assert.Equal(t, DefaultJinaModel, provider.Model())
}

func TestProviderFailureClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failures are retried", func(t *testing.T) {
		var calls int32
		server := embeddingServer(t, 8, 2, http.StatusServiceUnavailable, &calls)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil,
			WithBaseURL(server.URL), WithDimension(8), WithRetryConfig(fastRetry()))
		require.NoError(t, err)

		emb, err := provider.Embed(ctx, "hope")
		require.NoError(t, err)
		assert.Len(t, emb.Vector, 8)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("rate limit exhausts retries as unavailable", func(t *testing.T) {
		var calls int32
		server := embeddingServer(t, 8, 100, http.StatusTooManyRequests, &calls)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil,
			WithBaseURL(server.URL), WithDimension(8), WithRetryConfig(fastRetry()))
		require.NoError(t, err)

		_, err = provider.Embed(ctx, "hope")
		assert.ErrorIs(t, err, types.ErrProviderUnavailable)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("client errors are rejected without retry", func(t *testing.T) {
		var calls int32
		server := embeddingServer(t, 8, 100, http.StatusUnauthorized, &calls)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil,
			WithBaseURL(server.URL), WithDimension(8), WithRetryConfig(fastRetry()))
		require.NoError(t, err)

		_, err = provider.Embed(ctx, "hope")
		assert.ErrorIs(t, err, types.ErrProviderRejected)
		assert.False(t, errors.Is(err, types.ErrProviderUnavailable))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		var calls int32
		server := embeddingServer(t, 16, 0, 0, &calls)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil, WithBaseURL(server.URL), WithDimension(8))
		require.NoError(t, err)

		_, err = provider.Embed(ctx, "hope")
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.ErrorIs(t, err, types.ErrProviderRejected)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		provider, err := NewOpenAIProvider("test-key", nil, WithBaseURL(url), WithRetryConfig(fastRetry()))
		require.NoError(t, err)

		_, err = provider.Embed(ctx, "hope")
		assert.ErrorIs(t, err, types.ErrProviderUnavailable)
	})

	t.Run("malformed response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data": []}`))
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil, WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
		require.NoError(t, err)

		_, err = provider.Embed(ctx, "hope")
		assert.ErrorIs(t, err, types.ErrProviderUnavailable)
	})
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	transient := fmt.Errorf("%w: flaky", types.ErrProviderUnavailable)

	t.Run("succeeds after transient error", func(t *testing.T) {
		callCount := 0
		result, err := retryWithBackoff(ctx, fastRetry(), func() (string, error) {
			callCount++
			if callCount < 2 {
				return "", transient
			}
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 2, callCount)
	})

	t.Run("exponential backoff timing", func(t *testing.T) {
		config := RetryConfig{
			MaxRetries: 3,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   100 * time.Millisecond,
			Multiplier: 2.0,
		}

		callCount := 0
		start := time.Now()
		_, err := retryWithBackoff(ctx, config, func() (int, error) {
			callCount++
			return 0, transient
		})

		assert.ErrorIs(t, err, types.ErrProviderUnavailable)
		assert.Equal(t, 3, callCount)
		// 10ms + 20ms minimum
		assert.GreaterOrEqual(t, time.Since(start).Milliseconds(), int64(30))
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		callCount := 0
		_, err := retryWithBackoff(ctx, fastRetry(), func() (bool, error) {
			callCount++
			return false, fmt.Errorf("%w: bad key", types.ErrProviderRejected)
		})
		assert.ErrorIs(t, err, types.ErrProviderRejected)
		assert.Equal(t, 1, callCount)
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		config := RetryConfig{MaxRetries: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

		callCount := 0
		_, err := retryWithBackoff(cctx, config, func() (int, error) {
			callCount++
			if callCount == 1 {
				cancel()
			}
			return 0, transient
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, callCount)
	})
}

func TestProviderCaching(t *testing.T) {
	var calls int32
	server := embeddingServer(t, 8, 0, 0, &calls)
	defer server.Close()

	cache := NewCache(10)
	provider, err := NewOpenAIProvider("test-key", cache, WithBaseURL(server.URL), WithDimension(8))
	require.NoError(t, err)

	first, err := provider.Embed(context.Background(), "acceptance")
	require.NoError(t, err)
	second, err := provider.Embed(context.Background(), "  acceptance  ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call should be served from cache")
	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, 1, cache.Size())
}

func TestContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	provider, err := NewOpenAIProvider("test-key", nil, WithBaseURL(server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = provider.Embed(ctx, "hope")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeLangChain struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeLangChain) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.EmbedQuery(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeLangChain) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

func TestLangChainProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("delegates to langchain embedder", func(t *testing.T) {
		impl := &fakeLangChain{vector: []float32{0.1, 0.2, 0.3}}
		provider, err := WrapLangChain(impl, NewCache(4), WithModel("nomic-embed-text"))
		require.NoError(t, err)

		emb, err := provider.Embed(ctx, "serenity")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
		assert.Equal(t, ProviderLangChain, emb.Provider)
		assert.Equal(t, "nomic-embed-text", emb.Model)

		_, err = provider.Embed(ctx, "serenity")
		require.NoError(t, err)
		assert.Equal(t, 1, impl.calls)
	})

	t.Run("classifies failures", func(t *testing.T) {
		impl := &fakeLangChain{err: errors.New("API returned unexpected status code: 401")}
		provider, err := WrapLangChain(impl, nil, WithRetryConfig(fastRetry()))
		require.NoError(t, err)

		_, err = provider.Embed(ctx, "serenity")
		assert.ErrorIs(t, err, types.ErrProviderRejected)
		assert.Equal(t, 1, impl.calls)

		impl = &fakeLangChain{err: errors.New("API returned unexpected status code: 503")}
		provider, err = WrapLangChain(impl, nil, WithRetryConfig(fastRetry()))
		require.NoError(t, err)

		_, err = provider.Embed(ctx, "serenity")
		assert.ErrorIs(t, err, types.ErrProviderUnavailable)
		assert.Equal(t, 3, impl.calls)
	})

	t.Run("nil implementation", func(t *testing.T) {
		_, err := WrapLangChain(nil, nil)
		assert.Error(t, err)
	})
}
