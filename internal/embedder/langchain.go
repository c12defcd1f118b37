package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/dshills/litsearch/pkg/types"
)

// LangChainProvider adapts a langchaingo embedder to the Embedder interface.
// It targets any OpenAI-compatible endpoint (OpenAI, LM Studio, Ollama's /v1).
type LangChainProvider struct {
	model     string
	dimension int
	maxInput  int
	retry     RetryConfig
	impl      embeddings.Embedder
	cache     VectorCache
	logger    *log.Logger
}

// NewLangChainProvider builds a langchaingo OpenAI-compatible embedder.
// An empty apiKey is replaced by "none" for local servers that ignore auth.
func NewLangChainProvider(apiKey string, cache VectorCache, opts ...ProviderOption) (*LangChainProvider, error) {
	s := newSettings(DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, opts)
	if apiKey == "" {
		apiKey = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(s.baseURL),
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(s.model),
		openai.WithHTTPClient(s.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize langchain openai client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("construct langchain embedder: %w", err)
	}
	return wrapLangChain(impl, cache, s), nil
}

// WrapLangChain adapts an existing langchaingo embedder.
func WrapLangChain(impl embeddings.Embedder, cache VectorCache, opts ...ProviderOption) (*LangChainProvider, error) {
	if impl == nil {
		return nil, errors.New("langchain embedder implementation is required")
	}
	s := newSettings("", DefaultOpenAIModel, 0, opts)
	return wrapLangChain(impl, cache, s), nil
}

func wrapLangChain(impl embeddings.Embedder, cache VectorCache, s providerSettings) *LangChainProvider {
	return &LangChainProvider{
		model:     s.model,
		dimension: s.dimension,
		maxInput:  s.maxInput,
		retry:     s.retry,
		impl:      impl,
		cache:     cache,
		logger:    s.logger.With("provider", ProviderLangChain),
	}
}

func (l *LangChainProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	text, err := PrepareText(text, l.maxInput)
	if err != nil {
		return nil, err
	}

	hash := ComputeHash(ProviderLangChain, l.model, text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	vector, err := retryWithBackoff(ctx, l.retry, func() ([]float32, error) {
		v, err := l.impl.EmbedQuery(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Debug("embedding request failed", "err", err)
			return nil, categorizeError(err)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: no embeddings returned", types.ErrProviderUnavailable)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}

	if l.dimension > 0 && len(vector) != l.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), l.dimension)
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  ProviderLangChain,
		Model:     l.model,
		Hash:      hash,
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

// categorizeError maps langchaingo's string errors onto the provider taxonomy.
// langchaingo does not expose typed HTTP errors, so this matches on text.
func categorizeError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"),
		strings.Contains(lower, "timeout"), strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "status code: 5"), strings.Contains(lower, "eof"):
		return fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "invalid"), strings.Contains(lower, "bad request"),
		strings.Contains(lower, "status code: 4"):
		return fmt.Errorf("%w: %v", types.ErrProviderRejected, err)
	default:
		return fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	}
}

func (l *LangChainProvider) Dimension() int {
	return l.dimension
}

func (l *LangChainProvider) Provider() string {
	return ProviderLangChain
}

func (l *LangChainProvider) Model() string {
	return l.model
}

func (l *LangChainProvider) Close() error {
	return closeCache(l.cache)
}
