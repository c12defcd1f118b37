package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/dshills/litsearch/pkg/types"
)

// Provider configuration
const (
	ProviderJina      = "jina"
	ProviderOpenAI    = "openai"
	ProviderLangChain = "langchain"
	ProviderLocal     = "local"

	// Default endpoints
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// API key environment fallbacks
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"

	DefaultRequestTimeout = 30 * time.Second
)

// providerSettings is shared by every provider constructor.
type providerSettings struct {
	baseURL    string
	model      string
	dimension  int
	maxInput   int
	retry      RetryConfig
	httpClient *http.Client
	logger     *log.Logger
}

// ProviderOption customizes a provider.
type ProviderOption func(*providerSettings)

// WithBaseURL overrides the API endpoint root (e.g. an httptest server).
func WithBaseURL(url string) ProviderOption {
	return func(s *providerSettings) {
		if url != "" {
			s.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel overrides the default model.
func WithModel(model string) ProviderOption {
	return func(s *providerSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithDimension sets the expected vector dimension. Zero keeps the provider default.
func WithDimension(dim int) ProviderOption {
	return func(s *providerSettings) {
		if dim > 0 {
			s.dimension = dim
		}
	}
}

// WithMaxInputRunes bounds the text length sent to the provider.
func WithMaxInputRunes(n int) ProviderOption {
	return func(s *providerSettings) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg RetryConfig) ProviderOption {
	return func(s *providerSettings) {
		s.retry = cfg
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(s *providerSettings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithLogger sets the provider logger. Default is log.Default().
func WithLogger(logger *log.Logger) ProviderOption {
	return func(s *providerSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func newSettings(baseURL, model string, dimension int, opts []ProviderOption) providerSettings {
	s := providerSettings{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		maxInput:  DefaultMaxInputRunes,
		retry:     DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// HTTPProvider implements Embedder against an OpenAI-style /embeddings endpoint.
// OpenAI and Jina share the wire format.
type HTTPProvider struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	maxInput   int
	retry      RetryConfig
	httpClient *http.Client
	cache      VectorCache
	logger     *log.Logger
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(apiKey string, cache VectorCache, opts ...ProviderOption) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderOpenAI, apiKey, EnvOpenAIAPIKey, cache,
		newSettings(DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, opts))
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(apiKey string, cache VectorCache, opts ...ProviderOption) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderJina, apiKey, EnvJinaAPIKey, cache,
		newSettings(DefaultJinaBaseURL, DefaultJinaModel, JinaDimension, opts))
}

func newHTTPProvider(name, apiKey, envKey string, cache VectorCache, s providerSettings) (*HTTPProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(envKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, envKey)
	}

	return &HTTPProvider{
		name:       name,
		apiKey:     apiKey,
		baseURL:    s.baseURL,
		model:      s.model,
		dimension:  s.dimension,
		maxInput:   s.maxInput,
		retry:      s.retry,
		httpClient: s.httpClient,
		cache:      cache,
		logger:     s.logger.With("provider", name),
	}, nil
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	text, err := PrepareText(text, p.maxInput)
	if err != nil {
		return nil, err
	}

	hash := ComputeHash(p.name, p.model, text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}

	attempt := 0
	vector, err := retryWithBackoff(ctx, p.retry, func() ([]float32, error) {
		attempt++
		v, err := p.callAPI(ctx, text)
		if err != nil {
			p.logger.Debug("embedding request failed", "attempt", attempt, "err", err)
		}
		return v, err
	})
	if err != nil {
		return nil, err
	}

	if p.dimension > 0 && len(vector) != p.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), p.dimension)
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  p.name,
		Model:     p.model,
		Hash:      hash,
	}
	if p.cache != nil {
		p.cache.Set(hash, emb)
	}
	return emb, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input": []string{text},
		"model": p.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", types.ErrProviderRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", types.ErrProviderRejected, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: api call: %v", types.ErrProviderUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", types.ErrProviderUnavailable, err)
	}
	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", types.ErrProviderUnavailable)
	}

	return apiResp.Data[0].Embedding, nil
}

// classifyStatus maps an HTTP failure onto the provider error taxonomy.
func classifyStatus(code int, body string) error {
	if code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
		return fmt.Errorf("%w: api error %d: %s", types.ErrProviderUnavailable, code, body)
	}
	return fmt.Errorf("%w: api error %d: %s", types.ErrProviderRejected, code, body)
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return closeCache(p.cache)
}

// LocalProvider produces deterministic offline embeddings: a hashed bag of words
// projected onto LocalDimension and scaled to unit length. Texts sharing words
// score higher cosine similarity, which is enough for fixtures and offline debugging.
type LocalProvider struct {
	model     string
	dimension int
	maxInput  int
	cache     VectorCache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache VectorCache, opts ...ProviderOption) (*LocalProvider, error) {
	s := newSettings("", "local-hashed-bow", LocalDimension, opts)
	return &LocalProvider{
		model:     s.model,
		dimension: s.dimension,
		maxInput:  s.maxInput,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	text, err := PrepareText(text, l.maxInput)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(ProviderLocal, l.model, text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    HashedVector(text, l.dimension),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

// HashedVector builds the local provider's vector for text.
func HashedVector(text string, dimension int) []float32 {
	vector := make([]float32, dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		idx := binary.LittleEndian.Uint32(sum[:4]) % uint32(dimension)
		if sum[4]&1 == 0 {
			vector[idx]++
		} else {
			vector[idx]--
		}
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return closeCache(l.cache)
}

func closeCache(c VectorCache) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
