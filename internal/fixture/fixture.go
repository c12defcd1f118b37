package fixture

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dshills/litsearch/internal/embedder"
	"github.com/dshills/litsearch/internal/storage"
	"github.com/dshills/litsearch/pkg/types"
)

// ErrLoadInProgress is returned when Load is called while another load runs.
var ErrLoadInProgress = errors.New("fixture load already in progress")

// Record is one passage as written in a fixture file.
type Record struct {
	Source   string            `yaml:"source"`
	ID       string            `yaml:"id"`
	Ref      string            `yaml:"ref"`
	Title    string            `yaml:"title"`
	Text     string            `yaml:"text"`
	Metadata map[string]string `yaml:"metadata"`
}

type document struct {
	Passages []Record `yaml:"passages"`
}

// ReadFile parses a fixture file.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML. JSON is accepted as a YAML subset.
func Parse(data []byte) ([]Record, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return doc.Passages, nil
}

// PassageEmbedder embeds passage text. Every embedder.Embedder satisfies it.
type PassageEmbedder interface {
	Embed(ctx context.Context, text string) (*embedder.Embedding, error)
	Provider() string
	Model() string
}

// Config controls a load
type Config struct {
	Workers int  // Concurrent embed/store workers (default: runtime.NumCPU())
	Force   bool // Re-embed passages whose text is unchanged
}

// Statistics summarizes a load
type Statistics struct {
	Loaded        int
	Skipped       int
	Failed        int
	Duration      time.Duration
	ErrorMessages []string
}

// Loader writes fixture passages and their embeddings into an index.
type Loader struct {
	store  storage.Storage
	emb    PassageEmbedder
	lock   LoadLock
	logger *log.Logger
}

// New creates a Loader. A nil logger uses log.Default().
func New(store storage.Storage, emb PassageEmbedder, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{store: store, emb: emb, logger: logger}
}

// Load stores every record. Individual failures are counted and reported in
// Statistics; only cancellation aborts the load.
func (l *Loader) Load(ctx context.Context, records []Record, config *Config) (*Statistics, error) {
	if !l.lock.TryAcquire() {
		return nil, ErrLoadInProgress
	}
	defer l.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}
	var (
		loaded, skipped, failed int32
		mu                      sync.Mutex
	)

	semaphore := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range records {
		select {
		case semaphore <- struct{}{}:
		case <-gctx.Done():
			_ = g.Wait()
			return nil, gctx.Err()
		}
		g.Go(func() error {
			defer func() { <-semaphore }()

			changed, err := l.loadRecord(gctx, rec, config.Force)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s/%s: %v", rec.Source, rec.ID, err))
				mu.Unlock()
				l.logger.Warn("fixture passage failed", "source", rec.Source, "id", rec.ID, "error", err)
			case changed:
				atomic.AddInt32(&loaded, 1)
			default:
				atomic.AddInt32(&skipped, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Loaded = int(loaded)
	stats.Skipped = int(skipped)
	stats.Failed = int(failed)
	stats.Duration = time.Since(start)
	l.logger.Info("fixtures loaded", "loaded", stats.Loaded, "skipped", stats.Skipped, "failed", stats.Failed, "duration", stats.Duration)
	return stats, nil
}

// loadRecord stores one record. It reports false when the passage was already
// stored and embedded with the same fields.
func (l *Loader) loadRecord(ctx context.Context, rec Record, force bool) (bool, error) {
	source, err := types.ParseSourceType(rec.Source)
	if err != nil {
		return false, err
	}
	passage := &storage.Passage{
		SourceType: source,
		ExternalID: strings.TrimSpace(rec.ID),
		SourceRef:  strings.TrimSpace(rec.Ref),
		Title:      strings.TrimSpace(rec.Title),
		Text:       rec.Text,
		Metadata:   rec.Metadata,
	}
	passage.ContentHash = passageHash(passage)

	if !force {
		existing, err := l.store.GetPassage(ctx, source, passage.ExternalID)
		switch {
		case err == nil && existing.Embedded && existing.ContentHash == passage.ContentHash:
			return false, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return false, fmt.Errorf("failed to check passage: %w", err)
		}
	}

	emb, err := l.emb.Embed(ctx, rec.Text)
	if err != nil {
		return false, fmt.Errorf("failed to embed passage: %w", err)
	}
	if err := l.store.UpsertPassage(ctx, passage); err != nil {
		return false, fmt.Errorf("failed to store passage: %w", err)
	}
	row := storage.NewEmbedding(passage.ID, emb.Vector, l.emb.Provider(), l.emb.Model())
	if err := l.store.UpsertEmbedding(ctx, row); err != nil {
		return false, fmt.Errorf("failed to store embedding: %w", err)
	}
	return true, nil
}

// passageHash covers every stored field, so a changed title, ref or metadata
// value is reloaded too.
func passageHash(p *storage.Passage) [32]byte {
	h := sha256.New()
	for _, field := range []string{string(p.SourceType), p.ExternalID, p.SourceRef, p.Title, strings.TrimSpace(p.Text)} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(p.Metadata))
	for k := range p.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(p.Metadata[k]))
		h.Write([]byte{0})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
