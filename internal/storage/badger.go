package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/dshills/litsearch/pkg/types"
)

const (
	passageKeyPrefix  = "passage/"
	passageIDPrefix   = "pid/"
	passageIDSequence = "seq/passage"

	defaultSequenceBandwidth = 100
)

// BadgerStorage implements Storage on an embedded BadgerDB. Each passage and its
// vector live in one record under passage/<source>/<external id>.
type BadgerStorage struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *log.Logger
}

// badgerRecord is the stored value of a passage key
type badgerRecord struct {
	ID          int64             `json:"id"`
	SourceType  string            `json:"source_type"`
	ExternalID  string            `json:"external_id"`
	SourceRef   string            `json:"source_ref"`
	Title       string            `json:"title,omitempty"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ContentHash []byte            `json:"content_hash"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	Vector     []float32 `json:"vector,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	EmbeddedAt time.Time `json:"embedded_at,omitempty"`
}

// badgerLoggerAdapter adapts a charm logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *log.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// NewBadgerStorage opens a BadgerDB index at dir. An empty dir opens an in-memory store.
func NewBadgerStorage(dir string, logger *log.Logger) (*BadgerStorage, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("badger")

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index: %w", err)
	}

	seq, err := db.GetSequence([]byte(passageIDSequence), defaultSequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open passage sequence: %w", err)
	}

	return &BadgerStorage{db: db, seq: seq, logger: logger}, nil
}

func passageKey(source types.SourceType, externalID string) []byte {
	return []byte(passageKeyPrefix + string(source) + "/" + externalID)
}

func passageIDKey(id int64) []byte {
	return []byte(passageIDPrefix + strconv.FormatInt(id, 10))
}

func (b *BadgerStorage) Close() error {
	if err := b.seq.Release(); err != nil {
		b.logger.Warn("failed to release sequence", "err", err)
	}
	return b.db.Close()
}

func (b *BadgerStorage) UpsertPassage(ctx context.Context, passage *Passage) error {
	if err := validatePassage(passage); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if passage.ContentHash == ([32]byte{}) {
		passage.ContentHash = HashContent(passage.Text)
	}

	key := passageKey(passage.SourceType, passage.ExternalID)
	now := time.Now()

	return b.db.Update(func(txn *badger.Txn) error {
		existing, err := getRecord(txn, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		rec := &badgerRecord{CreatedAt: now}
		if existing != nil {
			rec = existing
		} else {
			next, err := b.seq.Next()
			if err != nil {
				return fmt.Errorf("failed to allocate passage id: %w", err)
			}
			rec.ID = int64(next) + 1
		}

		rec.SourceType = string(passage.SourceType)
		rec.ExternalID = passage.ExternalID
		rec.SourceRef = passage.SourceRef
		rec.Title = passage.Title
		rec.Text = passage.Text
		rec.Metadata = passage.Metadata
		rec.ContentHash = passage.ContentHash[:]
		rec.UpdatedAt = now

		if err := putRecord(txn, key, rec); err != nil {
			return err
		}
		if err := txn.Set(passageIDKey(rec.ID), key); err != nil {
			return err
		}

		passage.ID = rec.ID
		passage.CreatedAt = rec.CreatedAt
		passage.UpdatedAt = rec.UpdatedAt
		return nil
	})
}

func (b *BadgerStorage) GetPassage(ctx context.Context, source types.SourceType, externalID string) (*Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var passage *Passage
	err := b.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, passageKey(source, externalID))
		if err != nil {
			return err
		}
		passage = rec.toPassage()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return passage, nil
}

func (b *BadgerStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(passageIDKey(embedding.PassageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("passage %d: %w", embedding.PassageID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		rec.Vector = deserializeVector(embedding.Vector)
		rec.Provider = embedding.Provider
		rec.Model = embedding.Model
		rec.EmbeddedAt = time.Now()

		embedding.ID = rec.ID
		embedding.Dimension = len(rec.Vector)
		embedding.CreatedAt = rec.EmbeddedAt
		return putRecord(txn, key, rec)
	})
}

func (b *BadgerStorage) SearchVector(ctx context.Context, source types.SourceType, queryVector []float32, limit int, minSimilarity float64) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}

	candidates := make([]candidate, 0, 256)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(passageKeyPrefix + string(source) + "/")
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec badgerRecord
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}

			if len(rec.Vector) != len(queryVector) {
				continue // Not embedded or dimension mismatch
			}
			similarity := cosineSimilarity(queryVector, rec.Vector)
			if similarity < minSimilarity {
				continue
			}
			candidates = append(candidates, candidate{passage: rec.toPassage(), score: similarity})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan badger index: %w", err)
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

func (b *BadgerStorage) GetStatus(ctx context.Context) (*IndexStatus, error) {
	status := &IndexStatus{
		Backend:       "badger",
		SchemaVersion: CurrentSchemaVersion,
	}

	err := b.db.View(func(txn *badger.Txn) error {
		for _, src := range types.AllSourceTypes() {
			st := SourceStatus{Source: src}

			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(passageKeyPrefix + string(src) + "/")
			iter := txn.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				if err := ctx.Err(); err != nil {
					iter.Close()
					return err
				}
				var rec badgerRecord
				if err := iter.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				}); err != nil {
					iter.Close()
					return err
				}
				st.PassagesCount++
				if len(rec.Vector) > 0 {
					st.EmbeddingsCount++
				}
			}
			iter.Close()
			status.Sources = append(status.Sources, st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lsm, vlog := b.db.Size()
	status.IndexSizeMB = float64(lsm+vlog) / (1024 * 1024)

	_, embeddings := status.Totals()
	status.Health = HealthStatus{
		DatabaseAccessible:  !b.db.IsClosed(),
		EmbeddingsAvailable: embeddings > 0,
	}
	return status, nil
}

func getRecord(txn *badger.Txn, key []byte) (*badgerRecord, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec badgerRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode passage %s: %w", key, err)
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, key []byte, rec *badgerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode passage %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func (r *badgerRecord) toPassage() *Passage {
	p := &Passage{
		ID:         r.ID,
		SourceType: types.SourceType(r.SourceType),
		ExternalID: r.ExternalID,
		SourceRef:  r.SourceRef,
		Title:      r.Title,
		Text:       r.Text,
		Metadata:   r.Metadata,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	copy(p.ContentHash[:], r.ContentHash)
	p.Embedded = len(r.Vector) > 0
	return p
}
