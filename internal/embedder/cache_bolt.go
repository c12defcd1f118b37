package embedder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.etcd.io/bbolt"
)

var bucketEmbeddings = []byte("embeddings")

// BoltCache persists query embeddings across process restarts. It sits behind
// an in-memory Cache so repeated CLI runs skip the provider round trip.
type BoltCache struct {
	db     *bbolt.DB
	memory *Cache
	logger *log.Logger
}

// NewBoltCache opens (or creates) a bbolt-backed cache at path.
func NewBoltCache(path string, memorySize int, logger *log.Logger) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create embedding cache bucket: %w", err)
	}

	if logger == nil {
		logger = log.Default()
	}
	return &BoltCache{
		db:     db,
		memory: NewCache(memorySize),
		logger: logger,
	}, nil
}

func (c *BoltCache) Get(hash string) (*Embedding, bool) {
	if emb, ok := c.memory.Get(hash); ok {
		return emb, true
	}

	var emb Embedding
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get([]byte(hash))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &emb)
	})
	if err != nil {
		c.logger.Warn("embedding cache read failed", "hash", hash, "err", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	c.memory.Set(hash, &emb)
	return &emb, true
}

func (c *BoltCache) Set(hash string, emb *Embedding) {
	c.memory.Set(hash, emb)
	err := c.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(emb)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEmbeddings).Put([]byte(hash), data)
	})
	if err != nil {
		c.logger.Warn("embedding cache write failed", "hash", hash, "err", err)
	}
}

// Len returns the number of persisted embeddings.
func (c *BoltCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}
