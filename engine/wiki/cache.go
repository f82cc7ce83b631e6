package wiki

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Cache stores raw response bodies keyed by request URL.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, body []byte) error
}

var bucketResponses = []byte("responses")

// BoltCache is a persistent Cache with a fixed time-to-live.
type BoltCache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

type cachedBody struct {
	StoredAt int64  `json:"stored_at"`
	Body     []byte `json:"body"`
}

// DefaultCacheTTL is how long cached responses stay fresh.
const DefaultCacheTTL = 7 * 24 * time.Hour

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string, ttl time.Duration) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wiki: cache dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("wiki: open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("wiki: init cache: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &BoltCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the cache file.
func (c *BoltCache) Close() error { return c.db.Close() }

// Get returns a live entry. Expired entries are reported as misses and
// left for Purge.
func (c *BoltCache) Get(key string) ([]byte, bool) {
	var out []byte
	_ = c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketResponses).Get([]byte(key))
		if data == nil {
			return nil
		}
		var e cachedBody
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		if c.now().Sub(time.Unix(0, e.StoredAt)) > c.ttl {
			return nil
		}
		out = e.Body
		return nil
	})
	return out, out != nil
}

func (c *BoltCache) Put(key string, body []byte) error {
	data, err := json.Marshal(cachedBody{StoredAt: c.now().UnixNano(), Body: body})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResponses).Put([]byte(key), data)
	})
}

// Purge deletes expired entries and returns how many were removed.
func (c *BoltCache) Purge() (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e cachedBody
			if err := json.Unmarshal(v, &e); err != nil || c.now().Sub(time.Unix(0, e.StoredAt)) > c.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
