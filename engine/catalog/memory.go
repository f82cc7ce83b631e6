package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/herbid/herbid/engine/domain"
)

// MemoryCatalog keeps records in insertion order behind an RWMutex.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records []domain.HerbRecord
	index   map[string]int
	now     func() time.Time
}

// NewMemoryCatalog returns a catalog holding the given records.
func NewMemoryCatalog(records ...domain.HerbRecord) *MemoryCatalog {
	c := &MemoryCatalog{index: make(map[string]int), now: time.Now}
	for _, h := range records {
		_ = c.Upsert(context.Background(), h)
	}
	return c
}

func (c *MemoryCatalog) AllRecords(_ context.Context) ([]domain.HerbRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.records), nil
}

func (c *MemoryCatalog) FindByName(_ context.Context, name string) (domain.HerbRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := matchName(c.records, name); ok {
		return h, nil
	}
	return domain.HerbRecord{}, domain.ErrNotFound
}

func (c *MemoryCatalog) FindByScientificName(_ context.Context, name string) (domain.HerbRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := matchScientific(c.records, name); ok {
		return h, nil
	}
	return domain.HerbRecord{}, domain.ErrNotFound
}

// SampleAny returns the first record in catalog order.
func (c *MemoryCatalog) SampleAny(_ context.Context) (domain.HerbRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.records) == 0 {
		return domain.HerbRecord{}, domain.ErrEmptyCatalog
	}
	return c.records[0], nil
}

func (c *MemoryCatalog) Upsert(_ context.Context, h domain.HerbRecord) error {
	h, err := prepare(h)
	if err != nil {
		return err
	}
	h.Embedding = slices.Clone(h.Embedding)
	h.UpdatedAt = c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[h.ID]; ok {
		if !h.HasEmbedding() {
			h.Embedding = c.records[i].Embedding
			h.EmbeddingModel = c.records[i].EmbeddingModel
		}
		c.records[i] = h
		return nil
	}
	c.index[h.ID] = len(c.records)
	c.records = append(c.records, h)
	return nil
}

func (c *MemoryCatalog) SetEmbedding(_ context.Context, id string, vec []float32, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.records[i].Embedding = slices.Clone(vec)
	c.records[i].EmbeddingModel = model
	c.records[i].UpdatedAt = c.now().UTC()
	return nil
}

func (c *MemoryCatalog) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}

func (c *MemoryCatalog) Close() error { return nil }

var _ Store = (*MemoryCatalog)(nil)
