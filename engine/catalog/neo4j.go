package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/pkg/repo"
)

// HerbLabel is the node label used for herb records.
const HerbLabel = "Herb"

// Neo4jCatalog stores herbs as (:Herb) nodes. Records are ordered by id.
type Neo4jCatalog struct {
	repo   *repo.Neo4jRepo[domain.HerbRecord, string]
	driver neo4j.DriverWithContext
}

// NewNeo4jCatalog wraps an open driver. Extra options are passed to the
// underlying repository.
func NewNeo4jCatalog(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.HerbRecord, string]) *Neo4jCatalog {
	return &Neo4jCatalog{
		repo:   repo.NewNeo4jRepo[domain.HerbRecord, string](driver, HerbLabel, herbToProps, herbFromProps, opts...),
		driver: driver,
	}
}

// OpenNeo4j connects to a Neo4j server and verifies connectivity.
func OpenNeo4j(ctx context.Context, url, user, pass string) (*Neo4jCatalog, error) {
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("catalog: neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("catalog: neo4j connect %s: %w", url, err)
	}
	return NewNeo4jCatalog(driver), nil
}

func herbToProps(h domain.HerbRecord) map[string]any {
	props := map[string]any{
		"id":              h.ID,
		"common_name":     h.CommonName,
		"scientific_name": h.ScientificName,
		"uses":            h.Uses,
		"description":     h.Description,
		"image_path":      h.ImagePath,
		"updated_at":      h.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if h.HasEmbedding() {
		props["embedding"] = toFloat64s(h.Embedding)
		props["embedding_model"] = h.EmbeddingModel
	}
	return props
}

func herbFromProps(m map[string]any) (domain.HerbRecord, error) {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	h := domain.HerbRecord{
		ID:             str("id"),
		CommonName:     str("common_name"),
		ScientificName: str("scientific_name"),
		Uses:           str("uses"),
		Description:    str("description"),
		ImagePath:      str("image_path"),
		EmbeddingModel: str("embedding_model"),
	}
	if h.ID == "" {
		return h, errors.New("catalog: herb node without id")
	}
	h.UpdatedAt, _ = time.Parse(time.RFC3339Nano, str("updated_at"))

	switch v := m["embedding"].(type) {
	case []any:
		h.Embedding = make([]float32, len(v))
		for i, x := range v {
			f, ok := x.(float64)
			if !ok {
				return h, fmt.Errorf("catalog: herb %s: embedding element %T", h.ID, x)
			}
			h.Embedding[i] = float32(f)
		}
	case []float64:
		h.Embedding = make([]float32, len(v))
		for i, f := range v {
			h.Embedding[i] = float32(f)
		}
	}
	return h, nil
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func (c *Neo4jCatalog) AllRecords(ctx context.Context) ([]domain.HerbRecord, error) {
	out, err := c.repo.Query(ctx, "MATCH (n:Herb) RETURN n ORDER BY n.id", nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: list herbs: %w", err)
	}
	return out, nil
}

func (c *Neo4jCatalog) first(ctx context.Context, where, name string) (domain.HerbRecord, error) {
	out, err := c.repo.Query(ctx,
		"MATCH (n:Herb) WHERE "+where+" RETURN n ORDER BY n.id LIMIT 1",
		map[string]any{"name": name})
	if err != nil {
		return domain.HerbRecord{}, fmt.Errorf("catalog: find herb: %w", err)
	}
	if len(out) == 0 {
		return domain.HerbRecord{}, domain.ErrNotFound
	}
	return out[0], nil
}

func (c *Neo4jCatalog) FindByName(ctx context.Context, name string) (domain.HerbRecord, error) {
	h, err := c.FindByScientificName(ctx, name)
	if !errors.Is(err, domain.ErrNotFound) || name == "" {
		return h, err
	}
	h, err = c.first(ctx, "toLower(n.common_name) = toLower($name)", name)
	if !errors.Is(err, domain.ErrNotFound) {
		return h, err
	}
	return c.first(ctx, "toLower(n.common_name) CONTAINS toLower($name)", name)
}

func (c *Neo4jCatalog) FindByScientificName(ctx context.Context, name string) (domain.HerbRecord, error) {
	if name == "" {
		return domain.HerbRecord{}, domain.ErrNotFound
	}
	return c.first(ctx, "toLower(n.scientific_name) = toLower($name)", name)
}

func (c *Neo4jCatalog) SampleAny(ctx context.Context) (domain.HerbRecord, error) {
	out, err := c.repo.List(ctx, repo.ListOpts{Limit: 1, OrderBy: "id"})
	if err != nil {
		return domain.HerbRecord{}, fmt.Errorf("catalog: sample: %w", err)
	}
	if len(out) == 0 {
		return domain.HerbRecord{}, domain.ErrEmptyCatalog
	}
	return out[0], nil
}

func (c *Neo4jCatalog) Upsert(ctx context.Context, h domain.HerbRecord) error {
	h, err := prepare(h)
	if err != nil {
		return err
	}
	h.UpdatedAt = time.Now()
	if _, err := c.repo.Upsert(ctx, h); err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", h.ID, err)
	}
	return nil
}

func (c *Neo4jCatalog) SetEmbedding(ctx context.Context, id string, vec []float32, model string) error {
	err := c.repo.SetProps(ctx, id, map[string]any{
		"embedding":       toFloat64s(vec),
		"embedding_model": model,
		"updated_at":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("catalog: herb %s: %w", id, domain.ErrNotFound)
	}
	return err
}

func (c *Neo4jCatalog) Count(ctx context.Context) (int, error) {
	return c.repo.Count(ctx)
}

// Close closes the driver if the catalog owns one.
func (c *Neo4jCatalog) Close() error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close(context.Background())
}

var _ Store = (*Neo4jCatalog)(nil)
