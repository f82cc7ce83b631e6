package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/pkg/repo"
)

type scriptedResult struct {
	records []*neo4j.Record
	idx     int
}

func (r *scriptedResult) Next(context.Context) bool {
	if r.idx < len(r.records) {
		r.idx++
		return true
	}
	return false
}

func (r *scriptedResult) Record() *neo4j.Record { return r.records[r.idx-1] }

// scriptedRunner answers each Run with the next scripted batch of records.
type scriptedRunner struct {
	batches [][]*neo4j.Record
	cyphers []string
}

func (s *scriptedRunner) Run(_ context.Context, cypher string, _ map[string]any) (repo.Result, error) {
	s.cyphers = append(s.cyphers, cypher)
	var batch []*neo4j.Record
	if len(s.batches) > 0 {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	return &scriptedResult{records: batch}, nil
}

func (s *scriptedRunner) Close(context.Context) error { return nil }

func herbNode(id, common, scientific string, emb []any) *neo4j.Record {
	props := map[string]any{"id": id, "common_name": common, "scientific_name": scientific}
	if emb != nil {
		props["embedding"] = emb
		props["embedding_model"] = "m1"
	}
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{neo4j.Node{Labels: []string{HerbLabel}, Props: props}}}
}

func newScripted(batches ...[]*neo4j.Record) (*Neo4jCatalog, *scriptedRunner) {
	r := &scriptedRunner{batches: batches}
	c := NewNeo4jCatalog(nil, repo.WithSessions[domain.HerbRecord, string](func(context.Context) repo.Runner { return r }))
	return c, r
}

func TestNeo4jAllRecordsDecodesEmbedding(t *testing.T) {
	c, _ := newScripted([]*neo4j.Record{
		herbNode("neem", "Neem", "Azadirachta indica", []any{0.5, 0.25}),
		herbNode("mint", "Mint", "Mentha", nil),
	})
	all, err := c.AllRecords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d records", len(all))
	}
	if !all[0].HasEmbedding() || all[0].Embedding[1] != 0.25 || all[0].EmbeddingModel != "m1" {
		t.Fatalf("bad embedding decode: %+v", all[0])
	}
	if all[1].HasEmbedding() {
		t.Fatal("mint should have no embedding")
	}
}

func TestNeo4jFindByNameFallsThrough(t *testing.T) {
	// scientific miss, common exact miss, substring hit
	c, r := newScripted(nil, nil, []*neo4j.Record{herbNode("wild-mint", "Wild Mint", "Mentha arvensis", nil)})
	h, err := c.FindByName(context.Background(), "wild")
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != "wild-mint" {
		t.Fatalf("got %+v", h)
	}
	if len(r.cyphers) != 3 || !strings.Contains(r.cyphers[2], "CONTAINS") {
		t.Fatalf("unexpected queries %v", r.cyphers)
	}
}

func TestNeo4jSampleAnyEmpty(t *testing.T) {
	c, _ := newScripted(nil)
	if _, err := c.SampleAny(context.Background()); !errors.Is(err, domain.ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
}

func TestNeo4jSetEmbeddingNotFound(t *testing.T) {
	c, _ := newScripted(nil)
	err := c.SetEmbedding(context.Background(), "ghost", []float32{1}, "m1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHerbPropsOmitEmptyEmbedding(t *testing.T) {
	props := herbToProps(domain.HerbRecord{ID: "neem", CommonName: "Neem"})
	if _, ok := props["embedding"]; ok {
		t.Fatal("empty embedding must not overwrite a stored one")
	}
}
