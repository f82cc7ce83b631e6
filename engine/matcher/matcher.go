// Package matcher finds the catalog record whose stored embedding is most
// similar to a query embedding.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/domain"
)

// DefaultThreshold is the minimum cosine similarity for a match. Scores at
// or below it are treated as no match.
const DefaultThreshold = 0.75

// ErrNonFinite is returned by Cosine when either vector holds NaN or
// infinite components.
var ErrNonFinite = errors.New("matcher: non-finite similarity")

// Match is a candidate record with its similarity to the query.
type Match struct {
	Record domain.HerbRecord
	Score  float64
}

// Index answers similarity queries. model names the extractor that produced
// the query; candidates stamped with another model are ignored.
type Index interface {
	Match(ctx context.Context, query []float32, model string) (Match, bool, error)
	TopK(ctx context.Context, query []float32, model string, k int) ([]Match, error)
}

// Cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("matcher: %d vs %d: %w", len(a), len(b), domain.ErrDimensionMismatch)
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	s := dot / math.Sqrt(na*nb)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, ErrNonFinite
	}
	return math.Max(-1, math.Min(1, s)), nil
}

// ScanStats counts candidates left out of a scan.
type ScanStats struct {
	NoEmbedding   int
	ModelMismatch int
	SizeMismatch  int
	NonFinite     int
}

// Skipped is the total number of ignored candidates.
func (s ScanStats) Skipped() int {
	return s.NoEmbedding + s.ModelMismatch + s.SizeMismatch + s.NonFinite
}

func usable(h domain.HerbRecord, query []float32, model string, st *ScanStats) bool {
	switch {
	case !h.HasEmbedding():
		st.NoEmbedding++
		return false
	case model != "" && h.EmbeddingModel != "" && h.EmbeddingModel != model:
		st.ModelMismatch++
		return false
	case len(h.Embedding) != len(query):
		st.SizeMismatch++
		return false
	}
	return true
}

// Best scans candidates in order and returns the one with the strictly
// highest score above threshold. On equal scores the earlier candidate wins.
func Best(query []float32, candidates []domain.HerbRecord, model string, threshold float64) (Match, bool, ScanStats) {
	var (
		best  Match
		found bool
		st    ScanStats
	)
	for _, h := range candidates {
		if !usable(h, query, model, &st) {
			continue
		}
		score, err := Cosine(query, h.Embedding)
		if err != nil {
			st.NonFinite++
			continue
		}
		if !(score > threshold) {
			continue
		}
		if !found || score > best.Score {
			best = Match{Record: h, Score: score}
			found = true
		}
	}
	return best, found, st
}

// Rank returns up to k candidates above threshold ordered by descending
// score, keeping catalog order among equal scores.
func Rank(query []float32, candidates []domain.HerbRecord, model string, threshold float64, k int) ([]Match, ScanStats) {
	var (
		out []Match
		st  ScanStats
	)
	for _, h := range candidates {
		if !usable(h, query, model, &st) {
			continue
		}
		score, err := Cosine(query, h.Embedding)
		if err != nil {
			st.NonFinite++
			continue
		}
		if score > threshold {
			out = append(out, Match{Record: h, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, st
}

// LinearIndex scans every catalog record on each query.
type LinearIndex struct {
	catalog   catalog.Catalog
	threshold float64
	logger    *slog.Logger
}

// NewLinearIndex creates a LinearIndex. A nil logger uses slog.Default.
func NewLinearIndex(c catalog.Catalog, threshold float64, logger *slog.Logger) *LinearIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinearIndex{catalog: c, threshold: threshold, logger: logger}
}

func (l *LinearIndex) Match(ctx context.Context, query []float32, model string) (Match, bool, error) {
	records, err := l.catalog.AllRecords(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("matcher: load candidates: %w", err)
	}
	m, ok, st := Best(query, records, model, l.threshold)
	l.logStats(st, len(records))
	return m, ok, nil
}

func (l *LinearIndex) TopK(ctx context.Context, query []float32, model string, k int) ([]Match, error) {
	records, err := l.catalog.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("matcher: load candidates: %w", err)
	}
	out, _ := Rank(query, records, model, l.threshold, k)
	return out, nil
}

func (l *LinearIndex) logStats(st ScanStats, total int) {
	if st.ModelMismatch > 0 || st.SizeMismatch > 0 || st.NonFinite > 0 {
		l.logger.Warn("matcher: incomparable embeddings skipped",
			"model_mismatch", st.ModelMismatch,
			"size_mismatch", st.SizeMismatch,
			"non_finite", st.NonFinite,
			"candidates", total,
		)
	}
}

var _ Index = (*LinearIndex)(nil)
