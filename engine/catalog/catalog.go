// Package catalog stores herb records. The engine only reads through
// Catalog; import tooling writes through Writer.
package catalog

import (
	"context"
	"regexp"
	"strings"

	"github.com/herbid/herbid/engine/domain"
)

// Catalog is the read contract used by the identification engine.
// Implementations are safe for concurrent reads.
type Catalog interface {
	// AllRecords returns every record in stable catalog order.
	AllRecords(ctx context.Context) ([]domain.HerbRecord, error)

	// FindByName matches the scientific name exactly, then the common name
	// exactly, then a common-name substring. Comparisons ignore case.
	// Returns domain.ErrNotFound when nothing matches.
	FindByName(ctx context.Context, name string) (domain.HerbRecord, error)

	// FindByScientificName matches the scientific name exactly, ignoring case.
	FindByScientificName(ctx context.Context, name string) (domain.HerbRecord, error)

	// SampleAny returns a record for the degraded fallback, or
	// domain.ErrEmptyCatalog.
	SampleAny(ctx context.Context) (domain.HerbRecord, error)
}

// Writer is the mutation contract used by seed and import tooling. Upsert
// replaces a record by ID but keeps a stored embedding when the incoming
// record carries none.
type Writer interface {
	Upsert(ctx context.Context, h domain.HerbRecord) error
	SetEmbedding(ctx context.Context, id string, vec []float32, model string) error
	Count(ctx context.Context) (int, error)
}

// Store is a catalog backend that supports both contracts.
type Store interface {
	Catalog
	Writer
	Close() error
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// RecordID derives a stable identifier from a herb's names, preferring the
// scientific name.
func RecordID(common, scientific string) string {
	name := scientific
	if strings.TrimSpace(name) == "" {
		name = common
	}
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// matchName applies the FindByName precedence to an ordered record list.
func matchName(records []domain.HerbRecord, name string) (domain.HerbRecord, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.HerbRecord{}, false
	}
	if h, ok := matchScientific(records, name); ok {
		return h, true
	}
	for _, h := range records {
		if strings.EqualFold(h.CommonName, name) {
			return h, true
		}
	}
	lower := strings.ToLower(name)
	for _, h := range records {
		if strings.Contains(strings.ToLower(h.CommonName), lower) {
			return h, true
		}
	}
	return domain.HerbRecord{}, false
}

func matchScientific(records []domain.HerbRecord, name string) (domain.HerbRecord, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.HerbRecord{}, false
	}
	for _, h := range records {
		if strings.EqualFold(h.ScientificName, name) {
			return h, true
		}
	}
	return domain.HerbRecord{}, false
}

// prepare validates a record and fills in derived fields before a write.
func prepare(h domain.HerbRecord) (domain.HerbRecord, error) {
	h.CommonName = strings.TrimSpace(h.CommonName)
	h.ScientificName = strings.TrimSpace(h.ScientificName)
	if h.ID == "" {
		h.ID = RecordID(h.CommonName, h.ScientificName)
	}
	if err := domain.ValidateHerbRecord(h); err != nil {
		return h, err
	}
	return h, nil
}
