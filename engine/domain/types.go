// Package domain defines the core types and error taxonomy shared by the
// herb identification engine. It acts as the validation gate for records
// entering the catalog and images entering the engine.
package domain

import "time"

// Source tags which stage produced an identification.
type Source string

const (
	SourceProvider       Source = "provider"
	SourceLocalMatch     Source = "local-match"
	SourceSampleFallback Source = "sample-fallback"
)

// Degraded reports whether the source is non-authoritative.
func (s Source) Degraded() bool { return s == SourceSampleFallback }

// HerbRecord is a catalog entry. Embedding is optional; a record without one
// is invisible to the similarity matcher but still usable by text lookups
// and the sample fallback.
type HerbRecord struct {
	ID             string    `json:"id"`
	CommonName     string    `json:"common_name"`
	ScientificName string    `json:"scientific_name"`
	Uses           string    `json:"uses"`
	Description    string    `json:"description,omitempty"`
	ImagePath      string    `json:"image_path,omitempty"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasEmbedding reports whether the record can take part in similarity matching.
func (h HerbRecord) HasEmbedding() bool { return len(h.Embedding) > 0 }

// Identification is the ephemeral answer of a provider or the matcher.
type Identification struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Score          float64 `json:"score"`
	Source         Source  `json:"source"`
	// LowConfidence is set by providers when the top score is below the
	// configured minimum. The result is still returned.
	LowConfidence bool   `json:"low_confidence,omitempty"`
	RecordID      string `json:"record_id,omitempty"`
}

// Alternative is a runner-up candidate from local matching.
type Alternative struct {
	CommonName     string  `json:"common_name"`
	ScientificName string  `json:"scientific_name"`
	Score          float64 `json:"score"`
}

// IdentificationResult is the engine's output contract. Uses is never empty
// and ProcessingTime is never negative.
type IdentificationResult struct {
	CommonName     string        `json:"common_name"`
	ScientificName string        `json:"scientific_name"`
	Uses           string        `json:"uses"`
	ProcessingTime float64       `json:"processing_time"`
	Source         Source        `json:"source"`
	Score          float64       `json:"score"`
	Degraded       bool          `json:"degraded"`
	LowConfidence  bool          `json:"low_confidence,omitempty"`
	Alternatives   []Alternative `json:"alternatives,omitempty"`
}
