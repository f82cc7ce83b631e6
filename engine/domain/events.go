package domain

import "time"

// IdentifiedEvent is published after a successful identification.
type IdentifiedEvent struct {
	RequestID      string    `json:"request_id,omitempty"`
	CommonName     string    `json:"common_name"`
	ScientificName string    `json:"scientific_name"`
	Source         Source    `json:"source"`
	Score          float64   `json:"score"`
	Degraded       bool      `json:"degraded"`
	ProcessingTime float64   `json:"processing_time"`
	At             time.Time `json:"at"`
}

// NewIdentifiedEvent summarises res for publishing.
func NewIdentifiedEvent(requestID string, res IdentificationResult, at time.Time) IdentifiedEvent {
	return IdentifiedEvent{
		RequestID:      requestID,
		CommonName:     res.CommonName,
		ScientificName: res.ScientificName,
		Source:         res.Source,
		Score:          res.Score,
		Degraded:       res.Degraded,
		ProcessingTime: res.ProcessingTime,
		At:             at.UTC(),
	}
}
