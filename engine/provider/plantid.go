package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/herbid/herbid/engine/domain"
)

// PlantIDURL is the Plant.id identification endpoint.
const PlantIDURL = "https://plant.id/api/v3/identification"

// PlantID identifies plants with the Plant.id API, which answers with a
// suggestions list carrying flat plant names.
type PlantID struct {
	*client
}

// NewPlantID creates a Plant.id adapter.
func NewPlantID(opts Options, logger *slog.Logger) *PlantID {
	return &PlantID{client: newClient("plantid", opts.withDefaults(PlantIDURL), logger)}
}

func (p *PlantID) Name() string { return p.name }

type plantIDRequest struct {
	Images        []string `json:"images"`
	PlantLanguage string   `json:"plant_language,omitempty"`
	PlantDetails  []string `json:"plant_details,omitempty"`
}

func (p *PlantID) Identify(ctx context.Context, image []byte) (domain.Identification, error) {
	return p.identify(ctx, image, func(ctx context.Context) (*http.Request, error) {
		body, err := json.Marshal(plantIDRequest{
			Images:        []string{base64.StdEncoding.EncodeToString(image)},
			PlantLanguage: p.opts.Language,
			PlantDetails:  []string{"common_names"},
		})
		if err != nil {
			return nil, err
		}
		endpoint := p.opts.URL
		if !strings.Contains(endpoint, "?") {
			endpoint += "?details=common_names&language=" + p.opts.Language
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Api-Key", p.opts.APIKey)
		return req, nil
	})
}

var _ Adapter = (*PlantID)(nil)
