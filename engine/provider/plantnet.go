package provider

import (
	"bytes"
	"context"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/herbid/herbid/engine/domain"
)

// PlantNetURL is the public Pl@ntNet API root.
const PlantNetURL = "https://my-api.plantnet.org"

// PlantNet identifies plants with the Pl@ntNet v2 API, which answers with
// a ranked results list.
type PlantNet struct {
	*client
}

// NewPlantNet creates a Pl@ntNet adapter.
func NewPlantNet(opts Options, logger *slog.Logger) *PlantNet {
	opts = opts.withDefaults(PlantNetURL)
	if opts.Project == "" {
		opts.Project = "all"
	}
	return &PlantNet{client: newClient("plantnet", opts, logger)}
}

func (p *PlantNet) Name() string { return p.name }

func (p *PlantNet) Identify(ctx context.Context, image []byte) (domain.Identification, error) {
	return p.identify(ctx, image, func(ctx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("images", "upload.jpg")
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(image); err != nil {
			return nil, err
		}
		if err := w.WriteField("organs", "auto"); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("api-key", p.opts.APIKey)
		q.Set("lang", p.opts.Language)
		q.Set("nb-results", "5")
		endpoint := strings.TrimRight(p.opts.URL, "/") + "/v2/identify/" + url.PathEscape(p.opts.Project) + "?" + q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

var _ Adapter = (*PlantNet)(nil)
