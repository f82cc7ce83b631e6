package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WorkerOpts configures a remote model-worker extractor.
type WorkerOpts struct {
	URL       string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// HTTPExtractor sends images to a model worker that hosts a pretrained CNN
// (MobileNetV2 global-average-pooled by default) and returns its features.
type HTTPExtractor struct {
	opts   WorkerOpts
	client *http.Client
}

// NewHTTPExtractor creates an HTTPExtractor.
func NewHTTPExtractor(opts WorkerOpts) *HTTPExtractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &HTTPExtractor{
		opts: opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (e *HTTPExtractor) Model() string  { return e.opts.Model }
func (e *HTTPExtractor) Dimension() int { return e.opts.Dimension }

type workerEmbedReq struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

type workerEmbedResp struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Error     string    `json:"error,omitempty"`
}

// Extract implements Extractor. The image is decoded locally first so bad
// input never reaches the worker.
func (e *HTTPExtractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	if _, _, err := Decode(data); err != nil {
		return nil, err
	}

	body, err := json.Marshal(workerEmbedReq{
		Model: e.opts.Model,
		Image: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding worker: marshal: %w", err)
	}

	url := strings.TrimRight(e.opts.URL, "/") + "/v1/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("embedding worker: status %d: %s", resp.StatusCode, preview)
	}

	var result workerEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding worker decode: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("embedding worker: %s", result.Error)
	}
	if result.Model != "" && e.opts.Model != "" && result.Model != e.opts.Model {
		return nil, fmt.Errorf("embedding worker: served model %q, expected %q", result.Model, e.opts.Model)
	}
	if err := checkDimension(result.Embedding, e.opts.Dimension); err != nil {
		return nil, err
	}
	return L2Normalize(result.Embedding), nil
}

var _ Extractor = (*HTTPExtractor)(nil)
