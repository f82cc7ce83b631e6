package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/herbid/herbid/engine/config"
	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/pkg/fn"
	"github.com/herbid/herbid/pkg/metrics"
	"github.com/herbid/herbid/pkg/mid"
	"github.com/herbid/herbid/pkg/natsutil"
	"github.com/herbid/herbid/pkg/resilience"
)

// Identifier is the engine contract the handlers need.
type Identifier interface {
	Identify(ctx context.Context, image []byte) (domain.IdentificationResult, error)
}

// herbLister is the catalog surface exposed over HTTP.
type herbLister interface {
	AllRecords(ctx context.Context) ([]domain.HerbRecord, error)
	FindByName(ctx context.Context, name string) (domain.HerbRecord, error)
}

type server struct {
	engine  Identifier
	catalog herbLister
	events  *natsutil.Emitter[domain.IdentifiedEvent]
	metrics *metrics.Registry
	cfg     config.ServerConfig
	limiter *resilience.KeyedLimiter
	logger  *slog.Logger
}

func newServer(engine Identifier, cat herbLister, events *natsutil.Emitter[domain.IdentifiedEvent], reg *metrics.Registry, cfg config.ServerConfig, limiter *resilience.KeyedLimiter, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &server{engine: engine, catalog: cat, events: events, metrics: reg, cfg: cfg, limiter: limiter, logger: logger}
}

func (s *server) routes() http.Handler {
	identify := mid.Chain(http.HandlerFunc(s.handleIdentify), mid.MaxBody(s.cfg.MaxUploadBytes+(1<<20)))
	if s.limiter != nil {
		identify = mid.Chain(identify, mid.RateLimit(s.limiter))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("POST /api/identify", identify)
	mux.HandleFunc("GET /api/herbs", s.handleHerbs)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return mid.Chain(mux,
		mid.Recover(s.logger),
		mid.RequestID(),
		mid.Logger(s.logger),
		mid.CORS(s.cfg.CORSOrigin),
		mid.OTel("herbid-api"),
	)
}

// --- Handlers ---

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.catalog != nil {
		if recs, err := s.catalog.AllRecords(r.Context()); err == nil {
			resp["herbs"] = len(recs)
		} else {
			resp["status"] = "degraded"
			resp["catalog_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// imageFields are the multipart field names accepted for the upload.
var imageFields = []string{"image", "file", "photo"}

func (s *server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	image, err := s.readUpload(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || errors.Is(err, errTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "image_required")
		return
	}

	res, err := s.engine.Identify(r.Context(), image)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnreadableImage):
		writeError(w, http.StatusBadRequest, "unreadable_image")
		return
	case errors.Is(err, domain.ErrNoIdentificationPossible):
		writeError(w, http.StatusServiceUnavailable, "no_identification_possible")
		return
	default:
		s.logger.Error("identify failed", "err", err, "request_id", mid.RequestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.events.Emit(r.Context(), domain.NewIdentifiedEvent(mid.RequestIDFrom(r.Context()), res, time.Now()))
	writeJSON(w, http.StatusOK, res)
}

var errTooLarge = errors.New("upload exceeds size limit")

func (s *server) readUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, err
	}
	for _, name := range imageFields {
		f, _, err := r.FormFile(name)
		if err != nil {
			continue
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > s.cfg.MaxUploadBytes {
			return nil, errTooLarge
		}
		return data, nil
	}
	return nil, errors.New("no image field")
}

// herbJSON is a catalog record without its embedding.
type herbJSON struct {
	domain.HerbRecord
	HasEmbedding bool `json:"has_embedding"`
}

func toHerbJSON(h domain.HerbRecord) herbJSON {
	return herbJSON{HerbRecord: h, HasEmbedding: h.HasEmbedding()}
}

func (s *server) handleHerbs(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		h, err := s.catalog.FindByName(r.Context(), name)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "herb_not_found")
			return
		}
		if err != nil {
			s.logger.Error("herb lookup failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, toHerbJSON(h))
		return
	}

	recs, err := s.catalog.AllRecords(r.Context())
	if err != nil {
		s.logger.Error("list herbs failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := fn.Map(recs, toHerbJSON)
	writeJSON(w, http.StatusOK, map[string]any{"herbs": out, "count": len(out)})
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
