package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/herbid/herbid/engine/domain"
)

var fakeImage = []byte("\x89PNG fake image bytes")

func TestPlantNetIdentify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/identify/all" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-key") != "secret" {
			t.Errorf("api key not sent")
		}
		file, _, err := r.FormFile("images")
		if err != nil {
			t.Errorf("missing image part: %v", err)
		} else {
			got, _ := io.ReadAll(file)
			if string(got) != string(fakeImage) {
				t.Errorf("image bytes not forwarded")
			}
		}
		w.Write([]byte(`{"results":[{"score":0.05,"species":{"scientificNameWithoutAuthor":"Ocimum tenuiflorum","commonNames":["Holy basil","Tulsi"]}}]}`))
	}))
	defer srv.Close()

	p := NewPlantNet(Options{APIKey: "secret", URL: srv.URL, MinConfidence: DefaultMinConfidence}, nil)
	id, err := p.Identify(context.Background(), fakeImage)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id.ScientificName != "Ocimum tenuiflorum" || id.CommonName != "Holy basil" {
		t.Fatalf("got %+v", id)
	}
	if !id.LowConfidence {
		t.Fatal("score 0.05 should be flagged low confidence")
	}
}

func TestPlantIDIdentify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "secret" {
			t.Errorf("missing Api-Key header")
		}
		var req plantIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Images) != 1 {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"result":{"classification":{"suggestions":[{"name":"Azadirachta indica","probability":0.9}]}}}`))
	}))
	defer srv.Close()

	p := NewPlantID(Options{APIKey: "secret", URL: srv.URL, MinConfidence: DefaultMinConfidence}, nil)
	id, err := p.Identify(context.Background(), fakeImage)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id.CommonName != "Azadirachta indica" || id.LowConfidence {
		t.Fatalf("got %+v", id)
	}
}

func TestIdentifyWithoutKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	p := NewPlantNet(Options{URL: srv.URL}, nil)
	_, err := p.Identify(context.Background(), fakeImage)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "plantnet" {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if calls.Load() != 0 {
		t.Fatal("no request should be sent without credentials")
	}
}

func TestIdentifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewPlantNet(Options{APIKey: "k", URL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := p.Identify(context.Background(), fakeImage)
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
}

func TestIdentifyStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{"message":"Invalid API key"}`, domain.ErrProviderUnavailable},
		{http.StatusTooManyRequests, `{}`, domain.ErrProviderUnavailable},
		{http.StatusBadGateway, `upstream`, domain.ErrProviderUnavailable},
		{http.StatusNotFound, `{"message":"Species not found"}`, domain.ErrProviderResponse},
		{http.StatusOK, `{"results":[]}`, domain.ErrProviderResponse},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))
		p := NewPlantNet(Options{APIKey: "k", URL: srv.URL}, nil)
		_, err := p.Identify(context.Background(), fakeImage)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		srv.Close()
	}
}

func TestBreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewPlantNet(Options{APIKey: "k", URL: srv.URL}, nil)
	for i := 0; i < 5; i++ {
		_, err := p.Identify(context.Background(), fakeImage)
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("call %d: expected ErrProviderUnavailable, got %v", i, err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected breaker to stop calls after 3 failures, got %d", calls.Load())
	}
}

func TestBreakerIgnoresBadAnswers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	p := NewPlantNet(Options{APIKey: "k", URL: srv.URL}, nil)
	for i := 0; i < 5; i++ {
		p.Identify(context.Background(), fakeImage)
	}
	if calls.Load() != 5 {
		t.Fatalf("empty results must not trip the breaker, got %d calls", calls.Load())
	}
}

func TestFactory(t *testing.T) {
	for kind, want := range map[string]string{"plantnet": "plantnet", "plantid": "plantid", "none": "none", "": "none"} {
		a, err := New(kind, Options{}, nil)
		if err != nil {
			t.Fatalf("New(%q): %v", kind, err)
		}
		if a.Name() != want {
			t.Errorf("New(%q).Name() = %q", kind, a.Name())
		}
	}
	if _, err := New("inaturalist", Options{}, nil); err == nil || !strings.Contains(err.Error(), "inaturalist") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
	if _, err := (Disabled{}).Identify(context.Background(), fakeImage); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
