package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(nil))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %s", cfg.Server.Port)
	}
	if cfg.Provider.Kind != "plantnet" || cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("Provider = %+v", cfg.Provider)
	}
	if cfg.Provider.MinConfidence != 0.10 {
		t.Errorf("MinConfidence = %v", cfg.Provider.MinConfidence)
	}
	if cfg.Matcher.Threshold != 0.75 || cfg.Matcher.Kind != MatcherLinear {
		t.Errorf("Matcher = %+v", cfg.Matcher)
	}
	if cfg.Extractor.Kind != ExtractorHistogram || cfg.Extractor.Dimension != 1280 {
		t.Errorf("Extractor = %+v", cfg.Extractor)
	}
	if cfg.Wiki.SummaryTimeout != 5*time.Second || cfg.Wiki.PageTimeout != 8*time.Second {
		t.Errorf("Wiki = %+v", cfg.Wiki)
	}
	if cfg.Uses.MaxSentences != 6 || cfg.Uses.MaxChars != 900 {
		t.Errorf("Uses = %+v", cfg.Uses)
	}
	if cfg.Events.NATSURL != "" || cfg.Events.Subject != "herbid.identified" {
		t.Errorf("Events = %+v", cfg.Events)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"PORT":                 "9090",
		"PROVIDER":             "plantid",
		"PROVIDER_API_KEY":     "secret",
		"PROVIDER_TIMEOUT":     "12s",
		"SIMILARITY_THRESHOLD": "0.9",
		"CATALOG":              "memory",
		"USES_KEYWORDS":        "treat, heal ,,cure",
		"WIKI_CACHE_PATH":      "/tmp/wiki.db",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Provider.Kind != "plantid" || cfg.Provider.APIKey != "secret" {
		t.Errorf("unexpected %+v %+v", cfg.Server, cfg.Provider)
	}
	if cfg.Provider.Timeout != 12*time.Second {
		t.Errorf("Timeout = %v", cfg.Provider.Timeout)
	}
	if cfg.Matcher.Threshold != 0.9 {
		t.Errorf("Threshold = %v", cfg.Matcher.Threshold)
	}
	if cfg.Catalog.Kind != "memory" {
		t.Errorf("Catalog = %s", cfg.Catalog.Kind)
	}
	if strings.Join(cfg.Uses.Keywords, "|") != "treat|heal|cure" {
		t.Errorf("Keywords = %q", cfg.Uses.Keywords)
	}
	if cfg.Wiki.CachePath != "/tmp/wiki.db" {
		t.Errorf("CachePath = %s", cfg.Wiki.CachePath)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herbid.yaml")
	yaml := `
provider:
  kind: none
matcher:
  threshold: 0.8
  kind: qdrant
uses:
  max_sentences: 3
  keywords: [digest, tonic]
wiki:
  summary_timeout: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(envMap(map[string]string{
		FileEnv:                path,
		"SIMILARITY_THRESHOLD": "0.85",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Provider.Kind != "none" {
		t.Errorf("Provider.Kind = %s", cfg.Provider.Kind)
	}
	if cfg.Matcher.Threshold != 0.85 {
		t.Errorf("env should win over file, got %v", cfg.Matcher.Threshold)
	}
	if cfg.Matcher.Kind != MatcherQdrant || cfg.Matcher.QdrantCollection != "herbs" {
		t.Errorf("Matcher = %+v", cfg.Matcher)
	}
	if cfg.Uses.MaxSentences != 3 || cfg.Uses.MaxChars != 900 {
		t.Errorf("Uses = %+v", cfg.Uses)
	}
	if strings.Join(cfg.Uses.Keywords, ",") != "digest,tonic" {
		t.Errorf("Keywords = %v", cfg.Uses.Keywords)
	}
	if cfg.Wiki.SummaryTimeout != 2*time.Second {
		t.Errorf("SummaryTimeout = %v", cfg.Wiki.SummaryTimeout)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad duration", map[string]string{"PROVIDER_TIMEOUT": "soon"}, "PROVIDER_TIMEOUT"},
		{"bad float", map[string]string{"SIMILARITY_THRESHOLD": "high"}, "SIMILARITY_THRESHOLD"},
		{"threshold range", map[string]string{"SIMILARITY_THRESHOLD": "1.5"}, "SIMILARITY_THRESHOLD"},
		{"provider kind", map[string]string{"PROVIDER": "inaturalist"}, "PROVIDER"},
		{"worker url", map[string]string{"EXTRACTOR": "worker-http"}, "EXTRACTOR_URL"},
		{"catalog kind", map[string]string{"CATALOG": "postgres"}, "CATALOG"},
		{"missing file", map[string]string{FileEnv: "/nonexistent/herbid.yaml"}, "read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(envMap(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSectionOptions(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "k"
	if o := cfg.Provider.Options(); o.APIKey != "k" || o.Project != "all" {
		t.Errorf("provider options = %+v", o)
	}
	if o := cfg.Extractor.WorkerOpts(); o.Dimension != 1280 || o.Model != "mobilenet_v2_avgpool" {
		t.Errorf("worker opts = %+v", o)
	}
	if o := cfg.Catalog.Options(); o.Kind != "sqlite" || o.Path == "" {
		t.Errorf("catalog options = %+v", o)
	}
}
