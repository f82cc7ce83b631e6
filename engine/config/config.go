// Package config loads process configuration. Values come from built-in
// defaults, then an optional YAML file named by HERBID_CONFIG, then
// environment variables. Configuration is read once at start.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/embedding"
	"github.com/herbid/herbid/engine/matcher"
	"github.com/herbid/herbid/engine/provider"
	"github.com/herbid/herbid/engine/wiki"
)

// FileEnv names the variable holding the optional YAML file path.
const FileEnv = "HERBID_CONFIG"

// Extractor kinds.
const (
	ExtractorHistogram  = "histogram"
	ExtractorWorkerHTTP = "worker-http"
	ExtractorWorkerGRPC = "worker-grpc"
)

// Matcher kinds.
const (
	MatcherLinear = "linear"
	MatcherQdrant = "qdrant"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Wiki      WikiConfig      `yaml:"wiki"`
	Uses      UsesConfig      `yaml:"uses"`
	Events    EventsConfig    `yaml:"events"`
}

type ServerConfig struct {
	Port           string `yaml:"port"`
	CORSOrigin     string `yaml:"cors_origin"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// RequestsPerMinute limits identify calls per client address. Zero
	// disables the limit.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type ProviderConfig struct {
	Kind          string        `yaml:"kind"`
	APIKey        string        `yaml:"api_key"`
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	MinConfidence float64       `yaml:"min_confidence"`
	Project       string        `yaml:"project"`
	Language      string        `yaml:"language"`
}

type ExtractorConfig struct {
	Kind      string        `yaml:"kind"`
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
}

type MatcherConfig struct {
	Kind             string  `yaml:"kind"`
	Threshold        float64 `yaml:"threshold"`
	QdrantURL        string  `yaml:"qdrant_url"`
	QdrantCollection string  `yaml:"qdrant_collection"`
	Alternatives     int     `yaml:"alternatives"`
}

type CatalogConfig struct {
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path"`
	Neo4jURL  string `yaml:"neo4j_url"`
	Neo4jUser string `yaml:"neo4j_user"`
	Neo4jPass string `yaml:"neo4j_pass"`
}

type WikiConfig struct {
	URL            string        `yaml:"url"`
	UserAgent      string        `yaml:"user_agent"`
	SummaryTimeout time.Duration `yaml:"summary_timeout"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
	Rate           float64       `yaml:"rate"`
	CachePath      string        `yaml:"cache_path"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

type UsesConfig struct {
	MaxSentences int      `yaml:"max_sentences"`
	MaxChars     int      `yaml:"max_chars"`
	Keywords     []string `yaml:"keywords"`
}

type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              "8080",
			CORSOrigin:        "*",
			MaxUploadBytes:    10 << 20,
			RequestsPerMinute: 60,
		},
		Provider: ProviderConfig{
			Kind:          provider.KindPlantNet,
			Timeout:       30 * time.Second,
			MinConfidence: provider.DefaultMinConfidence,
			Project:       "all",
			Language:      "en",
		},
		Extractor: ExtractorConfig{
			Kind:      ExtractorHistogram,
			Timeout:   20 * time.Second,
			Model:     "mobilenet_v2_avgpool",
			Dimension: 1280,
		},
		Matcher: MatcherConfig{
			Kind:             MatcherLinear,
			Threshold:        matcher.DefaultThreshold,
			QdrantURL:        "localhost:6334",
			QdrantCollection: "herbs",
			Alternatives:     4,
		},
		Catalog: CatalogConfig{
			Kind:      catalog.KindSQLite,
			Path:      catalog.DefaultPath(),
			Neo4jURL:  "neo4j://localhost:7687",
			Neo4jUser: "neo4j",
		},
		Wiki: WikiConfig{
			URL:            wiki.DefaultURL,
			UserAgent:      wiki.DefaultOptions().UserAgent,
			SummaryTimeout: 5 * time.Second,
			PageTimeout:    8 * time.Second,
			Rate:           10,
			CacheTTL:       wiki.DefaultCacheTTL,
		},
		Uses: UsesConfig{
			MaxSentences: 6,
			MaxChars:     900,
		},
		Events: EventsConfig{
			Subject: "herbid.identified",
		},
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config using getenv for every variable lookup.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()
	if path := getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	e := env{get: getenv}
	cfg.applyEnv(&e)
	if err := errors.Join(e.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(e *env) {
	c.Server.Port = e.str("PORT", c.Server.Port)
	c.Server.CORSOrigin = e.str("CORS_ORIGIN", c.Server.CORSOrigin)
	c.Server.MaxUploadBytes = int64(e.integer("MAX_UPLOAD_BYTES", int(c.Server.MaxUploadBytes)))
	c.Server.RequestsPerMinute = e.integer("RATE_LIMIT_PER_MINUTE", c.Server.RequestsPerMinute)

	c.Provider.Kind = e.str("PROVIDER", c.Provider.Kind)
	c.Provider.APIKey = e.str("PROVIDER_API_KEY", c.Provider.APIKey)
	c.Provider.URL = e.str("PROVIDER_URL", c.Provider.URL)
	c.Provider.Timeout = e.duration("PROVIDER_TIMEOUT", c.Provider.Timeout)
	c.Provider.MinConfidence = e.number("PROVIDER_MIN_CONFIDENCE", c.Provider.MinConfidence)
	c.Provider.Project = e.str("PROVIDER_PROJECT", c.Provider.Project)
	c.Provider.Language = e.str("PROVIDER_LANGUAGE", c.Provider.Language)

	c.Extractor.Kind = e.str("EXTRACTOR", c.Extractor.Kind)
	c.Extractor.URL = e.str("EXTRACTOR_URL", c.Extractor.URL)
	c.Extractor.Timeout = e.duration("EXTRACTOR_TIMEOUT", c.Extractor.Timeout)
	c.Extractor.Model = e.str("EXTRACTOR_MODEL", c.Extractor.Model)
	c.Extractor.Dimension = e.integer("EMBEDDING_DIM", c.Extractor.Dimension)

	c.Matcher.Kind = e.str("MATCHER", c.Matcher.Kind)
	c.Matcher.Threshold = e.number("SIMILARITY_THRESHOLD", c.Matcher.Threshold)
	c.Matcher.QdrantURL = e.str("QDRANT_URL", c.Matcher.QdrantURL)
	c.Matcher.QdrantCollection = e.str("QDRANT_COLLECTION", c.Matcher.QdrantCollection)
	c.Matcher.Alternatives = e.integer("MATCH_ALTERNATIVES", c.Matcher.Alternatives)

	c.Catalog.Kind = e.str("CATALOG", c.Catalog.Kind)
	c.Catalog.Path = e.str("CATALOG_PATH", c.Catalog.Path)
	c.Catalog.Neo4jURL = e.str("NEO4J_URL", c.Catalog.Neo4jURL)
	c.Catalog.Neo4jUser = e.str("NEO4J_USER", c.Catalog.Neo4jUser)
	c.Catalog.Neo4jPass = e.str("NEO4J_PASS", c.Catalog.Neo4jPass)

	c.Wiki.URL = e.str("WIKI_URL", c.Wiki.URL)
	c.Wiki.UserAgent = e.str("WIKI_USER_AGENT", c.Wiki.UserAgent)
	c.Wiki.SummaryTimeout = e.duration("WIKI_SUMMARY_TIMEOUT", c.Wiki.SummaryTimeout)
	c.Wiki.PageTimeout = e.duration("WIKI_PAGE_TIMEOUT", c.Wiki.PageTimeout)
	c.Wiki.Rate = e.number("WIKI_RATE", c.Wiki.Rate)
	c.Wiki.CachePath = e.str("WIKI_CACHE_PATH", c.Wiki.CachePath)
	c.Wiki.CacheTTL = e.duration("WIKI_CACHE_TTL", c.Wiki.CacheTTL)

	c.Uses.MaxSentences = e.integer("USES_MAX_SENTENCES", c.Uses.MaxSentences)
	c.Uses.MaxChars = e.integer("USES_MAX_CHARS", c.Uses.MaxChars)
	c.Uses.Keywords = e.list("USES_KEYWORDS", c.Uses.Keywords)

	c.Events.NATSURL = e.str("NATS_URL", c.Events.NATSURL)
	c.Events.Subject = e.str("NATS_SUBJECT", c.Events.Subject)
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider.Kind {
	case provider.KindPlantNet, provider.KindPlantID, provider.KindNone, "":
	default:
		errs = append(errs, fmt.Errorf("PROVIDER must be plantnet, plantid or none, got %q", c.Provider.Kind))
	}
	switch c.Extractor.Kind {
	case ExtractorHistogram:
	case ExtractorWorkerHTTP, ExtractorWorkerGRPC:
		if c.Extractor.URL == "" {
			errs = append(errs, fmt.Errorf("EXTRACTOR_URL is required for %s", c.Extractor.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EXTRACTOR %q", c.Extractor.Kind))
	}
	switch c.Matcher.Kind {
	case MatcherLinear, MatcherQdrant:
	default:
		errs = append(errs, fmt.Errorf("unknown MATCHER %q", c.Matcher.Kind))
	}
	switch c.Catalog.Kind {
	case catalog.KindSQLite, catalog.KindMemory, catalog.KindNeo4j:
	default:
		errs = append(errs, fmt.Errorf("unknown CATALOG %q", c.Catalog.Kind))
	}
	if c.Matcher.Threshold < -1 || c.Matcher.Threshold > 1 {
		errs = append(errs, fmt.Errorf("SIMILARITY_THRESHOLD must be in [-1,1], got %g", c.Matcher.Threshold))
	}
	if c.Provider.MinConfidence < 0 || c.Provider.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("PROVIDER_MIN_CONFIDENCE must be in [0,1], got %g", c.Provider.MinConfidence))
	}
	if c.Extractor.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Extractor.Dimension))
	}
	if c.Uses.MaxSentences <= 0 || c.Uses.MaxChars <= 0 {
		errs = append(errs, errors.New("USES_MAX_SENTENCES and USES_MAX_CHARS must be positive"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// WorkerOpts maps the extractor section onto embedding options.
func (c ExtractorConfig) WorkerOpts() embedding.WorkerOpts {
	return embedding.WorkerOpts{URL: c.URL, Model: c.Model, Dimension: c.Dimension, Timeout: c.Timeout}
}

// Options maps the provider section onto provider options.
func (c ProviderConfig) Options() provider.Options {
	return provider.Options{
		APIKey:        c.APIKey,
		URL:           c.URL,
		Timeout:       c.Timeout,
		MinConfidence: c.MinConfidence,
		Project:       c.Project,
		Language:      c.Language,
	}
}

// Options maps the catalog section onto catalog options.
func (c CatalogConfig) Options() catalog.Options {
	return catalog.Options{Kind: c.Kind, Path: c.Path, Neo4jURL: c.Neo4jURL, Neo4jUser: c.Neo4jUser, Neo4jPass: c.Neo4jPass}
}

// env reads typed variables and collects parse errors.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, fallback string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) number(key string, fallback float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *env) list(key string, fallback []string) []string {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
