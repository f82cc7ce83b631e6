// Package app assembles the engine and its collaborators from a Config.
// Shared resources are created once here and passed down explicitly.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/config"
	"github.com/herbid/herbid/engine/embedding"
	"github.com/herbid/herbid/engine/identify"
	"github.com/herbid/herbid/engine/matcher"
	"github.com/herbid/herbid/engine/provider"
	"github.com/herbid/herbid/engine/uses"
	"github.com/herbid/herbid/engine/wiki"
	"github.com/herbid/herbid/pkg/metrics"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config    config.Config
	Catalog   catalog.Store
	Extractor embedding.Extractor
	Index     matcher.Index
	// Qdrant is set when the matcher is backed by Qdrant.
	Qdrant   *matcher.QdrantIndex
	Provider provider.Adapter
	Wiki     *wiki.Client
	Uses     *uses.Resolver
	Engine   *identify.Engine
	Metrics  *metrics.Registry

	closers []io.Closer
}

// Build wires every component named by cfg. A nil registry gets a fresh one.
func Build(ctx context.Context, cfg config.Config, reg *metrics.Registry, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	a := &App{Config: cfg, Metrics: reg}

	store, err := catalog.Open(ctx, cfg.Catalog.Options())
	if err != nil {
		return nil, err
	}
	a.Catalog = store
	a.closers = append(a.closers, store)

	ext, err := NewExtractor(cfg.Extractor)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Extractor = ext
	if c, ok := ext.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	switch cfg.Matcher.Kind {
	case config.MatcherQdrant:
		q, err := matcher.NewQdrantIndex(cfg.Matcher.QdrantURL, cfg.Matcher.QdrantCollection, cfg.Matcher.Threshold, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Qdrant, a.Index = q, q
		a.closers = append(a.closers, q)
	default:
		a.Index = matcher.NewLinearIndex(store, cfg.Matcher.Threshold, logger)
	}

	p, err := provider.New(cfg.Provider.Kind, cfg.Provider.Options(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Provider = p

	wikiOpts := wiki.Options{
		URL:            cfg.Wiki.URL,
		UserAgent:      cfg.Wiki.UserAgent,
		SummaryTimeout: cfg.Wiki.SummaryTimeout,
		PageTimeout:    cfg.Wiki.PageTimeout,
		Rate:           cfg.Wiki.Rate,
	}
	if cfg.Wiki.CachePath != "" {
		cache, err := wiki.OpenBoltCache(cfg.Wiki.CachePath, cfg.Wiki.CacheTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if n, err := cache.Purge(); err != nil {
			logger.Warn("wiki cache purge failed", "path", cfg.Wiki.CachePath, "err", err)
		} else if n > 0 {
			logger.Info("wiki cache purged", "expired", n)
		}
		wikiOpts.Cache = cache
		a.closers = append(a.closers, cache)
	}
	a.Wiki = wiki.New(wikiOpts, logger)

	a.Uses = uses.New(store, a.Wiki, uses.Options{
		Keywords:     cfg.Uses.Keywords,
		MaxSentences: cfg.Uses.MaxSentences,
		MaxChars:     cfg.Uses.MaxChars,
	}, logger)

	a.Engine = identify.New(p, ext, a.Index, store, a.Uses, identify.Options{
		Alternatives: cfg.Matcher.Alternatives,
		Metrics:      identify.NewMetrics(reg),
	}, logger)

	records, embedded, err := a.RefreshCatalogStats(ctx)
	if err != nil {
		logger.Warn("catalog stats unavailable", "err", err)
	}
	logger.Info("engine ready",
		"catalog", cfg.Catalog.Kind,
		"records", records,
		"embedded", embedded,
		"provider", p.Name(),
		"extractor", ext.Model(),
		"matcher", cfg.Matcher.Kind,
	)
	return a, nil
}

// Catalog gauges maintained by RefreshCatalogStats.
const (
	MetricCatalogRecords  = "herbid_catalog_records"
	MetricCatalogEmbedded = "herbid_catalog_embedded"
)

// RefreshCatalogStats counts catalog records and those usable by the
// matcher with the current extractor, and publishes both as gauges.
func (a *App) RefreshCatalogStats(ctx context.Context) (records, embedded int, err error) {
	all, err := a.Catalog.AllRecords(ctx)
	if err != nil {
		return 0, 0, err
	}
	model := a.Extractor.Model()
	for _, h := range all {
		if h.HasEmbedding() && (h.EmbeddingModel == "" || h.EmbeddingModel == model) {
			embedded++
		}
	}
	a.Metrics.Gauge(MetricCatalogRecords, "Herb records in the catalog.").Set(int64(len(all)))
	a.Metrics.Gauge(MetricCatalogEmbedded, "Records with an embedding from the active extractor.").Set(int64(embedded))
	return len(all), embedded, nil
}

// NewExtractor returns the extractor named by cfg.Kind.
func NewExtractor(cfg config.ExtractorConfig) (embedding.Extractor, error) {
	switch cfg.Kind {
	case config.ExtractorHistogram, "":
		return embedding.NewHistogramExtractor(), nil
	case config.ExtractorWorkerHTTP:
		return embedding.NewHTTPExtractor(cfg.WorkerOpts()), nil
	case config.ExtractorWorkerGRPC:
		return embedding.DialGRPCExtractor(cfg.WorkerOpts())
	default:
		return nil, fmt.Errorf("app: unknown extractor %q", cfg.Kind)
	}
}

// Close releases every opened resource.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
