// Package identify runs the identification fallback chain: the external
// provider first, then local similarity matching, then a degraded sample
// from the catalog. Uses text is resolved for whichever name pair won.
package identify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/engine/embedding"
	"github.com/herbid/herbid/engine/matcher"
	"github.com/herbid/herbid/engine/provider"
	"github.com/herbid/herbid/pkg/fn"
)

// UsesResolver produces uses text and reports the step that produced it.
type UsesResolver interface {
	Resolve(ctx context.Context, scientific, common string) (string, string)
}

// Options configures the engine.
type Options struct {
	// Alternatives is the number of runner-up local matches reported.
	Alternatives int
	// RejectLowConfidence treats a low-confidence provider answer as a
	// provider failure.
	RejectLowConfidence bool
	Metrics             *Metrics
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Alternatives: 4}
}

// Engine is safe for concurrent use. It holds no per-request state.
type Engine struct {
	provider  provider.Adapter
	extractor embedding.Extractor
	index     matcher.Index
	catalog   catalog.Catalog
	uses      UsesResolver
	opts      Options
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	providerStage fn.Stage[[]byte, domain.Identification]
	localStage    fn.Stage[[]byte, localHit]
	sampleStage   fn.Stage[struct{}, domain.HerbRecord]
}

// New wires an engine. A nil provider behaves like provider.Disabled; a nil
// extractor or index disables local matching.
func New(p provider.Adapter, ext embedding.Extractor, idx matcher.Index, cat catalog.Catalog, uses UsesResolver, opts Options, logger *slog.Logger) *Engine {
	if p == nil {
		p = provider.Disabled{}
	}
	if opts.Alternatives < 0 {
		opts.Alternatives = 0
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		provider:  p,
		extractor: ext,
		index:     idx,
		catalog:   cat,
		uses:      uses,
		opts:      opts,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       time.Now,
	}
	e.providerStage = fn.TracedStage("identify.provider", fn.RecoverStage(e.tryProvider))
	e.localStage = fn.TracedStage("identify.local", fn.RecoverStage(e.tryLocal))
	e.sampleStage = fn.TracedStage("identify.sample", fn.RecoverStage(e.trySample))
	return e
}

// errNoLocalMatch means the local stage ran but nothing cleared the threshold.
var errNoLocalMatch = errors.New("identify: no local match above threshold")

type localHit struct {
	match        matcher.Match
	alternatives []domain.Alternative
}

// outcome is the winning identification before uses text is attached.
type outcome struct {
	id           domain.Identification
	alternatives []domain.Alternative
}

// Identify runs the fallback chain for one image. The only errors returned
// are a domain.ErrUnreadableImage validation failure and
// *domain.NoIdentificationError when every stage failed and the catalog is
// empty.
func (e *Engine) Identify(ctx context.Context, image []byte) (domain.IdentificationResult, error) {
	start := e.now()
	defer e.metrics.started()()
	if _, err := embedding.Probe(image); err != nil {
		return domain.IdentificationResult{}, err
	}

	out, err := e.decide(ctx, image)
	if err != nil {
		elapsed := e.elapsed(start)
		e.metrics.fatalFailure(elapsed)
		e.logger.Error("identification impossible", "err", err, "elapsed", elapsed)
		return domain.IdentificationResult{}, err
	}

	text, step := e.resolveUses(ctx, out.id)
	e.metrics.usesStep(step)

	elapsed := e.elapsed(start)
	e.metrics.identified(out.id.Source, elapsed)
	e.logger.Info("identified",
		"source", out.id.Source,
		"scientific_name", out.id.ScientificName,
		"score", out.id.Score,
		"uses_step", step,
		"elapsed", elapsed,
	)

	return domain.IdentificationResult{
		CommonName:     out.id.CommonName,
		ScientificName: out.id.ScientificName,
		Uses:           text,
		ProcessingTime: elapsed,
		Source:         out.id.Source,
		Score:          out.id.Score,
		Degraded:       out.id.Source.Degraded(),
		LowConfidence:  out.id.LowConfidence,
		Alternatives:   out.alternatives,
	}, nil
}

// decide walks TRY_PROVIDER, TRY_LOCAL and TRY_SAMPLE in order.
func (e *Engine) decide(ctx context.Context, image []byte) (outcome, error) {
	var failures []error

	id, err := e.providerStage(ctx, image).Unwrap()
	if err == nil {
		return outcome{id: id}, nil
	}
	e.metrics.providerFailed(err)
	e.logger.Warn("falling back", "stage", "provider", "provider", e.provider.Name(), "err", err)
	failures = append(failures, err)

	hit, err := e.localStage(ctx, image).Unwrap()
	if err == nil {
		return outcome{id: identificationFromRecord(hit.match.Record, hit.match.Score, domain.SourceLocalMatch), alternatives: hit.alternatives}, nil
	}
	e.logger.Warn("falling back", "stage", "local", "err", err)
	failures = append(failures, err)

	rec, err := e.sampleStage(ctx, struct{}{}).Unwrap()
	if err == nil {
		e.logger.Warn("returning degraded sample", "record_id", rec.ID)
		return outcome{id: identificationFromRecord(rec, 0, domain.SourceSampleFallback)}, nil
	}
	failures = append(failures, err)
	return outcome{}, &domain.NoIdentificationError{Cause: errors.Join(failures...)}
}

func (e *Engine) tryProvider(ctx context.Context, image []byte) fn.Result[domain.Identification] {
	id, err := e.provider.Identify(ctx, image)
	if err != nil {
		return fn.Err[domain.Identification](err)
	}
	if id.LowConfidence && e.opts.RejectLowConfidence {
		return fn.Err[domain.Identification](&domain.ProviderError{
			Provider: e.provider.Name(),
			Op:       "identify",
			Wrapped:  domain.ErrProviderResponse,
			Detail:   fmt.Sprintf("confidence %.3f below minimum", id.Score),
		})
	}
	id.Source = domain.SourceProvider
	if id.CommonName == "" {
		id.CommonName = id.ScientificName
	}
	return fn.Ok(id)
}

func (e *Engine) tryLocal(ctx context.Context, image []byte) fn.Result[localHit] {
	if e.extractor == nil || e.index == nil {
		return fn.Errf[localHit]("identify: local matching not configured")
	}
	vec, err := e.extractor.Extract(ctx, image)
	if err != nil {
		return fn.Err[localHit](err)
	}
	m, ok, err := e.index.Match(ctx, vec, e.extractor.Model())
	if err != nil {
		return fn.Err[localHit](err)
	}
	if !ok {
		return fn.Err[localHit](errNoLocalMatch)
	}
	return fn.Ok(localHit{match: m, alternatives: e.alternatives(ctx, vec, m.Record.ID)})
}

// alternatives lists runner-up matches. Failures only drop the list.
func (e *Engine) alternatives(ctx context.Context, vec []float32, winner string) []domain.Alternative {
	if e.opts.Alternatives == 0 {
		return nil
	}
	ranked, err := e.index.TopK(ctx, vec, e.extractor.Model(), e.opts.Alternatives+1)
	if err != nil {
		e.logger.Debug("alternatives unavailable", "err", err)
		return nil
	}
	var out []domain.Alternative
	for _, m := range ranked {
		if m.Record.ID == winner {
			continue
		}
		out = append(out, domain.Alternative{
			CommonName:     m.Record.CommonName,
			ScientificName: m.Record.ScientificName,
			Score:          m.Score,
		})
		if len(out) == e.opts.Alternatives {
			break
		}
	}
	return out
}

func (e *Engine) trySample(ctx context.Context, _ struct{}) fn.Result[domain.HerbRecord] {
	if e.catalog == nil {
		return fn.Err[domain.HerbRecord](domain.ErrEmptyCatalog)
	}
	rec, err := e.catalog.SampleAny(ctx)
	return fn.FromPair(rec, err)
}

func (e *Engine) resolveUses(ctx context.Context, id domain.Identification) (string, string) {
	if e.uses != nil {
		if text, step := e.uses.Resolve(ctx, id.ScientificName, id.CommonName); text != "" {
			return text, step
		}
	}
	return fallbackUses(id), "default"
}

func (e *Engine) elapsed(start time.Time) float64 {
	d := e.now().Sub(start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

func identificationFromRecord(h domain.HerbRecord, score float64, source domain.Source) domain.Identification {
	return domain.Identification{
		ScientificName: h.ScientificName,
		CommonName:     domain.DisplayName(h.CommonName, h.ScientificName),
		Score:          score,
		Source:         source,
		RecordID:       h.ID,
	}
}

// fallbackUses covers an engine built without a resolver.
func fallbackUses(id domain.Identification) string {
	name := domain.DisplayName(id.CommonName, id.ScientificName)
	if name == "" {
		name = "this plant"
	}
	return fmt.Sprintf("No documented medicinal uses are available for %s.", name)
}
