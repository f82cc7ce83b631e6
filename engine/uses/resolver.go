// Package uses produces descriptive medicinal-use text for an identified
// plant. It never fails: every lookup error falls through to the next step
// and the last step is a fixed message.
package uses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/wiki"
)

// TextSource is the encyclopedic text API used by the lookup steps.
type TextSource interface {
	Summary(ctx context.Context, title string) (string, error)
	PageText(ctx context.Context, title string) (string, error)
	Search(ctx context.Context, query string, limit int) ([]wiki.SearchHit, error)
}

// Options tunes text extraction and the lookup variants.
type Options struct {
	Keywords     []string
	MaxSentences int
	MaxChars     int
	// Qualifiers are appended to the common name in turn.
	Qualifiers []string
	// SearchTerms are combined with the name for free-text search.
	SearchTerms []string
	SearchLimit int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Keywords:     DefaultKeywords,
		MaxSentences: 6,
		MaxChars:     900,
		Qualifiers:   []string{"herb", "plant", "medicinal plant"},
		SearchTerms:  []string{"medicinal uses", "traditional medicine"},
		SearchLimit:  5,
	}
}

// Query is the name pair being resolved.
type Query struct {
	Scientific string
	Common     string
}

// Stripped is the scientific name without rank tokens.
func (q Query) Stripped() string { return StripRank(q.Scientific) }

// Genus is the genus of the scientific name.
func (q Query) Genus() string { return Genus(q.Scientific) }

// Strategy is one step of the chain. It reports false when it found nothing.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, q Query) (string, bool)
}

// Step names, reported alongside resolved text.
const (
	StepCatalog          = "catalog"
	StepSummary          = "summary-scientific"
	StepSummaryStripped  = "summary-stripped"
	StepSummaryGenus     = "summary-genus"
	StepSummaryCommon    = "summary-common"
	StepSummaryQualified = "summary-qualified"
	StepPage             = "page"
	StepSearch           = "search"
	StepDefault          = "default"
)

// Resolver runs the strategy chain.
type Resolver struct {
	catalog catalog.Catalog
	source  TextSource
	opts    Options
	logger  *slog.Logger
	steps   []Strategy
}

// New builds the standard chain. Either collaborator may be nil, in which
// case the steps that need it find nothing.
func New(c catalog.Catalog, src TextSource, opts Options, logger *slog.Logger) *Resolver {
	def := DefaultOptions()
	if len(opts.Keywords) == 0 {
		opts.Keywords = def.Keywords
	}
	if opts.MaxSentences <= 0 {
		opts.MaxSentences = def.MaxSentences
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	if opts.Qualifiers == nil {
		opts.Qualifiers = def.Qualifiers
	}
	if opts.SearchTerms == nil {
		opts.SearchTerms = def.SearchTerms
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = def.SearchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{catalog: c, source: src, opts: opts, logger: logger}
	r.steps = []Strategy{
		{StepCatalog, r.fromCatalog},
		{StepSummary, r.summaryOf(StepSummary, func(q Query) []string { return []string{q.Scientific} })},
		{StepSummaryStripped, r.summaryOf(StepSummaryStripped, func(q Query) []string { return variant(q.Stripped(), q.Scientific) })},
		{StepSummaryGenus, r.summaryOf(StepSummaryGenus, func(q Query) []string { return variant(q.Genus(), q.Scientific, q.Stripped()) })},
		{StepSummaryCommon, r.summaryOf(StepSummaryCommon, func(q Query) []string { return variant(q.Common, q.Scientific, q.Stripped(), q.Genus()) })},
		{StepSummaryQualified, r.summaryOf(StepSummaryQualified, r.qualified)},
		{StepPage, r.pageOf(func(q Query) []string { return dedupe(q.Scientific, q.Stripped(), q.Genus()) })},
		{StepSearch, r.fromSearch},
	}
	return r
}

// Steps returns the configured chain, default message excluded.
func (r *Resolver) Steps() []Strategy { return r.steps }

// ResolveUses returns non-empty text for the name pair.
func (r *Resolver) ResolveUses(ctx context.Context, scientific, common string) string {
	text, _ := r.Resolve(ctx, scientific, common)
	return text
}

// Resolve is ResolveUses that also reports which step produced the text.
func (r *Resolver) Resolve(ctx context.Context, scientific, common string) (string, string) {
	q := Query{Scientific: strings.TrimSpace(scientific), Common: strings.TrimSpace(common)}
	for _, s := range r.steps {
		if text, ok := r.run(ctx, s, q); ok {
			r.logger.Debug("uses resolved", "step", s.Name, "scientific_name", q.Scientific)
			return text, s.Name
		}
	}
	return DefaultMessage(q), StepDefault
}

// run invokes one step, treating a panic like any other failure.
func (r *Resolver) run(ctx context.Context, s Strategy, q Query) (text string, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("uses step panicked", "step", s.Name, "panic", p)
			text, ok = "", false
		}
	}()
	text, ok = s.Run(ctx, q)
	if ok && strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, ok
}

func (r *Resolver) fromCatalog(ctx context.Context, q Query) (string, bool) {
	if r.catalog == nil || q.Scientific == "" {
		return "", false
	}
	h, err := r.catalog.FindByScientificName(ctx, q.Scientific)
	if err != nil {
		r.logFailure(StepCatalog, q.Scientific, err)
		return "", false
	}
	if strings.TrimSpace(h.Uses) == "" {
		return "", false
	}
	return h.Uses, true
}

// summaryOf builds a step that tries the summary endpoint for each title.
func (r *Resolver) summaryOf(step string, titles func(Query) []string) func(context.Context, Query) (string, bool) {
	return r.lookup(step, titles, func(ctx context.Context, title string) (string, error) {
		return r.source.Summary(ctx, title)
	})
}

// pageOf builds a step that tries the full page text for each title.
func (r *Resolver) pageOf(titles func(Query) []string) func(context.Context, Query) (string, bool) {
	return r.lookup(StepPage, titles, func(ctx context.Context, title string) (string, error) {
		return r.source.PageText(ctx, title)
	})
}

func (r *Resolver) lookup(step string, titles func(Query) []string, fetch func(context.Context, string) (string, error)) func(context.Context, Query) (string, bool) {
	return func(ctx context.Context, q Query) (string, bool) {
		if r.source == nil {
			return "", false
		}
		for _, title := range titles(q) {
			if strings.TrimSpace(title) == "" {
				continue
			}
			if ctx.Err() != nil {
				return "", false
			}
			text, err := fetch(ctx, title)
			if err != nil {
				r.logFailure(step, title, err)
				continue
			}
			if out := r.extract(text); out != "" {
				return out, true
			}
		}
		return "", false
	}
}

func (r *Resolver) qualified(q Query) []string {
	if q.Common == "" {
		return nil
	}
	out := make([]string, 0, len(r.opts.Qualifiers))
	for _, qual := range r.opts.Qualifiers {
		out = append(out, q.Common+" "+qual)
	}
	return out
}

func (r *Resolver) fromSearch(ctx context.Context, q Query) (string, bool) {
	if r.source == nil {
		return "", false
	}
	for _, name := range dedupe(q.Scientific, q.Common) {
		for _, term := range r.opts.SearchTerms {
			if ctx.Err() != nil {
				return "", false
			}
			hits, err := r.source.Search(ctx, name+" "+term, r.opts.SearchLimit)
			if err != nil {
				r.logFailure(StepSearch, name, err)
				continue
			}
			snippets := make([]string, 0, len(hits))
			for _, h := range hits {
				s := strings.TrimSpace(h.Snippet)
				if s == "" {
					continue
				}
				if !strings.HasSuffix(s, ".") {
					s += "."
				}
				snippets = append(snippets, s)
			}
			if out := r.extract(strings.Join(snippets, "\n")); out != "" {
				return out, true
			}
		}
	}
	return "", false
}

func (r *Resolver) extract(text string) string {
	return Extract(text, r.opts.Keywords, r.opts.MaxSentences, r.opts.MaxChars)
}

func (r *Resolver) logFailure(step, name string, err error) {
	if errors.Is(err, wiki.ErrNotFound) {
		return
	}
	r.logger.Debug("uses step failed", "step", step, "name", name, "err", err)
}

// variant returns name unless it repeats one of the earlier variants.
func variant(name string, earlier ...string) []string {
	for _, e := range earlier {
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(name)) {
			return nil
		}
	}
	return []string{name}
}

// DefaultMessage is the text used when every lookup failed. It names the
// plant and its genus when they are known.
func DefaultMessage(q Query) string {
	const advice = "Consult a qualified herbalist or a botanical reference before any medicinal use."
	name := q.Common
	if name == "" {
		name = q.Scientific
	}
	genus := Genus(q.Scientific)
	switch {
	case name != "" && genus != "" && !strings.EqualFold(name, genus):
		return fmt.Sprintf("No documented medicinal uses were found for %s, a plant of the genus %s. %s", name, genus, advice)
	case genus != "":
		return fmt.Sprintf("No documented medicinal uses were found for plants of the genus %s. %s", genus, advice)
	case name != "":
		return fmt.Sprintf("No documented medicinal uses were found for %s. %s", name, advice)
	default:
		return "No documented medicinal uses were found for this plant. " + advice
	}
}
