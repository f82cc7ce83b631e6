package identify

import (
	"errors"

	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/pkg/fn"
	"github.com/herbid/herbid/pkg/metrics"
)

// Metric names exported by the engine.
const (
	MetricIdentifications  = "herbid_identifications_total"
	MetricIdentifySeconds  = "herbid_identify_seconds"
	MetricProviderFailures = "herbid_provider_failures_total"
	MetricUsesStep         = "herbid_uses_step_total"
	MetricFatal            = "herbid_fatal_total"
	MetricInFlight         = "herbid_identify_inflight"
)

// Metrics records engine counters into a registry.
type Metrics struct {
	reg      *metrics.Registry
	seconds  *metrics.Histogram
	fatal    *metrics.Counter
	inFlight *metrics.Gauge
}

// NewMetrics registers the engine metrics on reg. A nil registry gets a
// private one.
func NewMetrics(reg *metrics.Registry) *Metrics {
	if reg == nil {
		reg = metrics.New()
	}
	return &Metrics{
		reg:      reg,
		seconds:  reg.Histogram(MetricIdentifySeconds, "Wall-clock time per identification request.", nil),
		fatal:    reg.Counter(MetricFatal, "Requests that ended with no identification possible."),
		inFlight: reg.Gauge(MetricInFlight, "Identifications currently running."),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *metrics.Registry { return m.reg }

func (m *Metrics) started() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) identified(source domain.Source, seconds float64) {
	m.reg.Counter(metrics.WithLabels(MetricIdentifications, "source", string(source)), "Identifications by winning stage.").Inc()
	m.seconds.Observe(seconds)
}

func (m *Metrics) providerFailed(err error) {
	m.reg.Counter(metrics.WithLabels(MetricProviderFailures, "kind", failureKind(err)), "Provider calls that fell through to local matching.").Inc()
}

func (m *Metrics) usesStep(step string) {
	m.reg.Counter(metrics.WithLabels(MetricUsesStep, "step", step), "Uses text resolutions by step.").Inc()
}

func (m *Metrics) fatalFailure(seconds float64) {
	m.fatal.Inc()
	m.seconds.Observe(seconds)
}

func failureKind(err error) string {
	var panicked *fn.PanicError
	switch {
	case errors.As(err, &panicked):
		return "panic"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrProviderResponse):
		return "response"
	default:
		return "other"
	}
}
