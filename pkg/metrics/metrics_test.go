package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("test_total", "A test counter")
	c.Inc()
	c.Inc()
	c.Add(5)
	if c.Value() != 7 {
		t.Fatalf("expected 7, got %d", c.Value())
	}
	if r.Counter("test_total", "") != c {
		t.Fatal("expected same counter instance")
	}
}

func TestGauge(t *testing.T) {
	g := New().Gauge("inflight", "")
	g.Set(42)
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 43 {
		t.Fatalf("expected 43, got %d", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := New().Histogram("latency_seconds", "", []float64{1.0, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.8, 2.0} {
		h.Observe(v)
	}

	buckets, counts, sum, count := h.snapshot()
	if count != 5 || sum != 0.05+0.1+0.3+0.8+2.0 {
		t.Fatalf("count=%d sum=%f", count, sum)
	}
	if buckets[0] != 0.1 || buckets[2] != 1.0 {
		t.Fatalf("buckets not sorted: %v", buckets)
	}
	// 0.1 lands in its own bucket since bounds are inclusive.
	want := []uint64{2, 1, 1}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("bucket %g = %d, want %d", buckets[i], counts[i], want[i])
		}
	}
}

func TestHistogramConcurrent(t *testing.T) {
	h := New().Histogram("x", "", nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Observe(0.01)
			}
		}()
	}
	wg.Wait()
	if _, _, _, count := h.snapshot(); count != 800 {
		t.Fatalf("count = %d", count)
	}
}

func TestWithLabels(t *testing.T) {
	tests := []struct {
		name string
		kvs  []string
		want string
	}{
		{"foo_total", []string{"source", "provider", "step", "page"}, `foo_total{source="provider",step="page"}`},
		{"foo_total", []string{"name", `say "hi"\n`}, `foo_total{name="say \"hi\"\\n"}`},
		{"foo_total", []string{"name", "a\nb"}, `foo_total{name="a\nb"}`},
		{"bar", nil, "bar"},
		{"bar", []string{"odd"}, "bar"},
	}
	for _, tt := range tests {
		if got := WithLabels(tt.name, tt.kvs...); got != tt.want {
			t.Errorf("WithLabels(%q, %q) = %q, want %q", tt.name, tt.kvs, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter("identifications_total", "Identifications").Add(10)
	r.Counter(WithLabels("identifications_total", "source", "local-match"), "").Add(7)
	r.Gauge("inflight", "In flight").Set(2)
	h := r.Histogram("identify_seconds", "Latency", []float64{0.1, 0.5})
	h.Observe(0.05)
	h.Observe(0.3)
	lh := r.Histogram(WithLabels("stage_seconds", "stage", "local"), "", []float64{1})
	lh.Observe(0.5)

	out := r.Render()
	for _, line := range []string{
		"# HELP identifications_total Identifications",
		"# TYPE identifications_total counter",
		"identifications_total 10",
		`identifications_total{source="local-match"} 7`,
		"# TYPE inflight gauge",
		"inflight 2",
		"# TYPE identify_seconds histogram",
		`identify_seconds_bucket{le="0.1"} 1`,
		`identify_seconds_bucket{le="0.5"} 2`,
		`identify_seconds_bucket{le="+Inf"} 2`,
		"identify_seconds_count 2",
		`stage_seconds_bucket{stage="local",le="1"} 1`,
		`stage_seconds_sum{stage="local"} 0.5`,
		`stage_seconds_count{stage="local"} 1`,
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("missing %q in:\n%s", line, out)
		}
	}
	if strings.Count(out, "# TYPE identifications_total") != 1 {
		t.Error("family header rendered more than once")
	}
	if strings.Index(out, "identifications_total") > strings.Index(out, "inflight") {
		t.Error("families should render in registration order")
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("test_total", "test").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "test_total 1") {
		t.Error("missing metric in handler output")
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"foo_total", "foo_total"},
		{`foo_total{k="v"}`, "foo_total"},
		{`foo{a="1",b="2"}`, "foo"},
	}
	for _, tt := range tests {
		if got := baseName(tt.in); got != tt.want {
			t.Errorf("baseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
