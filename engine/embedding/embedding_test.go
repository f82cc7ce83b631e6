package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/herbid/herbid/engine/domain"
)

// --- helpers ---

func pngBytes(t *testing.T, w, h int, fill func(x, y int) color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func greenLeaf(x, y int) color.RGBA {
	if (x/8+y/8)%2 == 0 {
		return color.RGBA{R: 30, G: 140, B: 40, A: 255}
	}
	return color.RGBA{R: 90, G: 200, B: 70, A: 255}
}

func redFlower(x, _ int) color.RGBA {
	return color.RGBA{R: 220, G: uint8(x % 50), B: 60, A: 255}
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// --- decode ---

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("definitely not an image"))
	if !errors.Is(err, domain.ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage, got %v", err)
	}
}

func TestDecodeAcceptsPNG(t *testing.T) {
	_, format, err := Decode(pngBytes(t, 10, 10, greenLeaf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png, got %s", format)
	}
}

func TestProbe(t *testing.T) {
	if format, err := Probe(pngBytes(t, 4, 4, greenLeaf)); err != nil || format != "png" {
		t.Fatalf("Probe png: %q %v", format, err)
	}
	for _, bad := range [][]byte{nil, []byte("GIF89a"), []byte("\x89PNG truncated")} {
		if _, err := Probe(bad); !errors.Is(err, domain.ErrUnreadableImage) {
			t.Errorf("Probe(%q): expected ErrUnreadableImage, got %v", bad, err)
		}
	}
}

func TestPreprocessSize(t *testing.T) {
	img, _, err := Decode(pngBytes(t, 37, 91, greenLeaf))
	if err != nil {
		t.Fatal(err)
	}
	out := Preprocess(img)
	if out.Bounds().Dx() != InputSize || out.Bounds().Dy() != InputSize {
		t.Fatalf("expected %dx%d, got %v", InputSize, InputSize, out.Bounds())
	}
}

// --- histogram extractor ---

func TestHistogramDeterministic(t *testing.T) {
	ex := NewHistogramExtractor()
	data := pngBytes(t, 64, 64, greenLeaf)

	a, err := ex.Extract(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ex.Extract(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != HistogramDimension || len(a) != ex.Dimension() {
		t.Fatalf("expected %d dims, got %d", HistogramDimension, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
	if n := norm(a); math.Abs(n-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %v", n)
	}
}

func TestHistogramDistinguishesImages(t *testing.T) {
	ex := NewHistogramExtractor()
	leaf, _ := ex.Extract(context.Background(), pngBytes(t, 64, 64, greenLeaf))
	flower, _ := ex.Extract(context.Background(), pngBytes(t, 64, 64, redFlower))

	var dot float64
	for i := range leaf {
		dot += float64(leaf[i]) * float64(flower[i])
	}
	if dot > 0.99 {
		t.Fatalf("expected dissimilar vectors, cosine=%v", dot)
	}
}

func TestHistogramUnreadable(t *testing.T) {
	_, err := NewHistogramExtractor().Extract(context.Background(), []byte{1, 2, 3})
	if !errors.Is(err, domain.ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage, got %v", err)
	}
}

// --- codec ---

func TestVectorCodec(t *testing.T) {
	in := []float32{0.25, -1.5, 3e-7, 0}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: %v != %v", i, in[i], out[i])
		}
	}
	if v, err := DecodeVector(nil); err != nil || v != nil {
		t.Fatalf("expected nil vector, got %v %v", v, err)
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for ragged blob")
	}
}

func TestL2NormalizeZero(t *testing.T) {
	v := L2Normalize([]float32{0, 0})
	if v[0] != 0 || v[1] != 0 {
		t.Fatalf("zero vector changed: %v", v)
	}
}

// --- http worker ---

func TestHTTPExtractor(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req workerEmbedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "mobilenet_v2_avgpool" || req.Image == "" {
			t.Errorf("unexpected request %+v", req.Model)
		}
		json.NewEncoder(w).Encode(workerEmbedResp{Embedding: []float32{3, 4, 0}, Model: "mobilenet_v2_avgpool"})
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(WorkerOpts{URL: srv.URL, Model: "mobilenet_v2_avgpool", Dimension: 3})
	vec, err := ex.Extract(context.Background(), pngBytes(t, 8, 8, greenLeaf))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Fatalf("expected normalised [0.6 0.8 0], got %v", vec)
	}

	if _, err := ex.Extract(context.Background(), []byte("nope")); !errors.Is(err, domain.ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("unreadable image should not reach the worker, calls=%d", calls.Load())
	}
}

func TestHTTPExtractorDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(workerEmbedResp{Embedding: []float32{1, 2}})
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(WorkerOpts{URL: srv.URL, Dimension: 1280})
	if _, err := ex.Extract(context.Background(), pngBytes(t, 8, 8, greenLeaf)); err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestHTTPExtractorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(WorkerOpts{URL: srv.URL})
	if _, err := ex.Extract(context.Background(), pngBytes(t, 8, 8, greenLeaf)); err == nil {
		t.Fatal("expected error on 503")
	}
}

// --- grpc worker ---

type fakeConn struct {
	method string
	values []any
	model  string
	err    error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	if f.err != nil {
		return f.err
	}
	req := args.(*structpb.Struct)
	if req.GetFields()["image"].GetStringValue() == "" {
		return errors.New("missing image")
	}
	resp, err := structpb.NewStruct(map[string]any{"values": f.values, "model": f.model})
	if err != nil {
		return err
	}
	reply.(*structpb.Struct).Fields = resp.Fields
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not implemented")
}

func TestGRPCExtractor(t *testing.T) {
	conn := &fakeConn{values: []any{0.0, 2.0}, model: "m1"}
	ex := NewGRPCExtractorWithConn(conn, WorkerOpts{Model: "m1", Dimension: 2})

	vec, err := ex.Extract(context.Background(), pngBytes(t, 8, 8, greenLeaf))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if conn.method != EmbedImageMethod {
		t.Fatalf("unexpected method %s", conn.method)
	}
	if vec[0] != 0 || vec[1] != 1 {
		t.Fatalf("expected [0 1], got %v", vec)
	}
	if err := ex.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestGRPCExtractorModelMismatch(t *testing.T) {
	conn := &fakeConn{values: []any{1.0}, model: "other"}
	ex := NewGRPCExtractorWithConn(conn, WorkerOpts{Model: "m1"})
	if _, err := ex.Extract(context.Background(), pngBytes(t, 8, 8, greenLeaf)); err == nil {
		t.Fatal("expected model mismatch error")
	}
}

func TestGRPCExtractorRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		values []any
	}{
		{"string", []any{1.0, "x"}},
		{"null", []any{nil, 1.0}},
		{"nan", []any{math.NaN(), 1.0}},
		{"overflow", []any{1e300, 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{values: tt.values, model: "m1"}
			ex := NewGRPCExtractorWithConn(conn, WorkerOpts{Model: "m1", Dimension: 2})
			if vec, err := ex.Extract(context.Background(), pngBytes(t, 8, 8, greenLeaf)); err == nil {
				t.Fatalf("expected error, got %v", vec)
			}
		})
	}
}
