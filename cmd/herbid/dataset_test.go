package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/config"
	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/engine/embedding"
	"github.com/herbid/herbid/pkg/fn"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func silentBar() *progressbar.ProgressBar { return progressbar.DefaultSilent(-1) }

func writePNG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 20), B: uint8(y * 20), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, buf.Bytes())
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHerbNameFromDir(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"holy_basil", "Holy Basil"},
		{"ALOE_VERA", "Aloe Vera"},
		{"lemon-grass", "Lemon Grass"},
		{"/data/set/curry__leaf_", "Curry Leaf"},
		{"neem", "Neem"},
	}
	for _, tt := range tests {
		if got := herbNameFromDir(tt.dir); got != tt.want {
			t.Errorf("herbNameFromDir(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestIsImage(t *testing.T) {
	for name, want := range map[string]bool{
		"leaf.jpg":        true,
		"LEAF.JPEG":       true,
		"dir/leaf.png":    true,
		"scan.webp":       true,
		"notes.txt":       false,
		"archive.png.zip": false,
		"jpg":             false,
	} {
		if got := isImage(name); got != want {
			t.Errorf("isImage(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFindImages(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "b.png"), 10)
	writePNG(t, filepath.Join(root, "A.JPG"), 20)
	writeFile(t, filepath.Join(root, "readme.md"), []byte("x"))
	writePNG(t, filepath.Join(root, "nested", "c.png"), 30)

	flat, err := findImages(root, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(root, "A.JPG"), filepath.Join(root, "b.png")}
	if strings.Join(flat, ",") != strings.Join(want, ",") {
		t.Fatalf("flat = %v, want %v", flat, want)
	}

	deep, err := findImages(root, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(deep) != 3 || deep[2] != filepath.Join(root, "nested", "c.png") {
		t.Fatalf("recursive = %v", deep)
	}
}

func TestMatchFilename(t *testing.T) {
	records := []domain.HerbRecord{
		{ID: "tulsi", CommonName: "Tulsi (Holy Basil)"},
		{ID: "neem", CommonName: "Neem"},
		{ID: "aloe", CommonName: "Aloe Vera"},
		{ID: "mint", CommonName: "Mint"},
	}
	tests := []struct {
		file   string
		wantID string
	}{
		{"/img/holy_basil_01.jpg", "tulsi"},
		{"Neem-leaf.PNG", "neem"},
		{"aloe.jpeg", "aloe"},
		{"peppermint.jpg", "mint"},
		{"herb1.jpeg", ""},
	}
	for _, tt := range tests {
		h, ok := matchFilename(tt.file, records)
		if tt.wantID == "" {
			if ok {
				t.Errorf("%s: unexpected match %s", tt.file, h.ID)
			}
			continue
		}
		if !ok || h.ID != tt.wantID {
			t.Errorf("%s: got %q (ok=%v), want %q", tt.file, h.ID, ok, tt.wantID)
		}
	}
}

func TestImportDataset(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "holy_basil", "b.png"), 200)
	writePNG(t, filepath.Join(root, "holy_basil", "a.png"), 100)
	writeFile(t, filepath.Join(root, "empty_herb", "notes.txt"), []byte("nothing"))
	writePNG(t, filepath.Join(root, "aloe_vera", "x.png"), 50)
	writeFile(t, filepath.Join(root, "broken", "x.png"), []byte("not a png"))

	store := catalog.NewMemoryCatalog(domain.HerbRecord{ID: "aloe-vera", CommonName: "Aloe Vera"})
	ext := embedding.NewHistogramExtractor()

	dirs, err := datasetDirs(root)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := importDataset(ctx, store, ext, dirs, silentBar(), quietLogger())
	if err != nil {
		t.Fatalf("importDataset: %v", err)
	}
	want := importReport{Imported: 1, Skipped: 1, Empty: 1, Failed: 1}
	if rep != want {
		t.Fatalf("report = %+v, want %+v", rep, want)
	}

	h, err := store.FindByName(ctx, "Holy Basil")
	if err != nil {
		t.Fatalf("imported herb missing: %v", err)
	}
	if h.ImagePath != filepath.Join(root, "holy_basil", "a.png") {
		t.Errorf("ImagePath = %q, want first image", h.ImagePath)
	}
	if !h.HasEmbedding() || h.EmbeddingModel != ext.Model() {
		t.Errorf("embedding not stored: len=%d model=%q", len(h.Embedding), h.EmbeddingModel)
	}

	// A second run finds everything already imported.
	rep, err = importDataset(ctx, store, ext, dirs, silentBar(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 0 || rep.Skipped != 2 {
		t.Fatalf("rerun report = %+v", rep)
	}
}

func TestImportDatasetStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := importDataset(ctx, catalog.NewMemoryCatalog(), embedding.NewHistogramExtractor(),
		[]string{t.TempDir()}, silentBar(), quietLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLinkImages(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "neem_leaf.png"), 80)
	writePNG(t, filepath.Join(dir, "unknown.png"), 90)
	writeFile(t, filepath.Join(dir, "turmeric.png"), []byte("garbage"))

	store := catalog.NewMemoryCatalog(
		domain.HerbRecord{ID: "neem", CommonName: "Neem", Uses: "keep me"},
		domain.HerbRecord{ID: "turmeric", CommonName: "Turmeric"},
	)
	ext := embedding.NewHistogramExtractor()
	images, err := findImages(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	rep, err := linkImages(ctx, store, ext, images, silentBar(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if rep != (linkReport{Linked: 1, Unmatched: 1, Failed: 1}) {
		t.Fatalf("report = %+v", rep)
	}
	h, _ := store.FindByName(ctx, "Neem")
	if !h.HasEmbedding() || h.ImagePath != filepath.Join(dir, "neem_leaf.png") {
		t.Fatalf("neem not linked: %+v", h)
	}
	if h.Uses != "keep me" {
		t.Errorf("Uses overwritten: %q", h.Uses)
	}
}

func TestBackfillTargets(t *testing.T) {
	records := []domain.HerbRecord{
		{ID: "no-image"},
		{ID: "fresh", ImagePath: "a.png"},
		{ID: "done", ImagePath: "b.png", Embedding: []float32{1}, EmbeddingModel: "m1"},
		{ID: "stale", ImagePath: "c.png", Embedding: []float32{1}, EmbeddingModel: "old"},
	}
	ids := func(hs []domain.HerbRecord) string {
		return strings.Join(fn.Map(hs, func(h domain.HerbRecord) string { return h.ID }), ",")
	}
	if got := ids(backfillTargets(records, "m1", false)); got != "fresh" {
		t.Errorf("targets = %s, want fresh", got)
	}
	if got := ids(backfillTargets(records, "m1", true)); got != "fresh,stale" {
		t.Errorf("restamp targets = %s, want fresh,stale", got)
	}
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	writePNG(t, good, 60)

	store := catalog.NewMemoryCatalog(
		domain.HerbRecord{ID: "good", CommonName: "Good", ImagePath: good},
		domain.HerbRecord{ID: "missing", CommonName: "Missing", ImagePath: filepath.Join(dir, "gone.png")},
	)
	records, _ := store.AllRecords(ctx)
	ext := embedding.NewHistogramExtractor()

	n, err := backfill(ctx, store, ext, backfillTargets(records, ext.Model(), false), 2,
		retryFor(config.ExtractorHistogram), silentBar(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("stored = %d, want 1", n)
	}
	h, _ := store.FindByName(ctx, "Good")
	if !h.HasEmbedding() || h.EmbeddingModel != ext.Model() {
		t.Fatalf("good not embedded: %+v", h)
	}
	h, _ = store.FindByName(ctx, "Missing")
	if h.HasEmbedding() {
		t.Fatal("missing image should not be embedded")
	}
}

func TestRetryFor(t *testing.T) {
	if got := retryFor(config.ExtractorHistogram).MaxAttempts; got != 1 {
		t.Errorf("histogram attempts = %d, want 1", got)
	}
	if got := retryFor(config.ExtractorWorkerHTTP).MaxAttempts; got < 2 {
		t.Errorf("worker attempts = %d, want retries", got)
	}
}

func TestFormatEvent(t *testing.T) {
	ev := domain.IdentifiedEvent{
		RequestID:      "req-1",
		CommonName:     "Neem",
		ScientificName: "Azadirachta indica",
		Source:         domain.SourceSampleFallback,
		Score:          0,
		Degraded:       true,
		ProcessingTime: 1.5,
		At:             time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	got := formatEvent(ev)
	for _, want := range []string{"09:30:00", "sample-fallback", "Neem (Azadirachta indica)", "1.50s", "degraded", "req=req-1"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatEvent = %q, missing %q", got, want)
		}
	}
}

type fakeIndex struct {
	calls []string
	dims  int
	model string
}

func (f *fakeIndex) DeleteCollection(context.Context) error {
	f.calls = append(f.calls, "drop")
	return nil
}

func (f *fakeIndex) EnsureCollection(_ context.Context, dims int) error {
	f.calls = append(f.calls, "ensure")
	f.dims = dims
	return nil
}

func (f *fakeIndex) Sync(_ context.Context, records []domain.HerbRecord, model string) (int, error) {
	f.calls = append(f.calls, "sync")
	f.model = model
	return len(records), nil
}

func TestSyncIndex(t *testing.T) {
	records := []domain.HerbRecord{{ID: "neem"}, {ID: "tulsi"}}

	idx := &fakeIndex{}
	n, err := syncIndex(context.Background(), idx, records, "m1", 3, false)
	if err != nil || n != 2 {
		t.Fatalf("got %d, %v", n, err)
	}
	if strings.Join(idx.calls, ",") != "ensure,sync" || idx.dims != 3 || idx.model != "m1" {
		t.Fatalf("calls = %v dims=%d model=%s", idx.calls, idx.dims, idx.model)
	}

	idx = &fakeIndex{}
	if _, err := syncIndex(context.Background(), idx, records, "m1", 3, true); err != nil {
		t.Fatal(err)
	}
	if strings.Join(idx.calls, ",") != "drop,ensure,sync" {
		t.Fatalf("reset calls = %v", idx.calls)
	}
}
