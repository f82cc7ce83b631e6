package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/engine/embedding"
)

// imagePattern is matched against lower-cased base names.
const imagePattern = "*.{jpg,jpeg,png,bmp,gif,webp}"

func isImage(name string) bool {
	ok, err := doublestar.Match(imagePattern, strings.ToLower(path.Base(filepath.ToSlash(name))))
	return err == nil && ok
}

// findImages lists image files under root in lexical order. With recursive
// set, subdirectories are searched too.
func findImages(root string, recursive bool) ([]string, error) {
	pattern := "*"
	if recursive {
		pattern = "**/*"
	}
	var out []string
	err := doublestar.GlobWalk(os.DirFS(root), pattern, func(p string, d fs.DirEntry) error {
		if !d.IsDir() && isImage(p) {
			out = append(out, filepath.Join(root, filepath.FromSlash(p)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

var titleCase = cases.Title(language.English)

// herbNameFromDir turns a dataset directory name like "holy_basil" into
// "Holy Basil".
func herbNameFromDir(dir string) string {
	name := strings.NewReplacer("_", " ", "-", " ").Replace(filepath.Base(dir))
	return titleCase.String(strings.Join(strings.Fields(name), " "))
}

// matchFilename returns the first record whose common name has a word
// longer than three characters contained in the file's base name.
func matchFilename(file string, records []domain.HerbRecord) (domain.HerbRecord, bool) {
	name := strings.ToLower(filepath.Base(file))
	for _, h := range records {
		for _, word := range strings.Fields(strings.ToLower(h.CommonName)) {
			word = strings.Trim(word, "()[]{},.;:'\"")
			if len(word) > 3 && strings.Contains(name, word) {
				return h, true
			}
		}
	}
	return domain.HerbRecord{}, false
}

func extractFile(ctx context.Context, ext embedding.Extractor, file string) ([]float32, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return ext.Extract(ctx, data)
}

// datasetDirs lists the herb directories of a directory-per-herb dataset.
func datasetDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}

type importReport struct {
	Imported int
	Skipped  int
	Empty    int
	Failed   int
}

// importDataset creates one record per directory from the features of its
// first image. Directories whose derived name already resolves in the
// catalog are skipped.
func importDataset(ctx context.Context, store catalog.Store, ext embedding.Extractor, dirs []string, bar *progressbar.ProgressBar, logger *slog.Logger) (importReport, error) {
	var rep importReport
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		_ = bar.Add(1)
		name := herbNameFromDir(dir)

		images, err := findImages(dir, false)
		if err != nil {
			return rep, err
		}
		if len(images) == 0 {
			logger.Warn("no images found", "dir", dir)
			rep.Empty++
			continue
		}

		if _, err := store.FindByName(ctx, name); err == nil {
			logger.Debug("herb already exists, skipping", "name", name)
			rep.Skipped++
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return rep, err
		}

		vec, err := extractFile(ctx, ext, images[0])
		if err != nil {
			logger.Warn("feature extraction failed", "image", images[0], "err", err)
			rep.Failed++
			continue
		}
		err = store.Upsert(ctx, domain.HerbRecord{
			CommonName:     name,
			ImagePath:      images[0],
			Embedding:      vec,
			EmbeddingModel: ext.Model(),
		})
		if err != nil {
			return rep, err
		}
		logger.Info("herb imported", "name", name, "images", len(images))
		rep.Imported++
	}
	return rep, nil
}

type linkReport struct {
	Linked    int
	Unmatched int
	Failed    int
}

// linkImages attaches each image to the herb its file name mentions and
// stores the image's features on that record.
func linkImages(ctx context.Context, store catalog.Store, ext embedding.Extractor, images []string, bar *progressbar.ProgressBar, logger *slog.Logger) (linkReport, error) {
	var rep linkReport
	records, err := store.AllRecords(ctx)
	if err != nil {
		return rep, err
	}
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		_ = bar.Add(1)
		h, ok := matchFilename(img, records)
		if !ok {
			logger.Warn("could not match image to any herb", "image", filepath.Base(img))
			rep.Unmatched++
			continue
		}
		vec, err := extractFile(ctx, ext, img)
		if err != nil {
			logger.Warn("feature extraction failed", "image", img, "err", err)
			rep.Failed++
			continue
		}
		h.ImagePath = img
		h.Embedding = vec
		h.EmbeddingModel = ext.Model()
		if err := store.Upsert(ctx, h); err != nil {
			return rep, err
		}
		logger.Info("image linked", "image", filepath.Base(img), "herb", h.CommonName)
		rep.Linked++
	}
	return rep, nil
}
