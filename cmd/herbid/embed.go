package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/config"
	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/engine/embedding"
	"github.com/herbid/herbid/pkg/fn"
)

// backfillTargets selects records with a reference image but no vector.
// With restamp set, vectors stamped by another model are redone too.
func backfillTargets(records []domain.HerbRecord, model string, restamp bool) []domain.HerbRecord {
	return fn.Filter(records, func(h domain.HerbRecord) bool {
		if h.ImagePath == "" {
			return false
		}
		if !h.HasEmbedding() {
			return true
		}
		return restamp && h.EmbeddingModel != model
	})
}

// retryFor returns the retry policy for an extractor kind. Local extraction
// failures are deterministic and are not retried.
func retryFor(kind string) fn.RetryOpts {
	if kind == config.ExtractorHistogram || kind == "" {
		return fn.RetryOpts{MaxAttempts: 1}
	}
	return fn.RetryOpts{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Jitter:      true,
	}
}

// backfill extracts features for targets concurrently and stores them.
// Records whose image is missing or unreadable are logged and skipped.
func backfill(ctx context.Context, store catalog.Writer, ext embedding.Extractor, targets []domain.HerbRecord, workers int, retry fn.RetryOpts, bar *progressbar.ProgressBar, logger *slog.Logger) (int, error) {
	results := fn.ParMapResult(ctx, targets, workers, func(ctx context.Context, h domain.HerbRecord) fn.Result[[]float32] {
		defer bar.Add(1)
		if _, err := os.Stat(h.ImagePath); err != nil {
			return fn.Err[[]float32](err)
		}
		return fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[[]float32] {
			vec, err := extractFile(ctx, ext, h.ImagePath)
			if errors.Is(err, domain.ErrUnreadableImage) {
				err = fn.Permanent(err)
			}
			return fn.FromPair(vec, err)
		})
	})

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stored := 0
	for i, r := range results {
		vec, err := r.Unwrap()
		if err != nil {
			logger.Warn("skipping herb", "id", targets[i].ID, "image", targets[i].ImagePath, "err", err)
			continue
		}
		if err := store.SetEmbedding(ctx, targets[i].ID, vec, ext.Model()); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// vectorIndex is the part of the Qdrant index that catalog sync drives.
type vectorIndex interface {
	DeleteCollection(ctx context.Context) error
	EnsureCollection(ctx context.Context, dims int) error
	Sync(ctx context.Context, records []domain.HerbRecord, model string) (int, error)
}

// syncIndex writes the embedded records into idx. With reset set the
// collection is dropped and rebuilt first.
func syncIndex(ctx context.Context, idx vectorIndex, records []domain.HerbRecord, model string, dims int, reset bool) (int, error) {
	if reset {
		if err := idx.DeleteCollection(ctx); err != nil {
			return 0, err
		}
	}
	if err := idx.EnsureCollection(ctx, dims); err != nil {
		return 0, err
	}
	return idx.Sync(ctx, records, model)
}
