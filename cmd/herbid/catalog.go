package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/herbid/herbid/engine/app"
	"github.com/herbid/herbid/engine/catalog"
	"github.com/herbid/herbid/engine/embedding"
	"github.com/herbid/herbid/engine/matcher"
)

func (c *cli) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Seed, import and maintain herb records",
	}
	cmd.AddCommand(
		c.seedCmd(),
		c.importCmd(),
		c.embedCmd(),
		c.linkImagesCmd(),
		c.listCmd(),
	)
	return cmd
}

// openStore opens the configured catalog and, when withExtractor is set,
// the configured feature extractor.
func (c *cli) openStore(ctx context.Context, withExtractor bool) (catalog.Store, embedding.Extractor, func(), error) {
	store, err := catalog.Open(ctx, c.cfg.Catalog.Options())
	if err != nil {
		return nil, nil, nil, err
	}
	if !withExtractor {
		return store, nil, func() { store.Close() }, nil
	}
	ext, err := app.NewExtractor(c.cfg.Extractor)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	closeAll := func() {
		if cl, ok := ext.(interface{ Close() error }); ok {
			cl.Close()
		}
		store.Close()
	}
	return store, ext, closeAll, nil
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the starter herbs into an empty catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, _, done, err := c.openStore(ctx, false)
			if err != nil {
				return err
			}
			defer done()

			n, err := catalog.Seed(ctx, store)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "catalog already populated, nothing seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d herbs\n", n)
			return nil
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dataset-dir>",
		Short: "Import a directory-per-herb image dataset",
		Long: `Each subdirectory of <dataset-dir> becomes one herb. The directory name gives
the common name (underscores become spaces, words are title-cased) and the
first image's features become the record's embedding. Herbs whose name
already resolves in the catalog are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dirs, err := datasetDirs(args[0])
			if err != nil {
				return err
			}
			store, ext, done, err := c.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer done()

			bar := newBar(cmd.ErrOrStderr(), len(dirs), "Importing", c.quiet)
			rep, err := importDataset(ctx, store, ext, dirs, bar, c.logger)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d existing, %d without images, %d failed\n",
				rep.Imported, rep.Skipped, rep.Empty, rep.Failed)
			return nil
		},
	}
}

func (c *cli) embedCmd() *cobra.Command {
	var (
		workers    int
		restamp    bool
		syncQdrant bool
		reset      bool
	)
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Backfill feature vectors for records that have an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, ext, done, err := c.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer done()

			records, err := store.AllRecords(ctx)
			if err != nil {
				return err
			}
			targets := backfillTargets(records, ext.Model(), restamp)
			stored := 0
			if len(targets) > 0 {
				bar := newBar(cmd.ErrOrStderr(), len(targets), "Embedding", c.quiet)
				stored, err = backfill(ctx, store, ext, targets, workers, retryFor(c.cfg.Extractor.Kind), bar, c.logger)
				_ = bar.Finish()
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "embedded %d of %d candidate herbs (model %s)\n", stored, len(targets), ext.Model())

			if !syncQdrant {
				return nil
			}
			return c.syncQdrant(cmd, store, ext, reset)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "concurrent extractions")
	cmd.Flags().BoolVar(&restamp, "restamp", false, "re-extract vectors stamped by a different model")
	cmd.Flags().BoolVar(&syncQdrant, "sync-qdrant", false, "push embedded records to the Qdrant collection")
	cmd.Flags().BoolVar(&reset, "reset", false, "drop and recreate the Qdrant collection before syncing")
	return cmd
}

func (c *cli) syncQdrant(cmd *cobra.Command, store catalog.Catalog, ext embedding.Extractor, reset bool) error {
	ctx := cmd.Context()
	q, err := matcher.NewQdrantIndex(c.cfg.Matcher.QdrantURL, c.cfg.Matcher.QdrantCollection, c.cfg.Matcher.Threshold, c.logger)
	if err != nil {
		return err
	}
	defer q.Close()

	records, err := store.AllRecords(ctx)
	if err != nil {
		return err
	}
	n, err := syncIndex(ctx, q, records, ext.Model(), ext.Dimension(), reset)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synced %d points to qdrant collection %q\n", n, c.cfg.Matcher.QdrantCollection)
	return nil
}

func (c *cli) linkImagesCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "link-images <image-dir>",
		Short: "Attach images to herbs by file name and extract their features",
		Long: `Each image in <image-dir> is linked to the first herb whose common name has a
word longer than three characters contained in the file name, for example
"neem_leaf_02.jpg" links to "Neem".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			images, err := findImages(args[0], recursive)
			if err != nil {
				return err
			}
			store, ext, done, err := c.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer done()

			bar := newBar(cmd.ErrOrStderr(), len(images), "Linking", c.quiet)
			rep, err := linkImages(ctx, store, ext, images, bar, c.logger)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked %d images, %d unmatched, %d failed\n", rep.Linked, rep.Unmatched, rep.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "search subdirectories")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every catalog record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, _, done, err := c.openStore(ctx, false)
			if err != nil {
				return err
			}
			defer done()

			records, err := store.AllRecords(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOMMON NAME\tSCIENTIFIC NAME\tEMBEDDING")
			for _, h := range records {
				emb := "-"
				if h.HasEmbedding() {
					emb = fmt.Sprintf("%s/%d", h.EmbeddingModel, len(h.Embedding))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.ID, h.CommonName, h.ScientificName, emb)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
