package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/herbid/herbid/engine/config"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfgFile string
	verbose bool
	quiet   bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "herbid",
		Short: "Herb catalog tooling and command-line identification",
		Long: `herbid maintains the herb catalog used by the identification engine and
can identify a single image from the command line.

Example usage:
  herbid catalog seed                 # Write the starter catalog
  herbid catalog import ./dataset     # One directory per herb
  herbid catalog embed --sync-qdrant  # Backfill missing feature vectors
  herbid identify leaf.jpg            # Identify one image`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "YAML config file (overrides "+config.FileEnv+")")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "hide progress bars")

	root.AddCommand(
		c.identifyCmd(),
		c.catalogCmd(),
		c.eventsCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)

	getenv := os.Getenv
	if c.cfgFile != "" {
		getenv = func(key string) string {
			if key == config.FileEnv {
				return c.cfgFile
			}
			return os.Getenv(key)
		}
	}
	cfg, err := config.LoadFrom(getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return nil
}
