package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/herbid/herbid/engine/app"
)

func (c *cli) identifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identify <image>",
		Short: "Identify the herb in an image file and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := app.Build(ctx, c.cfg, nil, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Engine.Identify(ctx, data)
			if err != nil {
				return fmt.Errorf("identify %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
