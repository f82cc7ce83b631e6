package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/pkg/natsutil"
)

func (c *cli) eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect identification events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print identification events as the API publishes them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Events.NATSURL == "" {
				return errors.New("events: NATS_URL is not set")
			}
			nc, err := natsutil.Connect(c.cfg.Events.NATSURL, "herbid-tail", c.logger)
			if err != nil {
				return err
			}
			defer nc.Drain()

			out := cmd.OutOrStdout()
			sub, err := natsutil.Subscribe(nc, c.cfg.Events.Subject, func(_ context.Context, ev domain.IdentifiedEvent) {
				fmt.Fprintln(out, formatEvent(ev))
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			c.logger.Info("tailing events", "subject", c.cfg.Events.Subject)
			<-cmd.Context().Done()
			return nil
		},
	})
	return cmd
}

func formatEvent(ev domain.IdentifiedEvent) string {
	line := fmt.Sprintf("%s  %-15s %s (%s) score=%.2f %.2fs",
		ev.At.UTC().Format(time.TimeOnly), ev.Source, ev.CommonName, ev.ScientificName, ev.Score, ev.ProcessingTime)
	if ev.Degraded {
		line += " degraded"
	}
	if ev.RequestID != "" {
		line += " req=" + ev.RequestID
	}
	return line
}
