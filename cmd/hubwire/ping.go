package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubwire-dev/hubwire/pkg/hub"
)

func pingCmd() *cobra.Command {
	var (
		count   int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure round-trip time to the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			for i := 0; i < count; i++ {
				start := time.Now()
				if _, err := client.Invoke(ctx, "Ping", hub.ShapeScalar); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pong %d: %v\n", i+1, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of pings to send")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")

	return cmd
}
