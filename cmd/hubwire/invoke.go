package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubwire-dev/hubwire/pkg/hub"
)

func invokeCmd() *cobra.Command {
	var (
		shape   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invoke <method> [arg...]",
		Short: "Invoke a hub method and print its response",
		Long: `Invoke calls a hub method and prints the response JSON.

Arguments are parsed as JSON when valid and sent as strings
otherwise, so both of these work:

  hubwire invoke GetUser '{"id":42}'
  hubwire invoke Echo hello`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			rs, err := parseShape(shape)
			if err != nil {
				return err
			}

			raw, err := client.Invoke(ctx, args[0], rs, parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}

	cmd.Flags().StringVar(&shape, "shape", "scalar", "Expected response shape: scalar, object, or array")
	cmd.Flags().DurationVar(&timeout, "timeout", 35*time.Second, "Overall invocation timeout")

	return cmd
}

func sendCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <method> [arg...]",
		Short: "Fire a hub method without awaiting a response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return client.Send(ctx, args[0], parseArgs(args[1:])...)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 35*time.Second, "Overall send timeout")
	return cmd
}

func parseShape(s string) (hub.ResultShape, error) {
	switch s {
	case "scalar":
		return hub.ShapeScalar, nil
	case "object":
		return hub.ShapeObject, nil
	case "array":
		return hub.ShapeArray, nil
	default:
		return 0, fmt.Errorf("unknown shape %q (want scalar, object, or array)", s)
	}
}

// parseArgs interprets each CLI argument as JSON when it parses, and as
// a plain string otherwise.
func parseArgs(args []string) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		if json.Valid([]byte(a)) {
			out = append(out, json.RawMessage(a))
		} else {
			out = append(out, a)
		}
	}
	return out
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var buf []byte
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		buf, _ = json.MarshalIndent(v, "", "  ")
	} else {
		buf = raw
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(buf))
	return nil
}
