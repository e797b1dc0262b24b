// Package main implements gtctl, a CLI for manual operations against the
// goaltrack HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server     string
	token      string
	cronSecret string
	timeout    time.Duration
}

func (o *options) client() *apiClient {
	return newAPIClient(o.server, o.token, o.cronSecret, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "gtctl",
		Short: "CLI for goaltrack server operations",
		Long: `gtctl is a command-line interface for the goaltrack HTTP API.
It generates and completes goals, toggles progress and triggers the
notification passes.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("GOALTRACK_SERVER", "http://localhost:8080"), "goaltrack server URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("GOALTRACK_TOKEN"), "bearer token")
	root.PersistentFlags().StringVar(&opts.cronSecret, "cron-secret", os.Getenv("GOALTRACK_CRON_SECRET"), "X-Cron-Secret for notification passes")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newHealthCmd(opts),
		newGenerateCmd(opts),
		newCompleteCmd(opts),
		newToggleCmd(opts),
		newNotifyCmd(opts),
	)
	return root
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check goaltrack server health",
		Long: `Check the health status of the goaltrack HTTP server.

Examples:
  # Check health
  gtctl health

  # Check health on a different server
  gtctl health --server http://localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp healthResponse
			if err := opts.client().get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL: %s\n", opts.server)
			return nil
		},
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
