package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/supportflow-io/supportflow/internal/client"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "supportctl",
	Short: "supportctl - command-line client for supportd",
	Long: `supportctl files, inspects and resolves support tickets against a
running supportd.

Examples:
  supportctl tickets create "Login fails" "The page spins forever"
  supportctl tickets watch <id>
  supportctl tickets resolve <id>

Environment:
  SUPPORTFLOW_API_URL   Daemon URL (default: http://localhost:8080)
  SUPPORTFLOW_TOKEN     Access token for the calling user`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	apiURL   string
	apiToken string
	verbose  bool
)

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(ticketsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)

	rootCmd.PersistentFlags().StringVar(&apiURL, "url", envOr("SUPPORTFLOW_API_URL", "http://localhost:8080"), "supportd base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("SUPPORTFLOW_TOKEN"), "Access token")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newClient().Health(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the authenticated user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := newClient().Me(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

func newClient() *client.HTTPClient {
	return client.NewHTTPClient(apiURL, apiToken)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
