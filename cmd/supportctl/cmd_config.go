package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/supportflow-io/supportflow/internal/auth"
	"github.com/supportflow-io/supportflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a supportd config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(args[0]); err != nil {
			return fmt.Errorf("invalid: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "config is valid")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a development access token",
	Long: `Mint an HS256 access token signed with the daemon's JWT secret.
Intended for local development and testing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return fmt.Errorf("a signing secret is required (--secret or SUPPORTFLOW_AUTH_JWT_SECRET)")
		}
		v, err := auth.NewVerifier(tokenSecret, tokenIssuer)
		if err != nil {
			return err
		}
		tok, err := v.Issue(args[0], tokenEmail, tokenName, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var (
	tokenSecret string
	tokenIssuer string
	tokenEmail  string
	tokenName   string
	tokenTTL    time.Duration
)

func init() {
	configCmd.AddCommand(configValidateCmd)

	tokenCmd.Flags().StringVar(&tokenSecret, "secret", envOr("SUPPORTFLOW_AUTH_JWT_SECRET", ""), "JWT signing secret")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", envOr("SUPPORTFLOW_AUTH_ISSUER", ""), "Token issuer")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name (user_metadata.name)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
