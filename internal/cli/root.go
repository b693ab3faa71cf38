package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "variantctl",
	Short: "CLI for the variant experimentation service",
	Long: `variantctl talks to a running experiments service over its HTTP API.

Examples:
  variantctl experiments list --status running
  variantctl assign exp-123 user-42
  variantctl results exp-123 --format summary
  variantctl export exp-123`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("VARIANTCTL_SERVER", "http://localhost:8080"), "Base URL of the experiments service")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("VARIANTCTL_TOKEN"), "Bearer token for authenticated deployments")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *apiClient {
	return newClient(serverURL, authToken)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
