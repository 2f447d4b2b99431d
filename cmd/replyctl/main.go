// Command replyctl talks to a running replyd and manages its schema.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	var opts globalOptions
	rootCmd := &cobra.Command{
		Use:           "replyctl",
		Short:         "Client for the replyd streaming reply engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", envOr("CONFIG_PATH", "config.toml"), "Path to config.toml")
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", os.Getenv("REPLYD_API_URL"), "replyd base URL (defaults to the configured server address)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("REPLYD_TOKEN"), "Bearer token when the server requires one")

	rootCmd.AddCommand(replyCmd(&opts))
	rootCmd.AddCommand(migrateCmd(&opts))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
