package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tickerfeed",
	Short: "Financial news watcher that posts ticker-tagged summaries",
	Long: `tickerfeed polls financial RSS feeds and news pages, keeps the items
that score above the keyword thresholds, tags them with stock tickers and
posts a short summary for each new one.`,
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
