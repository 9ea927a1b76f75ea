// Package main provides the keyword_agent CLI: one-shot collections, offline
// extraction and the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keyword_agent",
	Short: "Keyword research collector",
	Long: `keyword_agent drives the keyword research site in a headless browser, downloads the keyword
export for a product description, cleans it and keeps the most relevant keywords.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
