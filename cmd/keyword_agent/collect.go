package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-collector/internal/config"
	"github.com/jonathan/keyword-collector/internal/observability"
	"github.com/jonathan/keyword-collector/internal/pipeline"
	"github.com/jonathan/keyword-collector/internal/types"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one keyword collection",
	Long: `Collect logs into the research site, submits the query composed from the product description,
downloads the keyword export and keeps the keywords most relevant to the product.

The result document is written to stdout (or --out). The command exits non-zero when the
collection fails; the result still names the stage that failed.`,
	RunE: runCollect,
}

var (
	collectCategory    string
	collectPurposes    []string
	collectParams      []string
	collectDescription string
	collectMaxKeywords int
	collectConfigPath  string
	collectOutput      string
	collectVerbose     bool
)

func init() {
	collectCmd.Flags().StringVarP(&collectCategory, "category", "c", "", "Product category")
	collectCmd.Flags().StringArrayVarP(&collectPurposes, "purpose", "p", nil, "Product purpose (repeatable)")
	collectCmd.Flags().StringArrayVar(&collectParams, "param", nil, "Additional product parameter (repeatable)")
	collectCmd.Flags().StringVarP(&collectDescription, "description", "d", "", "Free-text product description for the relevance pass")
	collectCmd.Flags().IntVarP(&collectMaxKeywords, "max-keywords", "n", 0, "Keywords to keep (default from config)")
	collectCmd.Flags().StringVar(&collectConfigPath, "config", "", "Path to config JSON file")
	collectCmd.Flags().StringVarP(&collectOutput, "out", "o", "", "Write the result JSON to this file instead of stdout")
	collectCmd.Flags().BoolVarP(&collectVerbose, "verbose", "v", false, "Print each stage's output")

	rootCmd.AddCommand(collectCmd)
}

// buildRequest assembles a request from flag values.
func buildRequest(category string, purposes, params []string, description string) types.CollectionRequest {
	return types.CollectionRequest{
		Category:            category,
		Purposes:            purposes,
		AdditionalParams:    params,
		CategoryDescription: description,
	}
}

// checkMaxKeywords rejects a --max-keywords value outside 0..MaxKeywordsLimit.
// Zero keeps the configured limit.
func checkMaxKeywords(n int) error {
	if n < 0 || n > config.MaxKeywordsLimit {
		return fmt.Errorf("--max-keywords must be between 1 and %d, got %d", config.MaxKeywordsLimit, n)
	}
	return nil
}

func runCollect(cmd *cobra.Command, _ []string) error {
	if err := checkMaxKeywords(collectMaxKeywords); err != nil {
		return err
	}
	cfg, err := config.Resolve(collectConfigPath)
	if err != nil {
		return err
	}
	verbose := collectVerbose || cfg.Verbose

	req := buildRequest(collectCategory, collectPurposes, collectParams, collectDescription)
	if err := req.Validate(); err != nil {
		return err
	}
	if req.IsEmpty() {
		return fmt.Errorf("nothing to search for: set --category, --purpose or --param")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger(cmd.ErrOrStderr(), verbose)
	var printer *observability.Printer
	if verbose {
		printer = observability.NewPrinter(cmd.ErrOrStderr())
	}

	a, err := newApp(ctx, cfg, log, nil, printer)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []pipeline.RunOption
	if collectMaxKeywords > 0 {
		opts = append(opts, pipeline.WithMaxKeywords(collectMaxKeywords))
	}
	result := a.collector.Collect(ctx, req, opts...)
	if printer != nil {
		printer.PrintResult(result)
	}

	if err := writeJSON(cmd.OutOrStdout(), collectOutput, result); err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("collection failed at stage %s: %s", result.Stage, result.Message)
	}
	return nil
}

// writeJSON writes v indented to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
