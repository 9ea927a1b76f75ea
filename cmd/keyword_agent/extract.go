package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-collector/internal/extraction"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract candidate keywords from a downloaded export",
	Long: `Extract reads a keyword export (.xlsx or .csv), takes the keyword column, drops noise
tokens and prints the sorted unique candidates with their provenance. The file is left in place.`,
	RunE: runExtract,
}

var (
	extractInput   string
	extractColumns []string
	extractOutput  string
)

func init() {
	extractCmd.Flags().StringVarP(&extractInput, "in", "i", "", "Path to the export file")
	extractCmd.Flags().StringArrayVar(&extractColumns, "column", nil, "Keyword column header, tried in order (repeatable)")
	extractCmd.Flags().StringVarP(&extractOutput, "out", "o", "", "Write the candidate set JSON to this file instead of stdout")

	if err := extractCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	opts := extraction.DefaultOptions()
	if len(extractColumns) > 0 {
		opts.Columns = extractColumns
	}
	opts.Logger = newLogger(cmd.ErrOrStderr(), false)

	set, err := extraction.NewExtractor(opts).Extract(cmd.Context(), extractInput)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), extractOutput, set)
}
