package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-collector/internal/schemas"
	schemadocs "github.com/jonathan/keyword-collector/schemas"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a JSON document against a bundled schema",
	Long: `Validate checks a JSON file against one of the bundled schemas:
  keyword_artifact, collection_request, collection_result`,
	RunE: runValidate,
}

var (
	validateSchema string
	validateInput  string
)

func init() {
	validateCmd.Flags().StringVar(&validateSchema, "schema", "keyword_artifact", "Schema name")
	validateCmd.Flags().StringVarP(&validateInput, "in", "i", "", "Path to the JSON document")
	if err := validateCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}
	rootCmd.AddCommand(validateCmd)
}

// schemaFile maps a short schema name to its bundled file name.
func schemaFile(name string) (string, error) {
	switch strings.TrimSuffix(strings.TrimSpace(name), ".schema.json") {
	case "keyword_artifact":
		return schemadocs.KeywordArtifact, nil
	case "collection_request":
		return schemadocs.CollectionRequest, nil
	case "collection_result":
		return schemadocs.CollectionResult, nil
	}
	return "", fmt.Errorf("unknown schema %q", name)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	file, err := schemaFile(validateSchema)
	if err != nil {
		return err
	}
	if err := schemas.ValidateFile(file, validateInput); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: valid %s\n", validateInput, strings.TrimSuffix(file, ".schema.json"))
	return err
}
