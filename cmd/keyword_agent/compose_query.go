package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-collector/internal/query"
)

var composeQueryCmd = &cobra.Command{
	Use:   "compose-query",
	Short: "Print the search query for a product description",
	Long:  `Compose-query translates the category and purposes and prints the query collect would submit.`,
	RunE:  runComposeQuery,
}

var (
	composeCategory string
	composePurposes []string
	composeParams   []string
)

func init() {
	composeQueryCmd.Flags().StringVarP(&composeCategory, "category", "c", "", "Product category")
	composeQueryCmd.Flags().StringArrayVarP(&composePurposes, "purpose", "p", nil, "Product purpose (repeatable)")
	composeQueryCmd.Flags().StringArrayVar(&composeParams, "param", nil, "Additional product parameter (repeatable)")
	rootCmd.AddCommand(composeQueryCmd)
}

func runComposeQuery(cmd *cobra.Command, _ []string) error {
	req := buildRequest(composeCategory, composePurposes, composeParams, "")
	if err := req.Validate(); err != nil {
		return err
	}
	q := query.NewComposer(nil).Build(req)
	if q == "" {
		return fmt.Errorf("query is empty: set --category, --purpose or --param")
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), q)
	return err
}
