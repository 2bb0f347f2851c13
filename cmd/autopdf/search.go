package main

import (
	"fmt"
	"strings"

	"github.com/harunnryd/autopdf/cmd/autopdf/runtime"

	"github.com/harunnryd/autopdf/internal/formatter"
	"github.com/harunnryd/autopdf/internal/search"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed reports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")
		if err := validateOutput(output); err != nil {
			return err
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			entries, err := r.Index.Search(r.Ctx, r.Config.Search.Index, query, limit)
			if err != nil {
				return err
			}
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, entries)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatter.NewTableFormatter().FormatEntries(entries))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Int("limit", search.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().StringP("output", "o", outputTable, "output format (table, json, yaml)")
}
