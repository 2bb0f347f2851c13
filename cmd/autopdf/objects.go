package main

import (
	"fmt"

	"github.com/harunnryd/autopdf/cmd/autopdf/runtime"

	"github.com/harunnryd/autopdf/internal/formatter"

	"github.com/spf13/cobra"
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List stored reports",
	Long:  `Lists report objects in the bucket. Keys have the form <category>/<ticket-id>/<sha256>.pdf, so --prefix "Network Issue/" narrows to one category.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		output, _ := cmd.Flags().GetString("output")
		if err := validateOutput(output); err != nil {
			return err
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			objects, err := r.Store.List(r.Ctx, prefix)
			if err != nil {
				return err
			}
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, objects)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatter.NewTableFormatter().FormatObjects(objects))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(objectsCmd)
	objectsCmd.Flags().String("prefix", "", "only list keys starting with this prefix")
	objectsCmd.Flags().StringP("output", "o", outputTable, "output format (table, json, yaml)")
}
