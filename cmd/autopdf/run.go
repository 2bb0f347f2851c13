package main

import (
	"fmt"
	"strconv"

	"github.com/harunnryd/autopdf/cmd/autopdf/runtime"

	"github.com/harunnryd/autopdf/internal/pipeline"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <ticket-id>",
	Short: "Generate the report of one ticket",
	Long:  `Runs the report pipeline once for a GLPI ticket, outside the webhook server. With --update the report is also written back to the ticket as its solution.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticketID, err := strconv.Atoi(args[0])
		if err != nil || ticketID <= 0 {
			return fmt.Errorf("invalid ticket id %q", args[0])
		}

		mode := pipeline.ModeCreate
		if update, _ := cmd.Flags().GetBool("update"); update {
			mode = pipeline.ModeUpdate
		}
		output, _ := cmd.Flags().GetString("output")
		if err := validateOutput(output); err != nil {
			return err
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			result, err := r.Pipeline.Run(r.Ctx, ticketID, mode)
			if err != nil {
				return err
			}
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, result)
			}
			printResult(cmd, result)
			return nil
		})
	},
}

func printResult(cmd *cobra.Command, result pipeline.Result) {
	out := cmd.OutOrStdout()
	status := "stored"
	if result.AlreadyExisted {
		status = "unchanged (already stored)"
	}
	fmt.Fprintf(out, "✓ Report for ticket %d %s\n", result.IncidentID, status)
	fmt.Fprintf(out, "  Category: %s\n", result.Category)
	fmt.Fprintf(out, "  Object:   %s\n", result.ObjectKey)
	fmt.Fprintf(out, "  Entry:    %s\n", result.EntryID)
	if result.WroteBack {
		fmt.Fprintln(out, "  Solution written back to GLPI")
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("update", false, "write the report back to the ticket as its solution")
	runCmd.Flags().StringP("output", "o", outputTable, "output format (table, json, yaml)")
}
