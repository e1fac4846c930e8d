package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/BrendaWanda/ControlCalidad/internal/quality"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Conformity, alert and control-chart digest for a period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		from, to, err := rangeFlags(cmd)
		if err != nil {
			return err
		}
		line, _ := cmd.Flags().GetInt64("line")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r, err := newService(st).Report(ctx, quality.ReportRequest{From: from, To: to, LineID: line})
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}
		formatReport(cmd.OutOrStdout(), r)
		return nil
	},
}

func init() {
	addRangeFlags(reportCmd)
	reportCmd.Flags().Int64("line", 0, "restrict to one line")
	reportCmd.Flags().Bool("json", false, "print JSON instead of tables")
	rootCmd.AddCommand(reportCmd)
}
