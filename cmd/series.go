package main

import (
	"github.com/spf13/cobra"
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Show a measurement series with its I-MR statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		key, err := seriesKeyFlags(cmd, true)
		if err != nil {
			return err
		}
		from, to, err := rangeFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := newService(st).GetSeries(ctx, key, from, to)
		if err != nil {
			return err
		}
		formatSeries(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	addSeriesFlags(seriesCmd)
	addRangeFlags(seriesCmd)
	rootCmd.AddCommand(seriesCmd)
}
