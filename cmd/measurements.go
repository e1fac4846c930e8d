package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

// exportRowLimit is the default row cap of a measurement export.
const exportRowLimit = 10000

var measurementsCmd = &cobra.Command{
	Use:   "measurements",
	Short: "Search recorded measurements by work order, line or any part of a series",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f, err := measurementFilterFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := newService(st).ListMeasurements(ctx, f)
		if err != nil {
			return eris.Wrap(err, "measurements")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No measurements found.")
			return nil
		}
		formatMeasurements(cmd.OutOrStdout(), recs)
		return nil
	},
}

// addMeasurementFilterFlags registers the record search filters.
func addMeasurementFilterFlags(cmd *cobra.Command, limit int) {
	addSeriesFlags(cmd)
	addRangeFlags(cmd)
	cmd.Flags().String("reference", "", "work order reference")
	cmd.Flags().String("kind", "", "NUMERIC or CHECK")
	cmd.Flags().Int("limit", limit, "max records to return, newest kept")
}

func measurementFilterFlags(cmd *cobra.Command) (store.MeasurementFilter, error) {
	key, _ := seriesKeyFlags(cmd, false)
	f := store.SeriesFilter(key)
	f.Reference, _ = cmd.Flags().GetString("reference")
	if raw, _ := cmd.Flags().GetString("kind"); raw != "" {
		k := model.ParameterKind(strings.ToUpper(strings.TrimSpace(raw)))
		if !k.Valid() {
			return f, eris.Errorf("unknown kind %q", raw)
		}
		f.Kind = k
	}
	var err error
	if f.From, f.To, err = rangeFlags(cmd); err != nil {
		return f, err
	}
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f, nil
}

func init() {
	addMeasurementFilterFlags(measurementsCmd, store.DefaultListLimit)
	rootCmd.AddCommand(measurementsCmd)
}
