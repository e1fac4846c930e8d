package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record one measurement",
	Long:  "Validates and records a single measurement. NUMERIC values accept a decimal comma; CHECK values accept yes/no, si/no, pass/fail or true/false.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		key, err := seriesKeyFlags(cmd, true)
		if err != nil {
			return err
		}
		recorder, err := recorderFlag(cmd)
		if err != nil {
			return err
		}
		value, _ := cmd.Flags().GetString("value")
		rawAt, _ := cmd.Flags().GetString("at")
		ref, _ := cmd.Flags().GetString("reference")
		note, _ := cmd.Flags().GetString("note")

		at := time.Now().UTC()
		if rawAt != "" {
			if at, err = parseTimeFlag(rawAt, false); err != nil {
				return err
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newService(st).SubmitMeasurement(ctx, model.RequestContext{RecorderID: recorder}, model.Submission{
			LineID:         key.LineID,
			PresentationID: key.PresentationID,
			ControlTypeID:  key.ControlTypeID,
			ParameterID:    key.ParameterID,
			Value:          value,
			TakenAt:        at,
			Reference:      ref,
			Note:           note,
		})
		if err != nil {
			return eris.Wrap(reportValidation(cmd, err), "submit")
		}
		formatSubmitResults(cmd.OutOrStdout(), []quality.SubmitResult{*res})
		return nil
	},
}

func init() {
	addSeriesFlags(submitCmd)
	submitCmd.Flags().String("value", "", "measured value")
	submitCmd.Flags().String("at", "", "time the measurement was taken (default now)")
	submitCmd.Flags().String("reference", "", "work order or lot reference")
	submitCmd.Flags().String("note", "", "free-text note")
	submitCmd.Flags().String("recorder", "", "operator id (default $QC_RECORDER_ID)")
	rootCmd.AddCommand(submitCmd)
}
