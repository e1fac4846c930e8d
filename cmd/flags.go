package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// addSeriesFlags registers the four hierarchy ids selecting a series.
func addSeriesFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("line", 0, "line id")
	cmd.Flags().Int64("presentation", 0, "presentation id")
	cmd.Flags().Int64("control-type", 0, "control type id")
	cmd.Flags().Int64("parameter", 0, "parameter id")
}

func seriesKeyFlags(cmd *cobra.Command, required bool) (model.SeriesKey, error) {
	var k model.SeriesKey
	k.LineID, _ = cmd.Flags().GetInt64("line")
	k.PresentationID, _ = cmd.Flags().GetInt64("presentation")
	k.ControlTypeID, _ = cmd.Flags().GetInt64("control-type")
	k.ParameterID, _ = cmd.Flags().GetInt64("parameter")
	if required && (k.LineID <= 0 || k.PresentationID <= 0 || k.ControlTypeID <= 0 || k.ParameterID <= 0) {
		return k, eris.New("--line, --presentation, --control-type and --parameter are required")
	}
	return k, nil
}

// addRangeFlags registers --from and --to.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "start of range, RFC 3339 or YYYY-MM-DD (inclusive)")
	cmd.Flags().String("to", "", "end of range, RFC 3339 or YYYY-MM-DD (inclusive)")
}

func rangeFlags(cmd *cobra.Command) (from, to time.Time, err error) {
	rawFrom, _ := cmd.Flags().GetString("from")
	rawTo, _ := cmd.Flags().GetString("to")
	if from, err = parseTimeFlag(rawFrom, false); err != nil {
		return
	}
	if to, err = parseTimeFlag(rawTo, true); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		err = eris.New("--from is after --to")
	}
	return
}

// parseTimeFlag accepts RFC 3339 or a bare date; a bare end date covers the
// whole day.
func parseTimeFlag(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// recorderFlag returns --recorder, falling back to $QC_RECORDER_ID.
func recorderFlag(cmd *cobra.Command) (string, error) {
	r, _ := cmd.Flags().GetString("recorder")
	if r == "" {
		r = os.Getenv("QC_RECORDER_ID")
	}
	if strings.TrimSpace(r) == "" {
		return "", eris.New("--recorder is required (or QC_RECORDER_ID)")
	}
	return r, nil
}

// reportValidation prints validation errors as a table and returns a short
// error for the exit status. Other errors pass through unchanged.
func reportValidation(cmd *cobra.Command, err error) error {
	var verrs model.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	formatValidationErrors(cmd.ErrOrStderr(), verrs)
	return eris.Errorf("%d validation error(s)", len(verrs))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", raw)
	}
	return id, nil
}
