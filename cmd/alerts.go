package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List, summarize and review alerts",
}

// -- alerts list --

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f, err := alertFilterFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		alerts, err := newService(st).ListAlerts(ctx, f)
		if err != nil {
			return eris.Wrap(err, "alerts list")
		}
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts found.")
			return nil
		}
		formatAlerts(cmd.OutOrStdout(), alerts)
		return nil
	},
}

// -- alerts transition --

var alertsTransitionCmd = &cobra.Command{
	Use:   "transition <alert-id> <state>",
	Short: "Move an alert to CONFIRMED, IN_PROGRESS or REJECTED",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		target, ok := model.ParseAlertState(args[1])
		if !ok {
			return eris.Errorf("unknown state %q", args[1])
		}
		reviewer, _ := cmd.Flags().GetString("reviewer")
		if strings.TrimSpace(reviewer) == "" {
			return eris.New("--reviewer is required")
		}
		note, _ := cmd.Flags().GetString("note")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := newService(st).TransitionAlert(ctx, model.RequestContext{RecorderID: reviewer}, id, target, note)
		if err != nil {
			return err
		}
		formatAlert(cmd.OutOrStdout(), a)
		return nil
	},
}

// -- alerts summary --

var alertsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count alerts by state, kind and day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		hours, _ := cmd.Flags().GetInt("lookback-hours")
		if hours <= 0 {
			return eris.New("--lookback-hours must be positive")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := newService(st).AlertSummary(ctx, time.Duration(hours)*time.Hour)
		if err != nil {
			return err
		}
		formatSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

// addAlertFilterFlags registers the alert list filters.
func addAlertFilterFlags(cmd *cobra.Command) {
	addSeriesFlags(cmd)
	addRangeFlags(cmd)
	cmd.Flags().String("state", "", "PENDING, IN_PROGRESS, CONFIRMED or REJECTED")
	cmd.Flags().String("kind", "", "OUT_OF_SPEC or CHECK_FAILED")
	cmd.Flags().String("reference", "", "work order reference")
	cmd.Flags().Int("limit", store.DefaultListLimit, "max alerts to return")
	cmd.Flags().Int("offset", 0, "alerts to skip")
}

func alertFilterFlags(cmd *cobra.Command) (store.AlertFilter, error) {
	key, _ := seriesKeyFlags(cmd, false)
	f := store.AlertFilter{
		LineID:         key.LineID,
		PresentationID: key.PresentationID,
		ControlTypeID:  key.ControlTypeID,
		ParameterID:    key.ParameterID,
	}
	f.Reference, _ = cmd.Flags().GetString("reference")
	var err error
	if f.From, f.To, err = rangeFlags(cmd); err != nil {
		return f, err
	}
	if raw, _ := cmd.Flags().GetString("state"); raw != "" {
		st, ok := model.ParseAlertState(raw)
		if !ok {
			return f, eris.Errorf("unknown state %q", raw)
		}
		f.State = st
	}
	if raw, _ := cmd.Flags().GetString("kind"); raw != "" {
		k := model.AlertKind(strings.ToUpper(raw))
		if k != model.AlertOutOfSpec && k != model.AlertCheckFailed {
			return f, eris.Errorf("unknown kind %q", raw)
		}
		f.Kind = k
	}
	f.Limit, _ = cmd.Flags().GetInt("limit")
	f.Offset, _ = cmd.Flags().GetInt("offset")
	return f, nil
}

func init() {
	addAlertFilterFlags(alertsListCmd)

	alertsTransitionCmd.Flags().String("reviewer", "", "reviewer id (required)")
	alertsTransitionCmd.Flags().String("note", "", "review note")

	alertsSummaryCmd.Flags().Int("lookback-hours", 24, "hours to look back")

	alertsCmd.AddCommand(alertsListCmd, alertsTransitionCmd, alertsSummaryCmd)
	rootCmd.AddCommand(alertsCmd)
}
