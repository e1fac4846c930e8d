package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export series, measurements or alerts to XLSX or CSV",
}

var exportSeriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Export one series with statistics and per-point flags",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
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
		return writeExport(cmd, format, export.SeriesFilePrefix(key), func(w io.Writer) error {
			if format == export.CSV {
				return export.WriteSeriesCSV(w, s)
			}
			return export.WriteSeriesXLSX(w, s)
		})
	},
}

var exportAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Export a filtered alert list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
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
			return err
		}
		return writeExport(cmd, format, "alerts", func(w io.Writer) error {
			if format == export.CSV {
				return export.WriteAlertsCSV(w, alerts)
			}
			return export.WriteAlertsXLSX(w, alerts)
		})
	},
}

var exportMeasurementsCmd = &cobra.Command{
	Use:   "measurements",
	Short: "Export the records matching a search, such as one work order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
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
			return err
		}
		return writeExport(cmd, format, "measurements", func(w io.Writer) error {
			if format == export.CSV {
				return export.WriteMeasurementsCSV(w, recs)
			}
			return export.WriteMeasurementsXLSX(w, recs)
		})
	},
}

func formatFlag(cmd *cobra.Command) (export.Format, error) {
	raw, _ := cmd.Flags().GetString("format")
	return export.ParseFormat(raw)
}

// writeExport writes to --out, or to a generated file name in --dir.
func writeExport(cmd *cobra.Command, format export.Format, prefix string, write func(io.Writer) error) error {
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		dir, _ := cmd.Flags().GetString("dir")
		path = filepath.Join(dir, export.FileName(prefix, format))
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}

	zap.L().Info("export written", zap.String("path", path), zap.String("format", string(format)))
	cmd.Println(path)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{exportSeriesCmd, exportMeasurementsCmd, exportAlertsCmd} {
		c.Flags().String("format", "xlsx", "xlsx or csv")
		c.Flags().String("out", "", "output file (default generated name in --dir)")
		c.Flags().String("dir", ".", "output directory for generated names")
	}
	addSeriesFlags(exportSeriesCmd)
	addRangeFlags(exportSeriesCmd)
	addMeasurementFilterFlags(exportMeasurementsCmd, exportRowLimit)
	addAlertFilterFlags(exportAlertsCmd)

	exportCmd.AddCommand(exportSeriesCmd, exportMeasurementsCmd, exportAlertsCmd)
	rootCmd.AddCommand(exportCmd)
}
