package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/BrendaWanda/ControlCalidad/internal/ingest"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Import measurements from a CSV or XLSX file",
	Long: "Reads a header row (English or Spanish column names) and submits every row through the validated write path. " +
		"By default the whole file is one transaction; --batch-size commits in independent batches.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		recorder, err := recorderFlag(cmd)
		if err != nil {
			return err
		}
		opts, err := importOptions(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		start := time.Now()
		res, err := ingest.NewImporter(newService(st), opts).ImportFile(ctx, model.RequestContext{RecorderID: recorder}, args[0])
		if res != nil {
			formatImportResult(cmd.OutOrStdout(), res, time.Since(start))
		}
		if err != nil {
			return eris.Wrap(reportValidation(cmd, err), "import")
		}
		return nil
	},
}

func importOptions(cmd *cobra.Command) (ingest.Options, error) {
	batch, _ := cmd.Flags().GetInt("batch-size")
	charset, _ := cmd.Flags().GetString("charset")
	delim, _ := cmd.Flags().GetString("delimiter")
	sheet, _ := cmd.Flags().GetString("sheet")
	tz, _ := cmd.Flags().GetString("tz")

	opts := ingest.Options{
		BatchSize: batch,
		CSV:       ingest.CSVOptions{Charset: charset, Comment: '#'},
		XLSX:      ingest.XLSXOptions{SheetName: sheet},
	}
	if r := []rune(delim); len(r) == 1 {
		opts.CSV.Delimiter = r[0]
	} else if delim != "" {
		return opts, eris.Errorf("--delimiter must be one character, got %q", delim)
	}
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return opts, eris.Wrapf(err, "--tz %q", tz)
		}
		opts.Location = loc
	}
	return opts, nil
}

func init() {
	importCmd.Flags().String("recorder", "", "operator id (default $QC_RECORDER_ID)")
	importCmd.Flags().Int("batch-size", 0, "rows per transaction (0 = whole file)")
	importCmd.Flags().String("charset", "", "CSV character set, e.g. latin1 or windows-1252 (default UTF-8)")
	importCmd.Flags().String("delimiter", ",", "CSV field delimiter")
	importCmd.Flags().String("sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().String("tz", "", "time zone for timestamps without offset (default UTC)")
	rootCmd.AddCommand(importCmd)
}
