package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
)

// WriteSeriesCSV writes one row per record under a header.
func WriteSeriesCSV(w io.Writer, s *quality.Series) error {
	return writeCSV(w, seriesHeader, seriesRows(s))
}

// WriteMeasurementsCSV writes one row per record under a header.
func WriteMeasurementsCSV(w io.Writer, recs []model.MeasurementRecord) error {
	return writeCSV(w, measurementHeader, measurementRows(recs))
}

// WriteAlertsCSV writes one row per alert under a header.
func WriteAlertsCSV(w io.Writer, alerts []model.Alert) error {
	return writeCSV(w, alertHeader, alertRows(alerts))
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "export: write csv rows")
	}
	return nil
}
