package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
)

// Sheet names of a series workbook.
const (
	SeriesSheet       = "Series"
	StatisticsSheet   = "Statistics"
	MeasurementsSheet = "Measurements"
	AlertsSheet       = "Alerts"
)

// Columns written as numbers, by header position.
var (
	seriesNumeric      = map[int]bool{0: true, 1: true, 3: true, 5: true}
	measurementNumeric = map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 7: true}
	alertNumeric       = map[int]bool{0: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true, 10: true, 11: true}
)

// WriteSeriesXLSX writes a workbook with the records on one sheet and the
// statistics on another.
func WriteSeriesXLSX(w io.Writer, s *quality.Series) error {
	f := xlsx.NewFile()
	if err := addSheet(f, SeriesSheet, seriesHeader, seriesRows(s), seriesNumeric); err != nil {
		return err
	}
	if err := addSheet(f, StatisticsSheet, []string{"statistic", "value"}, statisticsRows(s), map[int]bool{}); err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// WriteMeasurementsXLSX writes a workbook with one record per row.
func WriteMeasurementsXLSX(w io.Writer, recs []model.MeasurementRecord) error {
	f := xlsx.NewFile()
	if err := addSheet(f, MeasurementsSheet, measurementHeader, measurementRows(recs), measurementNumeric); err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// WriteAlertsXLSX writes a workbook with one alert per row.
func WriteAlertsXLSX(w io.Writer, alerts []model.Alert) error {
	f := xlsx.NewFile()
	if err := addSheet(f, AlertsSheet, alertHeader, alertRows(alerts), alertNumeric); err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addSheet(f *xlsx.File, name string, header []string, rows [][]string, numeric map[int]bool) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}

	for _, data := range rows {
		row := sheet.AddRow()
		for j, v := range data {
			cell := row.AddCell()
			if numeric[j] && v != "" {
				if x, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(x)
					continue
				}
			}
			cell.SetString(v)
		}
	}
	return nil
}
