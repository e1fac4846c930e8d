package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
)

// Submitter records a batch of submissions atomically.
type Submitter interface {
	SubmitBatch(ctx context.Context, rc model.RequestContext, subs []model.Submission) ([]quality.SubmitResult, error)
}

// Options controls an import.
type Options struct {
	// BatchSize splits the file into independently committed batches. Zero
	// commits the whole file in one transaction.
	BatchSize int
	Location  *time.Location
	CSV       CSVOptions
	XLSX      XLSXOptions
}

// Result summarises an import. When an import fails part way, Result
// still reports the batches that were committed before the failure.
type Result struct {
	Rows     int     `json:"rows"`
	Accepted int     `json:"accepted"`
	Alerts   int     `json:"alerts"`
	Batches  int     `json:"batches"`
	AlertIDs []int64 `json:"alert_ids,omitempty"`
}

// Importer feeds parsed files through the validated write path.
type Importer struct {
	sub  Submitter
	opts Options
}

// NewImporter returns an Importer.
func NewImporter(sub Submitter, opts Options) *Importer {
	return &Importer{sub: sub, opts: opts}
}

// ImportFile reads path as CSV or XLSX, chosen by extension, and imports it.
func (im *Importer) ImportFile(ctx context.Context, rc model.RequestContext, path string) (*Result, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = ReadXLSX(path, im.opts.XLSX)
	case ".csv", ".txt":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err = ReadCSV(ctx, f, im.opts.CSV)
	default:
		return nil, eris.Wrapf(model.ErrInvalidField, "ingest: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, rc, rows)
}

// Import maps rows and submits them. Validation errors are re-indexed to
// file rows.
func (im *Importer) Import(ctx context.Context, rc model.RequestContext, rows [][]string) (*Result, error) {
	parsed, err := ParseRows(rows, im.opts.Location)
	if err != nil {
		return nil, err
	}

	res := &Result{Rows: len(parsed.Submissions)}
	size := im.opts.BatchSize
	if size <= 0 {
		size = len(parsed.Submissions)
	}

	log := zap.L().With(zap.String("component", "ingest"), zap.String("recorder", rc.RecorderID))
	for start := 0; start < len(parsed.Submissions); start += size {
		end := min(start+size, len(parsed.Submissions))

		out, err := im.sub.SubmitBatch(ctx, rc, parsed.Submissions[start:end])
		if err != nil {
			var verrs model.ValidationErrors
			if errors.As(err, &verrs) {
				remapped := make(model.ValidationErrors, len(verrs))
				for i, ve := range verrs {
					if ve.Index >= 0 && start+ve.Index < end {
						ve.Index = parsed.Rows[start+ve.Index]
					}
					remapped[i] = ve
				}
				err = remapped
			}
			log.Warn("import stopped", zap.Int("batch", res.Batches+1), zap.Int("accepted", res.Accepted), zap.Error(err))
			return res, err
		}

		res.Batches++
		res.Accepted += len(out)
		for _, r := range out {
			if r.AlertID != nil {
				res.Alerts++
				res.AlertIDs = append(res.AlertIDs, *r.AlertID)
			}
		}
	}

	log.Info("import complete",
		zap.Int("rows", res.Rows),
		zap.Int("batches", res.Batches),
		zap.Int("alerts", res.Alerts),
	)
	return res, nil
}
