package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"catalog-migrator/internal/csvfile"
	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/infrastructure/monitoring"

	"github.com/google/uuid"
)

// Row is one string-keyed record from a legacy export file.
type Row = map[string]string

// RowSource yields header-keyed rows and io.EOF when exhausted.
type RowSource interface {
	Next() (Row, error)
}

// RecordSource yields raw positional records and io.EOF when exhausted.
type RecordSource interface {
	Next() ([]string, error)
}

type warnFunc func(format string, args ...any)

// Summary accumulates the outcome of one export file's import.
type Summary struct {
	File      string
	Processed int
	Imported  int
	Skipped   int
	Warnings  []string
	Err       error
}

// Legacy export file names, imported in dependency order: reference
// entities first, then items, then circulation state.
var exportFiles = []struct {
	name string
	run  func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error
}{
	{"List_of_Groups.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportUserGroups(ctx, csvfile.NewRecordReader(f), sum)
	}},
	{"List_of_Users.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportUsers(ctx, csvfile.NewRowReader(f), sum)
	}},
	{"List_of_Currencies.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportCurrencies(ctx, csvfile.NewRowReader(f), sum)
	}},
	{"List_of_Publishers.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportPublishers(ctx, csvfile.NewRowReader(f), sum)
	}},
	{"List_of_Places_of_Publication.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportPublishPlaces(ctx, csvfile.NewRowReader(f), sum)
	}},
	{"List_of_Locations.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportLocations(ctx, csvfile.NewRowReader(f), sum)
	}},
	{"Accession_Register.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportBooks(ctx, csvfile.NewRowReader(f), sum)
	}},
	{"Current_Issues.csv", func(im *Importer, ctx context.Context, f *os.File, sum *Summary) error {
		return im.ImportBorrows(ctx, csvfile.NewRowReader(f), sum)
	}},
}

// Importer sequences the per-file imports against one store. One row is
// fully reconciled before the next is read; a row failure is reported
// and the run moves on.
type Importer struct {
	store    catalog.Store
	router   *AccessionRouter
	logger   *slog.Logger
	prefixes map[string]string
}

func New(store catalog.Store, prefixes map[string]string, logger *slog.Logger) *Importer {
	return &Importer{
		store:    store,
		router:   NewAccessionRouter(store, prefixes),
		logger:   logger.With("component", "Importer"),
		prefixes: prefixes,
	}
}

// Run imports every known export file found in dir, in order. A fatal
// per-file error (missing file, wrong header, unreadable CSV) fails
// that file only; subsequent files still run. The returned summaries
// hold per-file counts and every warning line emitted.
func (im *Importer) Run(ctx context.Context, dir string) []*Summary {
	runID := uuid.NewString()
	logger := im.logger.With("run_id", runID)
	logger.Info("Starting catalog import run", "dir", dir)

	summaries := make([]*Summary, 0, len(exportFiles))
	for _, ef := range exportFiles {
		sum := &Summary{File: ef.name}
		summaries = append(summaries, sum)

		logger.Info("Importing file", "file", ef.name)
		f, err := os.Open(filepath.Join(dir, ef.name))
		if err != nil {
			sum.Err = err
			logger.Error("Cannot open export file, skipping it", "file", ef.name, "error", err)
			continue
		}

		if err := ef.run(im, ctx, f, sum); err != nil {
			sum.Err = err
			logger.Error("File import failed", "file", ef.name, "error", err)
		}
		f.Close()

		logger.Info("File import finished",
			"file", ef.name,
			"processed", sum.Processed,
			"imported", sum.Imported,
			"skipped", sum.Skipped,
			"warnings", len(sum.Warnings),
		)
	}

	logger.Info("Catalog import run complete")
	return summaries
}

// ImportBooks imports the accession register.
func (im *Importer) ImportBooks(ctx context.Context, src RowSource, sum *Summary) error {
	engine := NewItemImporter(im.store, im.router, im.warnSink(sum))
	return im.eachRow(ctx, src, sum, func(row Row) error {
		_, err := engine.UpsertItem(ctx, row)
		return err
	})
}

// ImportBorrows imports the current circulation export.
func (im *Importer) ImportBorrows(ctx context.Context, src RowSource, sum *Summary) error {
	reconciler := NewBorrowReconciler(im.store, im.router, im.warnSink(sum))
	return im.eachRow(ctx, src, sum, func(row Row) error {
		return reconciler.Reconcile(ctx, row)
	})
}

// warnSink returns a warn function that records the line on the
// summary, logs it, and counts it.
func (im *Importer) warnSink(sum *Summary) warnFunc {
	return func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		sum.Warnings = append(sum.Warnings, line)
		im.logger.Warn(line, "file", sum.File)
		monitoring.RecordWarning()
	}
}

// eachRow drives fn over every row of src. Row-level errors are
// warnings, not failures: the row is counted as skipped and the loop
// continues. Only a broken source stops the file.
func (im *Importer) eachRow(ctx context.Context, src RowSource, sum *Summary, fn func(Row) error) error {
	warn := im.warnSink(sum)
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", sum.File, err)
		}
		im.applyRow(sum, warn, func() error { return fn(row) })
	}
}

// eachRecord is eachRow for positional sources.
func (im *Importer) eachRecord(ctx context.Context, src RecordSource, sum *Summary, fn func([]string) error) error {
	warn := im.warnSink(sum)
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", sum.File, err)
		}
		im.applyRow(sum, warn, func() error { return fn(rec) })
	}
}

func (im *Importer) applyRow(sum *Summary, warn warnFunc, fn func() error) {
	sum.Processed++
	monitoring.RecordRowProcessed(sum.File)

	err := fn()
	if err == nil {
		sum.Imported++
		return
	}

	sum.Skipped++
	var skip *SkipError
	if errors.As(err, &skip) {
		warn("%s", skip.Error())
		monitoring.RecordRowSkipped(sum.File, string(skip.Reason))
		return
	}
	warn("row %d: %v", sum.Processed, err)
	monitoring.RecordRowSkipped(sum.File, "error")
}
