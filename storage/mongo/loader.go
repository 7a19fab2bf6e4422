package mongo

import (
	"context"
	"io"

	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// RecordSink receives records for bulk loading.
type RecordSink interface {
	InsertRecords(ctx context.Context, database, name string, records []map[string]any) (int, error)
}

// LoadCSV parses a CSV with a header row and inserts one document per row.
// Cells matching opts.MissingTokens are stored as null, numeric columns as
// numbers.
func LoadCSV(ctx context.Context, sink RecordSink, database, name string, r io.Reader, opts dataset.Options) (int, error) {
	f, err := dataset.ReadCSV(r, opts)
	if err != nil {
		return 0, errors.Wrap(err, "read csv")
	}
	if f.NumRows() == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "csv has no rows")
	}
	records := make([]map[string]any, f.NumRows())
	for i := range records {
		records[i] = f.Row(i)
	}
	return sink.InsertRecords(ctx, database, name, records)
}
