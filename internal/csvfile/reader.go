package csvfile

import (
	"encoding/csv"
	"io"
	"strings"
)

// RecordReader yields raw positional records, header row included.
// Used for exports whose header must be validated byte-for-byte.
type RecordReader struct {
	r *csv.Reader
}

func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: newCSVReader(r)}
}

// Next returns the next record, or io.EOF after the last one.
func (r *RecordReader) Next() ([]string, error) {
	return r.r.Read()
}

// RowReader yields rows keyed by the header line, in the style of a
// dict reader. Short rows are padded with empty strings; extra cells
// beyond the header are dropped.
type RowReader struct {
	r      *csv.Reader
	header []string
}

func NewRowReader(r io.Reader) *RowReader {
	return &RowReader{r: newCSVReader(r)}
}

// Next returns the next row as a header-keyed map, or io.EOF after the
// last one. The header line is consumed on the first call.
func (r *RowReader) Next() (map[string]string, error) {
	if r.header == nil {
		header, err := r.r.Read()
		if err != nil {
			return nil, err
		}
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
		r.header = header
	}

	rec, err := r.r.Read()
	if err != nil {
		return nil, err
	}

	row := make(map[string]string, len(r.header))
	for i, name := range r.header {
		if i < len(rec) {
			row[name] = rec[i]
		} else {
			row[name] = ""
		}
	}
	return row, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	// Real-world legacy exports have ragged rows and sloppy quoting.
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}
