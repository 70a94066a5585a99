// Package csvrecords reads CSV files into the row maps the batch runner
// consumes and writes annotated records back out.
package csvrecords

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/studiocloud/mailverify/batch"
)

// ErrNoHeader is returned for input without a header line.
var ErrNoHeader = errors.New("csv has no header row")

// Read parses r, using the first non-empty line as the header. Values are
// trimmed, blank lines are skipped and missing trailing fields are empty.
func Read(r io.Reader) (headers []string, rows []map[string]string, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse csv: %w", err)
		}
		if isBlank(rec) {
			continue
		}

		if headers == nil {
			headers = make([]string, len(rec))
			for i, h := range rec {
				headers[i] = strings.TrimSpace(h)
			}
			headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
			continue
		}

		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	if headers == nil {
		return nil, nil, ErrNoHeader
	}
	return headers, rows, nil
}

// Write emits headers followed by the output columns, then one line per
// record.
func Write(w io.Writer, headers []string, records []batch.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, headers...), batch.Columns...)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(rec.Values(headers)); err != nil {
			return fmt.Errorf("write csv record %d: %w", rec.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
