package source

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV reader. A zero Delimiter means ','.
type CSVOptions struct {
	Delimiter rune
}

// StreamCSV emits every CSV row, header included. Quotes are parsed
// leniently and rows may differ in width; the decoder pads or ignores
// cells by header position.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Row, <-chan error) {
	return newRowStream(ctx, "csv").run(func(s *rowStream) error {
		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		for {
			fields, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return eris.Wrap(err, "csv: read row")
			}
			line, _ := reader.FieldPos(0)
			if err := s.emit(line, fields); err != nil {
				return err
			}
		}
	})
}
