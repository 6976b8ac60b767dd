package source

import (
	"context"

	"github.com/rotisserie/eris"
)

// Row is one raw input row. Line is 1-based and counts the header.
type Row struct {
	Line   int
	Fields []string
}

// rowStream is the producer half shared by the CSV and XLSX readers. The
// consumer ranges over rows and then reads at most one error.
type rowStream struct {
	ctx  context.Context
	kind string
	rows chan Row
	errs chan error
}

func newRowStream(ctx context.Context, kind string) *rowStream {
	return &rowStream{
		ctx:  ctx,
		kind: kind,
		rows: make(chan Row, 64),
		errs: make(chan error, 1),
	}
}

// run starts produce on its own goroutine and closes both channels when it
// returns.
func (s *rowStream) run(produce func(s *rowStream) error) (<-chan Row, <-chan error) {
	go func() {
		defer close(s.errs)
		defer close(s.rows)
		if err := produce(s); err != nil {
			s.errs <- err
		}
	}()
	return s.rows, s.errs
}

// emit hands a row to the consumer. It fails once the context is done.
func (s *rowStream) emit(line int, fields []string) error {
	if err := s.ctx.Err(); err != nil {
		return eris.Wrapf(err, "%s: context cancelled", s.kind)
	}
	select {
	case s.rows <- Row{Line: line, Fields: fields}:
		return nil
	case <-s.ctx.Done():
		return eris.Wrapf(s.ctx.Err(), "%s: context cancelled", s.kind)
	}
}
