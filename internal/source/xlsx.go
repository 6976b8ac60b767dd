package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects a worksheet. SheetName wins over SheetIndex.
type XLSXOptions struct {
	SheetIndex int
	SheetName  string
}

// StreamXLSX emits the rows of the selected worksheet, header included.
// The workbook is parsed up front; only delivery is streamed.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (<-chan Row, <-chan error) {
	return newRowStream(ctx, "xlsx").run(func(s *rowStream) error {
		sheet, err := openSheet(path, opts)
		if err != nil {
			return err
		}
		for i, row := range sheet.Rows {
			if err := s.emit(i+1, cellStrings(row)); err != nil {
				return err
			}
		}
		return nil
	})
}

func openSheet(path string, opts XLSXOptions) (*xlsx.Sheet, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if name := opts.SheetName; name != "" {
		if sheet, ok := wb.Sheet[name]; ok {
			return sheet, nil
		}
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}
	if n := len(wb.Sheets); opts.SheetIndex < 0 || opts.SheetIndex >= n {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, n)
	}
	return wb.Sheets[opts.SheetIndex], nil
}

// cellStrings renders a row's cells, dropping trailing blanks left behind
// by formatted but empty cells.
func cellStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = c.String()
	}
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	return cells[:end]
}
