// Package source reads wide soil-carbon records from spreadsheet and CSV
// exports.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/model"
)

// Format names an input file format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Options locates and configures the input.
type Options struct {
	Path       string
	Format     Format
	SheetName  string
	SheetIndex int
	// Delimiter is the CSV field separator; empty means ',' (or tab for
	// .tsv files).
	Delimiter string
}

// Result is a decoded input file.
type Result struct {
	Header  []string
	Records []model.WideRecord
	// Issues counts numeric cells decoded as null, per column.
	Issues map[string]int
}

// DetectFormat resolves FormatAuto from the file extension.
func DetectFormat(path string, f Format) (Format, error) {
	if f != "" && f != FormatAuto {
		if f != FormatXLSX && f != FormatCSV {
			return "", eris.Errorf("source: unknown format %q", f)
		}
		return f, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	}
	return "", eris.Errorf("source: cannot detect format of %s", path)
}

// Load reads every row of the input, treating the first row as the header.
// Entirely blank rows are skipped.
func Load(ctx context.Context, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "source"), zap.String("path", opts.Path))

	format, err := DetectFormat(opts.Path, opts.Format)
	if err != nil {
		return nil, err
	}

	var rowCh <-chan Row
	var errCh <-chan error

	switch format {
	case FormatXLSX:
		rowCh, errCh = StreamXLSX(ctx, opts.Path, XLSXOptions{SheetName: opts.SheetName, SheetIndex: opts.SheetIndex})
	case FormatCSV:
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "source: open %s", opts.Path)
		}
		defer f.Close() //nolint:errcheck

		delim, err := delimiter(opts)
		if err != nil {
			return nil, err
		}
		rowCh, errCh = StreamCSV(ctx, f, CSVOptions{Delimiter: delim})
	}

	res := &Result{}
	var dec *Decoder
	var decErr error
	skipped := 0

	for row := range rowCh {
		if decErr != nil {
			continue // drain so the producer can exit
		}
		if res.Header == nil {
			res.Header = row.Fields
			dec, decErr = NewDecoder(row.Fields)
			continue
		}
		if blank(row.Fields) {
			log.Debug("blank row skipped", zap.Int("line", row.Line))
			skipped++
			continue
		}
		res.Records = append(res.Records, dec.Decode(row.Fields))
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "source: read")
	}
	if res.Header == nil {
		return nil, eris.Errorf("source: %s is empty", opts.Path)
	}
	if decErr != nil {
		return nil, decErr
	}

	res.Issues = dec.Issues()
	for col, n := range res.Issues {
		log.Warn("non-numeric cells read as null", zap.String("column", col), zap.Int("count", n))
	}
	log.Info("input loaded",
		zap.String("format", string(format)),
		zap.Int("records", len(res.Records)),
		zap.Int("blank_rows", skipped),
	)
	return res, nil
}

func delimiter(opts Options) (rune, error) {
	if opts.Delimiter == "" {
		if strings.EqualFold(filepath.Ext(opts.Path), ".tsv") {
			return '\t', nil
		}
		return ',', nil
	}
	d := opts.Delimiter
	if d == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) {
		return 0, eris.Errorf("source: delimiter must be a single character, got %q", d)
	}
	return r, nil
}
