package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/soil-etl/internal/model"
)

var header = []string{
	"X", "Y", "profile_id", "profile_layer_id", "country_name", "upper_depth", "lower_depth",
	"layer_name", "litter", "orgc_value", "orgc_value_avg", "orgc_method", "orgc_date",
	"orgc_dataset_id", "orgc_profile_code",
}

var sampleRow = []string{
	"4.35", "50.85", "61234", "345", "Belgium", "0", "20.0",
	"Ap", "", "{1: 1.52}", "1.52", `{"1:calculation = unknown"}`, "{1: 1990-07-01}",
	"BE-UGENT", "BE-61234",
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(rowCh <-chan Row, errCh <-chan error) ([][]string, error) {
	var rows [][]string
	for r := range rowCh {
		rows = append(rows, r.Fields)
	}
	return rows, <-errCh
}

func TestStreamXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})
	ctx := context.Background()

	rows, err := collect(StreamXLSX(ctx, path, XLSXOptions{SheetName: "Second"}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "y"}, {"1", "2"}}, rows)

	_, err = collect(StreamXLSX(ctx, path, XLSXOptions{SheetName: "Missing"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)

	_, err = collect(StreamXLSX(ctx, path, XLSXOptions{SheetIndex: 5}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestStreamXLSX_MissingFile(t *testing.T) {
	_, err := collect(StreamXLSX(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

func TestStreamXLSX_Cancelled(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}, {"b"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamXLSX(ctx, path, XLSXOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestStreamCSV(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a;b\n1;2\n3\n"), CSVOptions{Delimiter: ';'})
	var rows [][]string
	var lines []int
	for r := range rowCh {
		rows = append(rows, r.Fields)
		lines = append(lines, r.Line)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}, {"3"}}, rows)
	assert.Equal(t, []int{1, 2, 3}, lines)
}

func TestStreamXLSX_TrimsTrailingBlanks(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a", "b", " ", ""}, {"1"}}})

	rowCh, errCh := StreamXLSX(context.Background(), path, XLSXOptions{})
	var rows []Row
	for r := range rowCh {
		rows = append(rows, r)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []Row{{Line: 1, Fields: []string{"a", "b"}}, {Line: 2, Fields: []string{"1"}}}, rows)
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"X", "x"},
		{"  Profile ID ", "profile_id"},
		{"\ufeffprofile_id", "profile_id"},
		{"Orgc-Value (avg)", "orgc_value_avg"},
		{"País", "pais"},
		{"country__name", "country_name"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeHeader(tt.in))
		})
	}
}

func TestNewDecoder_MissingColumns(t *testing.T) {
	_, err := NewDecoder([]string{"X", "Y", "profile_id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: missing required columns")
	assert.Contains(t, err.Error(), "orgc_method")
	assert.NotContains(t, err.Error(), "profile_id,")
}

func TestDecoder_Decode(t *testing.T) {
	dec, err := NewDecoder(header)
	require.NoError(t, err)

	rec := dec.Decode(sampleRow)
	assert.Equal(t, 4.35, *rec.X)
	assert.Equal(t, 50.85, *rec.Y)
	assert.Equal(t, int64(61234), *rec.ProfileID)
	assert.Equal(t, int64(20), *rec.LowerDepth, "integral floats decode as integers")
	assert.Nil(t, rec.Litter)
	assert.Equal(t, "BE-61234", *rec.ProfileCode)
	assert.Equal(t, `{"1:calculation = unknown"}`, *rec.MethodEncoding)
	assert.Empty(t, dec.Issues())
}

func TestDecoder_LenientNumbers(t *testing.T) {
	dec, err := NewDecoder(header)
	require.NoError(t, err)

	row := append([]string(nil), sampleRow...)
	row[0] = "east"
	row[5] = "0.5"
	row[10] = "NaN"
	rec := dec.Decode(row[:12])

	assert.Nil(t, rec.X)
	assert.Nil(t, rec.UpperDepth)
	assert.Nil(t, rec.ValueAvg)
	assert.Nil(t, rec.DateEncoding, "short rows read missing cells as null")
	assert.Equal(t, map[string]int{model.ColX: 1, model.ColUpperDepth: 1}, dec.Issues())
}

func TestDecoder_IntegerOutOfRange(t *testing.T) {
	dec, err := NewDecoder(header)
	require.NoError(t, err)

	row := append([]string(nil), sampleRow...)
	row[6] = "1e19"
	row[2] = "9223372036854775807.0"
	rec := dec.Decode(row)

	assert.Nil(t, rec.LowerDepth)
	assert.Nil(t, rec.ProfileID)
	assert.Equal(t, map[string]int{model.ColLowerDepth: 1, model.ColProfileID: 1}, dec.Issues())
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		format  Format
		want    Format
		wantErr bool
	}{
		{"data.xlsx", FormatAuto, FormatXLSX, false},
		{"DATA.CSV", "", FormatCSV, false},
		{"data.tsv", FormatAuto, FormatCSV, false},
		{"data.bin", FormatAuto, "", true},
		{"data.bin", FormatCSV, FormatCSV, false},
		{"data.csv", "parquet", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+string(tt.format), func(t *testing.T) {
			got, err := DetectFormat(tt.path, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {header, sampleRow, make([]string, len(header)), sampleRow},
	})

	res, err := Load(context.Background(), Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, header, res.Header)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Belgium", *res.Records[1].CountryName)
}

func TestLoad_CSV(t *testing.T) {
	var b strings.Builder
	b.WriteString(strings.Join(header, "\t") + "\n")
	b.WriteString(strings.Join(sampleRow, "\t") + "\n")
	path := writeFile(t, "wosis.tsv", b.String())

	res, err := Load(context.Background(), Options{Path: path})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "{1: 1990-07-01}", *res.Records[0].DateEncoding)
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Load(ctx, Options{Path: writeFile(t, "empty.csv", "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")

	_, err = Load(ctx, Options{Path: writeFile(t, "short.csv", "X,Y\n1,2\n")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")

	_, err = Load(ctx, Options{Path: filepath.Join(t.TempDir(), "absent.csv")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: open")

	_, err = Load(ctx, Options{Path: writeFile(t, "d.csv", "a"), Delimiter: "::"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single character")
}

func TestDelimiter(t *testing.T) {
	d, err := delimiter(Options{Path: "x.csv", Delimiter: `\t`})
	require.NoError(t, err)
	assert.Equal(t, '\t', d)

	d, err = delimiter(Options{Path: "x.csv"})
	require.NoError(t, err)
	assert.Equal(t, ',', d)

	d, err = delimiter(Options{Path: "x.csv", Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, ';', d)
}
