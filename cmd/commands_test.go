package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/soil-etl/internal/config"
	"github.com/sells-group/soil-etl/internal/model"
	"github.com/sells-group/soil-etl/internal/schema"
	"github.com/sells-group/soil-etl/internal/store"
)

// writeFixture writes a small wide-record CSV and returns its path.
func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "soil.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(model.RequiredColumns))
	rows := [][]string{
		{"1", "10", "P1", "D1", "36.8", "-1.3", "Kenya", "0", "10", "A", "0", "1.5",
			`{"1:calculation = x, treatment = none", "2:calculation = y"}`, "{1: 1.2, 2: 1.4}", "{1: 2019-03-03, 2: 2019/03/03}"},
		{"2", "20", "P2", "D1", "36.9", "-1.4", "Kenya", "0", "20", "B", "", "3",
			`{"1:calculation = x"}`, "{1: 3.0}", "{1: ????}"},
		{"3", "30", "P3", "D1", "37", "-1.5", "Kenya", "0", "30", "C", "", "2",
			"not a method", "{1: 9}", "{1: 2020-01-01}"},
	}
	require.NoError(t, w.WriteAll(rows))
	return path
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestNormalizeCommand_SQLite(t *testing.T) {
	dir := chdirTemp(t)
	input := writeFixture(t, dir)
	dsn := filepath.Join(dir, "out.db")

	t.Setenv("SOIL_STORE_DRIVER", "sqlite")
	t.Setenv("SOIL_STORE_DATABASE_URL", dsn)
	t.Setenv("SOIL_LOG_LEVEL", "error")

	rootCmd.SetArgs([]string{"normalize", "--input", input, "--quiet"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	st, err := store.NewSQLite(dsn)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusComplete, runs[0].Status)
	assert.Contains(t, string(runs[0].Report), `"dropped_records":1`)
	assert.Contains(t, string(runs[0].Report), `"orgc_profile_layer":3`)
}

func TestInspect_RendersReview(t *testing.T) {
	dir := t.TempDir()
	cfg = &config.Config{
		Input:    config.InputConfig{Path: writeFixture(t, dir), Format: "auto"},
		Pipeline: config.PipelineConfig{Workers: 2, DateLayout: "2006-01-02"},
	}

	in, err := loadInput(context.Background())
	require.NoError(t, err)
	require.Len(t, in.Records, 3)

	var buf bytes.Buffer
	require.NoError(t, inspect(context.Background(), &buf, in))

	out := buf.String()
	assert.Contains(t, out, "run:\n")
	assert.Contains(t, out, "dropped_records: 1\n")
	assert.Contains(t, out, "review:\n")
	assert.Contains(t, out, "name: expanded\n")
	assert.Contains(t, out, "name: orgc_profile_layer\n")
	assert.Contains(t, out, "encodings:\n")
	assert.Contains(t, out, "- not a method\n")
}

func TestLoadInput_Missing(t *testing.T) {
	cfg = &config.Config{Input: config.InputConfig{Path: filepath.Join(t.TempDir(), "nope.csv")}}

	_, err := loadInput(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load input")
}

func TestRunError(t *testing.T) {
	violation := eris.Wrap(&schema.ContractError{Table: model.TableMethod, Kind: "missing columns", Columns: []string{"id"}}, "pipeline: 6_validate")

	err := runError(violation)
	assert.Contains(t, err.Error(), "normalize: schema contract violated")
	assert.True(t, schema.IsContractError(err))

	err = runError(eris.New("store: save failed"))
	assert.NotContains(t, err.Error(), "schema contract")
	assert.False(t, schema.IsContractError(err))
}
