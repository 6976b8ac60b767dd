package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Input.Format)
	assert.Equal(t, 0, cfg.Input.SheetIndex)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "soil_data.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "replace", cfg.Store.Mode)
	assert.Equal(t, int32(4), cfg.Store.MaxConns)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "2006-01-02", cfg.Pipeline.DateLayout)
	assert.Equal(t, "soil-etl", cfg.Metrics.Job)
	assert.Empty(t, cfg.Metrics.Textfile)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
input:
  path: data/soil.xlsx
  sheet: Sheet1
store:
  driver: postgres
  database_url: postgres://localhost/soil
  mode: upsert
pipeline:
  workers: 8
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/soil.xlsx", cfg.Input.Path)
	assert.Equal(t, "Sheet1", cfg.Input.Sheet)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "upsert", cfg.Store.Mode)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "2006-01-02", cfg.Pipeline.DateLayout)
	assert.Equal(t, "auto", cfg.Input.Format)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SOIL_STORE_DRIVER", "postgres")
	t.Setenv("SOIL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SOIL_PIPELINE_WORKERS", "2")
	t.Setenv("SOIL_INPUT_PATH", "/data/in.csv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "/data/in.csv", cfg.Input.Path)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Input:    InputConfig{Path: "soil.xlsx", Format: "auto"},
		Store:    StoreConfig{Driver: "sqlite", DatabaseURL: "soil_data.db", Mode: "replace"},
		Pipeline: PipelineConfig{Workers: 4, DateLayout: "2006-01-02"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"normalize", "inspect", "migrate", "runs"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mode string
		mod  func(*Config)
		want string
	}{
		{"missing input", "normalize", func(c *Config) { c.Input.Path = "" }, "input.path is required"},
		{"bad format", "inspect", func(c *Config) { c.Input.Format = "json" }, "input.format must be auto, xlsx or csv"},
		{"negative sheet", "inspect", func(c *Config) { c.Input.SheetIndex = -1 }, "input.sheet_index must be >= 0"},
		{"zero workers", "normalize", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers must be between 1 and 64"},
		{"too many workers", "inspect", func(c *Config) { c.Pipeline.Workers = 65 }, "pipeline.workers must be between 1 and 64"},
		{"unknown driver", "normalize", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver must be sqlite, postgres or none"},
		{"missing url", "migrate", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url is required"},
		{"sqlite upsert", "normalize", func(c *Config) { c.Store.Mode = "upsert" }, "store.mode upsert requires the postgres driver"},
		{"unknown store mode", "normalize", func(c *Config) { c.Store.Mode = "append" }, "store.mode must be replace or upsert"},
		{"migrate without database", "migrate", func(c *Config) { c.Store.Driver = "none" }, "store.driver none has no database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mod(cfg)
			err := cfg.Validate(tt.mode)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_StoreNotCheckedForInspect(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	assert.NoError(t, cfg.Validate("inspect"))
}

func TestValidate_NormalizeWithoutStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "none"
	cfg.Store.DatabaseURL = ""
	assert.NoError(t, cfg.Validate("normalize"))
}

func TestValidate_PostgresUpsert(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/soil"
	cfg.Store.Mode = "upsert"
	assert.NoError(t, cfg.Validate("normalize"))
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.Path = ""
	cfg.Pipeline.Workers = 0

	err := cfg.Validate("normalize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.path is required; pipeline.workers must be between 1 and 64")
}
