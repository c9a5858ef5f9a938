package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "docfill.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Profile.MaxMergeAttempts)
	assert.InDelta(t, 0.7, cfg.Mapper.AcceptanceThreshold, 0.001)
	assert.Equal(t, 5, cfg.Mapper.MaxSuggestions)
	assert.InDelta(t, 50, cfg.Fill.LowConfidenceThreshold, 0.001)
	assert.Equal(t, 4, cfg.Migrate.Concurrency)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Equal(t, 60, cfg.Extract.TimeoutSecs)
	assert.Equal(t, 2, cfg.Extract.Retries)
	assert.False(t, cfg.Extract.UseLLM)
	assert.Equal(t, "local", cfg.Extract.OCR.Provider)
	assert.Equal(t, "pdftotext", cfg.Extract.OCR.PdfToTextPath)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Extract.Anthropic.Model)
	assert.Equal(t, int64(2048), cfg.Extract.Anthropic.MaxTokens)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/docfill
log:
  level: debug
  format: console
mapper:
  acceptance_threshold: 0.8
migrate:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/docfill", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.8, cfg.Mapper.AcceptanceThreshold, 0.001)
	assert.Equal(t, 8, cfg.Migrate.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Profile.MaxMergeAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("DOCFILL_STORE_DRIVER", "postgres")
	t.Setenv("DOCFILL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	t.Setenv("DOCFILL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docfill.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  database_url: /var/lib/docfill/profiles.db\nfill:\n  low_confidence_threshold: 65\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/docfill/profiles.db", cfg.Store.DatabaseURL)
	assert.InDelta(t, 65, cfg.Fill.LowConfidenceThreshold, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCFILL_EXTRACT_ANTHROPIC_KEY=sk-from-dotenv\nDOCFILL_SERVER_PORT=9000\n"), 0o644))
	t.Setenv("DOCFILL_SERVER_PORT", "9100")
	t.Setenv("DOCFILL_EXTRACT_ANTHROPIC_KEY", "")
	os.Unsetenv("DOCFILL_EXTRACT_ANTHROPIC_KEY") //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", cfg.Extract.Anthropic.Key)
	assert.Equal(t, 9100, cfg.Server.Port)
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
	cfg := &Config{}
	cfg.Store.DatabaseURL = "docfill.db"
	cfg.Profile.MaxMergeAttempts = 5
	cfg.Mapper.AcceptanceThreshold = 0.7
	cfg.Fill.LowConfidenceThreshold = 50
	cfg.Migrate.Concurrency = 4
	cfg.Ingest.Concurrency = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModesWithDefaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"ingest", "fill", "map", "migrate", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateIngest_LLMNeedsKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.UseLLM = true

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.anthropic.key is required")

	cfg.Extract.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidateIngest_MistralNeedsKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.OCR.Provider = "mistral"

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral_api_key")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Migrate.Concurrency = 0
	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "migrate.concurrency must be between 1 and 32")

	cfg.Migrate.Concurrency = 33
	assert.Error(t, cfg.Validate("migrate"))

	cfg.Migrate.Concurrency = 32
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateThresholds(t *testing.T) {
	cfg := validDefaults()

	cfg.Mapper.AcceptanceThreshold = 0
	err := cfg.Validate("map")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mapper.acceptance_threshold")

	cfg.Mapper.AcceptanceThreshold = 0.7
	cfg.Mapper.MaxSuggestions = -1
	err = cfg.Validate("map")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mapper.max_suggestions")

	cfg.Mapper.MaxSuggestions = 5
	cfg.Fill.LowConfidenceThreshold = 150
	err = cfg.Validate("fill")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fill.low_confidence_threshold")

	cfg.Fill.LowConfidenceThreshold = 50
	cfg.Profile.MaxMergeAttempts = 0
	err = cfg.Validate("fill")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "profile.max_merge_attempts")
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}
