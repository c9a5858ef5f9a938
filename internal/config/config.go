package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Profile ProfileConfig `yaml:"profile" mapstructure:"profile"`
	Mapper  MapperConfig  `yaml:"mapper" mapstructure:"mapper"`
	Fill    FillConfig    `yaml:"fill" mapstructure:"fill"`
	Migrate MigrateConfig `yaml:"migrate" mapstructure:"migrate"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProfileConfig configures the profile merge engine.
type ProfileConfig struct {
	MaxMergeAttempts int `yaml:"max_merge_attempts" mapstructure:"max_merge_attempts"`
}

// MapperConfig configures field mapping.
type MapperConfig struct {
	AcceptanceThreshold float64 `yaml:"acceptance_threshold" mapstructure:"acceptance_threshold"`
	MaxSuggestions      int     `yaml:"max_suggestions" mapstructure:"max_suggestions"`
}

// FillConfig configures the fill engine.
type FillConfig struct {
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold" mapstructure:"low_confidence_threshold"`
}

// MigrateConfig configures the legacy extraction backfill.
type MigrateConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExtractConfig configures the upstream extractors.
type ExtractConfig struct {
	TimeoutSecs int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int             `yaml:"retries" mapstructure:"retries"`
	UseLLM      bool            `yaml:"use_llm" mapstructure:"use_llm"`
	OCR         OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Anthropic   AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
}

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// AnthropicConfig holds Anthropic API settings for LLM extraction.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// IngestConfig configures document ingestion.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int  `yaml:"port" mapstructure:"port"`
	AllowAll bool `yaml:"allow_all_origins" mapstructure:"allow_all_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml from the working directory, when present, and
// the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. A named file must exist.
// A .env file in the working directory is loaded first; variables already
// set in the environment win over it.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("DOCFILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "docfill.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("profile.max_merge_attempts", 5)
	v.SetDefault("mapper.acceptance_threshold", 0.7)
	v.SetDefault("mapper.max_suggestions", 5)
	v.SetDefault("fill.low_confidence_threshold", 50)
	v.SetDefault("migrate.concurrency", 4)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("extract.timeout_secs", 60)
	v.SetDefault("extract.retries", 2)
	v.SetDefault("extract.use_llm", false)
	v.SetDefault("extract.ocr.provider", "local")
	v.SetDefault("extract.ocr.pdftotext_path", "pdftotext")
	v.SetDefault("extract.ocr.mistral_ocr_model", "mistral-ocr-latest")
	v.SetDefault("extract.anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extract.anthropic.max_tokens", 2048)
	v.SetDefault("extract.anthropic.requests_per_second", 2)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "ingest":
		if c.Extract.UseLLM && c.Extract.Anthropic.Key == "" {
			errs = append(errs, "extract.anthropic.key is required when extract.use_llm is set")
		}
		if c.Extract.OCR.Provider == "mistral" && c.Extract.OCR.MistralKey == "" {
			errs = append(errs, "extract.ocr.mistral_api_key is required for the mistral provider")
		}
		if c.Ingest.Concurrency < 1 || c.Ingest.Concurrency > 32 {
			errs = append(errs, "ingest.concurrency must be between 1 and 32")
		}
	case "fill", "map":
	case "migrate":
		if c.Migrate.Concurrency < 1 || c.Migrate.Concurrency > 32 {
			errs = append(errs, "migrate.concurrency must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Profile.MaxMergeAttempts < 1 {
		errs = append(errs, "profile.max_merge_attempts must be >= 1")
	}
	if c.Mapper.AcceptanceThreshold <= 0 || c.Mapper.AcceptanceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("mapper.acceptance_threshold must be in (0, 1], got %g", c.Mapper.AcceptanceThreshold))
	}
	if c.Mapper.MaxSuggestions < 0 {
		errs = append(errs, "mapper.max_suggestions must be >= 0")
	}
	if c.Fill.LowConfidenceThreshold < 0 || c.Fill.LowConfidenceThreshold > 100 {
		errs = append(errs, "fill.low_confidence_threshold must be between 0 and 100")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
