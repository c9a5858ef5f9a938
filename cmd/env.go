package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/config"
	"github.com/sells-group/docfill/internal/extract"
	"github.com/sells-group/docfill/internal/ocr"
	"github.com/sells-group/docfill/internal/pipeline"
	"github.com/sells-group/docfill/internal/resilience"
	"github.com/sells-group/docfill/internal/store"
	"github.com/sells-group/docfill/pkg/anthropic"
)

// appEnv holds the store and pipeline shared by the commands.
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "docfill.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates config for mode, opens and migrates the store and
// builds the pipeline. Extractors are only wired for ingest. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var (
		text      ocr.Extractor
		extractor extract.Extractor
	)
	if mode == "ingest" {
		text, extractor, err = buildExtractors(cfg.Extract)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	return &appEnv{Store: st, Pipeline: pipeline.New(cfg, st, text, extractor)}, nil
}

// buildExtractors wires the text router and the extractor chain: patterns
// first, then the LLM when enabled, each bounded by Safe.
func buildExtractors(ec config.ExtractConfig) (ocr.Extractor, extract.Extractor, error) {
	router, err := ocr.NewExtractor(ec.OCR)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init ocr")
	}

	timeout := time.Duration(ec.TimeoutSecs) * time.Second
	retry := resilience.FromRetries(ec.Retries)

	chain := extract.Chain{
		extract.Safe("pattern", extract.NewPatternExtractor(), timeout, retry),
	}
	if ec.UseLLM {
		llm := extract.NewLLMExtractor(anthropic.NewClient(ec.Anthropic.Key), ec.Anthropic)
		chain = append(chain, extract.Safe("llm", llm, timeout, retry))
		zap.L().Info("llm extraction enabled", zap.String("model", ec.Anthropic.Model))
	}
	return router, chain, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
