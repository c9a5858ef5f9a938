// Package extract turns document text into per-field extraction results.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/resilience"
)

// Input is one document handed to an extractor.
type Input struct {
	DocumentID string
	Filename   string
	Text       string
}

// Extractor produces field values from a document.
type Extractor interface {
	Extract(ctx context.Context, in Input) (model.DocumentData, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, in Input) (model.DocumentData, error)

// Extract implements Extractor.
func (f Func) Extract(ctx context.Context, in Input) (model.DocumentData, error) {
	return f(ctx, in)
}

// Chain runs extractors in order and merges their output field by field.
// A higher confidence wins; on equal confidence the later extractor wins.
// A failing extractor is skipped. Chain errors only if every extractor
// failed.
type Chain []Extractor

// Extract implements Extractor.
func (c Chain) Extract(ctx context.Context, in Input) (model.DocumentData, error) {
	out := model.DocumentData{}
	var lastErr error
	failed := 0

	for i, ex := range c {
		data, err := ex.Extract(ctx, in)
		if err != nil {
			failed++
			lastErr = err
			zap.L().Warn("extract: extractor failed",
				zap.Int("index", i),
				zap.String("filename", in.Filename),
				zap.Error(err),
			)
			continue
		}
		mergeInto(out, data)
	}

	if len(c) > 0 && failed == len(c) {
		return model.DocumentData{}, eris.Wrap(lastErr, "extract: all extractors failed")
	}
	return out, nil
}

func mergeInto(dst, src model.DocumentData) {
	for name, v := range src {
		r := v.Normalize()
		if model.IsEmptyValue(r.Value) {
			continue
		}
		if cur, ok := dst[name]; ok && cur.Normalize().Confidence > r.Confidence {
			continue
		}
		dst[name] = model.Structured(r)
	}
}

// SafeExtractor bounds an extractor with a per-attempt timeout and retries
// transient failures. It never returns an error: a document whose
// extraction ultimately fails yields no fields.
type SafeExtractor struct {
	name    string
	inner   Extractor
	timeout time.Duration
	retry   resilience.RetryConfig
}

// Safe wraps inner. A zero timeout disables the per-attempt deadline.
func Safe(name string, inner Extractor, timeout time.Duration, retry resilience.RetryConfig) *SafeExtractor {
	retry.OnRetry = resilience.RetryLogger("extract", name)
	return &SafeExtractor{name: name, inner: inner, timeout: timeout, retry: retry}
}

// Extract implements Extractor.
func (s *SafeExtractor) Extract(ctx context.Context, in Input) (model.DocumentData, error) {
	cfg := s.retry
	cfg.ShouldRetry = func(err error) bool {
		return resilience.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
	}

	data, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.DocumentData, error) {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return s.inner.Extract(ctx, in)
	})
	if err != nil {
		zap.L().Warn("extract: giving up on document",
			zap.String("extractor", s.name),
			zap.String("document_id", in.DocumentID),
			zap.String("filename", in.Filename),
			zap.Error(err),
		)
		return model.DocumentData{}, nil
	}
	if data == nil {
		data = model.DocumentData{}
	}
	return data, nil
}
