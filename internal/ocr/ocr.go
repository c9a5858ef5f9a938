// Package ocr turns source documents into plain text for the extractors.
package ocr

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfill/internal/config"
)

// ErrUnsupported is returned for file types no configured extractor reads.
var ErrUnsupported = errors.New("ocr: unsupported file type")

// Extractor extracts text content from a document on disk.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Router dispatches to an Extractor by file extension.
type Router struct {
	byExt map[string]Extractor
}

// ExtractText implements Extractor.
func (r *Router) ExtractText(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return "", eris.Wrapf(ErrUnsupported, "extract %s", filepath.Base(path))
	}
	return e.ExtractText(ctx, path)
}

// Supports reports whether path has an extension the router handles.
func (r *Router) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// NewExtractor creates a Router based on config. Text and spreadsheet
// files are always readable. PDFs go to the configured provider (local
// pdftotext, in-process native, or mistral) and images require mistral.
func NewExtractor(cfg config.OCRConfig) (*Router, error) {
	plain := PlainText{}
	r := &Router{byExt: map[string]Extractor{
		".txt":  plain,
		".md":   plain,
		".csv":  plain,
		".xlsx": XLSXText{},
	}}

	switch cfg.Provider {
	case "local", "":
		r.byExt[".pdf"] = NewPdfToText(cfg.PdfToTextPath)
	case "native":
		r.byExt[".pdf"] = NativePDF{}
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		m := NewMistralOCR(cfg.MistralKey, cfg.MistralModel)
		for _, ext := range []string{".pdf", ".png", ".jpg", ".jpeg", ".webp"} {
			r.byExt[ext] = m
		}
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
	return r, nil
}
