// Package pipeline ties extraction, profile merging, mapping and filling
// together for one client.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docfill/internal/config"
	"github.com/sells-group/docfill/internal/extract"
	"github.com/sells-group/docfill/internal/fill"
	"github.com/sells-group/docfill/internal/mapper"
	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/ocr"
	"github.com/sells-group/docfill/internal/profile"
	"github.com/sells-group/docfill/internal/store"
)

// ErrClientRequired is returned when an operation is called without a client ID.
var ErrClientRequired = errors.New("pipeline: client id is required")

const defaultBatchConcurrency = 4

// Pipeline orchestrates document ingestion and form filling.
type Pipeline struct {
	store     store.Store
	text      ocr.Extractor
	extractor extract.Extractor
	profiles  *profile.Merger
	mapper    *mapper.Mapper
	filler    *fill.Engine
}

// New creates a Pipeline. text and extractor may be nil when only
// pre-extracted data is ingested.
func New(cfg *config.Config, st store.Store, text ocr.Extractor, extractor extract.Extractor) *Pipeline {
	filler := fill.NewEngine()
	filler.LowConfidenceThreshold = cfg.Fill.LowConfidenceThreshold
	return &Pipeline{
		store:     st,
		text:      text,
		extractor: extractor,
		profiles:  profile.NewMerger(st, profile.WithMaxAttempts(cfg.Profile.MaxMergeAttempts)),
		mapper:    mapper.New(mapper.WithThreshold(cfg.Mapper.AcceptanceThreshold), mapper.WithMaxSuggestions(cfg.Mapper.MaxSuggestions)),
		filler:    filler,
	}
}

// Profiles returns the merger shared by every write path, so manual edits
// and document merges for one client serialize on the same lock.
func (p *Pipeline) Profiles() *profile.Merger {
	return p.profiles
}

// IngestResult describes one ingested document.
type IngestResult struct {
	Path           string          `json:"path,omitempty"`
	Document       *model.Document `json:"document,omitempty"`
	ProfileChanged bool            `json:"profileChanged"`
	Error          string          `json:"error,omitempty"`
}

// Ingest records a source file, extracts its fields and merges them into
// the client's profile. Text or field extraction failures leave the
// document with no fields; only store failures are returned.
func (p *Pipeline) Ingest(ctx context.Context, clientID, path string) (*IngestResult, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}
	log := zap.L().With(zap.String("client_id", clientID), zap.String("path", path))

	doc, err := p.store.CreateDocument(ctx, clientID, filepath.Base(path))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create document")
	}

	data := model.DocumentData{}
	if p.text != nil && p.extractor != nil {
		text, err := p.text.ExtractText(ctx, path)
		if err != nil {
			log.Warn("pipeline: text extraction failed", zap.Error(err))
		}
		data, err = p.extractor.Extract(ctx, extract.Input{DocumentID: doc.ID, Filename: doc.Filename, Text: text})
		if err != nil {
			log.Warn("pipeline: field extraction failed", zap.Error(err))
		}
		if data == nil {
			data = model.DocumentData{}
		}
	}

	res, err := p.record(ctx, doc, data)
	if err != nil {
		return nil, err
	}
	res.Path = path
	return res, nil
}

// IngestData records an already-extracted document and merges it.
func (p *Pipeline) IngestData(ctx context.Context, clientID, filename string, data model.DocumentData) (*IngestResult, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}
	doc, err := p.store.CreateDocument(ctx, clientID, filename)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create document")
	}
	if data == nil {
		data = model.DocumentData{}
	}
	return p.record(ctx, doc, data)
}

func (p *Pipeline) record(ctx context.Context, doc *model.Document, data model.DocumentData) (*IngestResult, error) {
	if err := p.store.UpdateDocumentData(ctx, doc.ID, data); err != nil {
		return nil, eris.Wrapf(err, "pipeline: save extraction for %s", doc.ID)
	}
	doc.ExtractedData = data

	changed, err := p.profiles.MergeDocument(ctx, doc.ClientID, doc.ID, data)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: merge document")
	}

	zap.L().Info("pipeline: document ingested",
		zap.String("client_id", doc.ClientID),
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("fields", len(data)),
		zap.Bool("profile_changed", changed),
	)
	return &IngestResult{Document: doc, ProfileChanged: changed}, nil
}

// IngestBatch ingests several files for one client concurrently. Results
// keep the order of paths; a failed file carries its error and does not
// stop the others.
func (p *Pipeline) IngestBatch(ctx context.Context, clientID string, paths []string, concurrency int) ([]IngestResult, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	results := make([]IngestResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := p.Ingest(gctx, clientID, path)
			if err != nil {
				zap.L().Error("pipeline: ingest failed", zap.String("path", path), zap.Error(err))
				results[i] = IngestResult{Path: path, Error: err.Error()}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: ingest batch")
	}
	return results, nil
}

// Outcome is the result of mapping, and optionally filling, a form from a
// client's profile.
type Outcome struct {
	Mapping model.MappingResult `json:"mapping"`
	Result  *model.FillResult   `json:"result,omitempty"`
	Report  string              `json:"report,omitempty"`
}

// MapProfile maps the client's profile onto schema. A client without a
// profile gets a mapping with every form field unmapped.
func (p *Pipeline) MapProfile(ctx context.Context, clientID string, schema *model.FormSchema, pinned []model.FieldMapping) (*Outcome, error) {
	candidates, err := p.candidates(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Mapping: p.mapper.Map(candidates, schema.Fields, pinned)}, nil
}

// FillProfile maps the client's profile onto schema and writes the result
// into form. The fill result carries the overall mapping confidence.
func (p *Pipeline) FillProfile(ctx context.Context, clientID string, schema *model.FormSchema, form fill.Form, pinned []model.FieldMapping) (*Outcome, error) {
	candidates, err := p.candidates(ctx, clientID)
	if err != nil {
		return nil, err
	}
	mapping := p.mapper.Map(candidates, schema.Fields, pinned)

	data := make(model.DocumentData, len(candidates))
	for _, c := range candidates {
		data[c.Name] = model.Structured(c.Result)
	}

	res := p.filler.Fill(form, mapping.Mappings, data)
	res.OverallConfidence = mapper.OverallConfidence(mapping.Mappings)

	zap.L().Info("pipeline: form filled",
		zap.String("client_id", clientID),
		zap.String("form", schema.Name),
		zap.Int("unmapped", len(mapping.UnmappedFormFields)),
	)
	return &Outcome{
		Mapping: mapping,
		Result:  &res,
		Report:  fill.FormatReport(schema.Name, mapping.Mappings, res),
	}, nil
}

func (p *Pipeline) candidates(ctx context.Context, clientID string) ([]mapper.Candidate, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}
	prof, err := p.profiles.Get(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load profile %s", clientID)
	}
	return mapper.CandidatesFromProfile(prof), nil
}
