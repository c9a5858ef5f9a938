// Package migrate backfills legacy extraction records into the structured
// per-field format.
package migrate

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/resilience"
	"github.com/sells-group/docfill/internal/store"
)

const defaultConcurrency = 4

// Options controls a backfill run.
type Options struct {
	DryRun      bool
	Limit       int
	Concurrency int

	// Progress, when set, is called once per examined document with a
	// monotonically increasing done count.
	Progress func(done, total int)
}

// DocumentError describes one document that could not be migrated.
type DocumentError struct {
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	Message    string `json:"message"`
}

// Result counts the outcome of a run. Migrated counts documents that were
// (or, in a dry run, would be) rewritten.
type Result struct {
	Migrated int64           `json:"migrated"`
	Skipped  int64           `json:"skipped"`
	Errored  int64           `json:"errored"`
	DryRun   bool            `json:"dryRun"`
	Errors   []DocumentError `json:"errors,omitempty"`
}

// Migrator converts legacy field values stored on documents.
type Migrator struct {
	store store.Store
	retry resilience.RetryConfig
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithRetry sets the retry policy for document writes.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(m *Migrator) { m.retry = cfg }
}

// New creates a Migrator.
func New(st store.Store, opts ...Option) *Migrator {
	m := &Migrator{store: st, retry: resilience.DefaultRetryConfig()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Migrate converts the legacy fields of one document and persists it.
// It reports false, without writing, when every field is already
// structured, so running it twice changes nothing the second time.
func (m *Migrator) Migrate(ctx context.Context, documentID string) (bool, error) {
	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return false, eris.Wrapf(err, "migrate: load document %s", documentID)
	}
	return m.migrate(ctx, doc, false)
}

func (m *Migrator) migrate(ctx context.Context, doc *model.Document, dryRun bool) (bool, error) {
	converted, changed := Convert(doc.ExtractedData)
	if !changed || dryRun {
		return changed, nil
	}

	err := resilience.Do(ctx, m.retry, func(ctx context.Context) error {
		return m.store.UpdateDocumentData(ctx, doc.ID, converted)
	})
	if err != nil {
		return false, eris.Wrapf(err, "migrate: persist document %s", doc.ID)
	}
	return true, nil
}

// Convert returns data with every legacy field replaced by its structured
// form and reports whether any field was converted. Structured fields are
// carried over untouched.
func Convert(data model.DocumentData) (model.DocumentData, bool) {
	legacy := data.LegacyFields()
	if len(legacy) == 0 {
		return data, false
	}
	out := make(model.DocumentData, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, k := range legacy {
		out[k] = model.Structured(data[k].Normalize())
	}
	return out, true
}

// Run migrates documents in store order. A failing document is logged,
// counted and skipped; only a failure to list documents aborts the run.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Result, error) {
	docs, err := m.store.ListDocuments(ctx, store.DocumentFilter{Limit: opts.Limit})
	if err != nil {
		return nil, eris.Wrap(err, "migrate: list documents")
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	log := zap.L().With(zap.Bool("dry_run", opts.DryRun), zap.Int("documents", len(docs)))
	log.Info("migrate: starting")

	var (
		migrated, skipped, errored atomic.Int64
		mu                         sync.Mutex
		docErrs                    []DocumentError
		done                       int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range docs {
		doc := &docs[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			changed, err := m.migrate(gctx, doc, opts.DryRun)
			switch {
			case err != nil:
				errored.Add(1)
				log.Error("migrate: document failed",
					zap.String("document_id", doc.ID),
					zap.String("filename", doc.Filename),
					zap.Error(err),
				)
				mu.Lock()
				docErrs = append(docErrs, DocumentError{DocumentID: doc.ID, Filename: doc.Filename, Message: err.Error()})
				mu.Unlock()
			case changed:
				migrated.Add(1)
				log.Debug("migrate: document converted",
					zap.String("document_id", doc.ID),
					zap.Strings("fields", doc.ExtractedData.LegacyFields()),
				)
			default:
				skipped.Add(1)
			}
			if opts.Progress != nil {
				mu.Lock()
				done++
				opts.Progress(done, len(docs))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "migrate: run")
	}

	res := &Result{
		Migrated: migrated.Load(),
		Skipped:  skipped.Load(),
		Errored:  errored.Load(),
		DryRun:   opts.DryRun,
		Errors:   sortErrors(docErrs),
	}
	log.Info("migrate: complete",
		zap.Int64("migrated", res.Migrated),
		zap.Int64("skipped", res.Skipped),
		zap.Int64("errored", res.Errored),
	)
	return res, nil
}

func sortErrors(errs []DocumentError) []DocumentError {
	sort.Slice(errs, func(i, j int) bool { return errs[i].DocumentID < errs[j].DocumentID })
	return errs
}
