// Package profile folds per-document extraction results into a client's
// durable profile.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/resilience"
	"github.com/sells-group/docfill/internal/store"
)

// ErrInvalidArgument is returned for calls missing a client, document or
// field name.
var ErrInvalidArgument = errors.New("profile: invalid argument")

// DefaultMaxAttempts bounds how often a merge is re-applied after losing a
// version race.
const DefaultMaxAttempts = 5

// Merger applies extraction results and manual edits to client profiles.
// Writes for one client are serialized in-process by a keyed lock and across
// processes by the store's version check.
type Merger struct {
	store       store.Store
	locks       *keyedMutex
	maxAttempts int
	now         func() time.Time
}

// Option configures a Merger.
type Option func(*Merger)

// WithMaxAttempts sets the version-conflict attempt limit.
func WithMaxAttempts(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithClock overrides the timestamp source used for extractedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMerger creates a Merger backed by st.
func NewMerger(st store.Store, opts ...Option) *Merger {
	m := &Merger{
		store:       st,
		locks:       newKeyedMutex(),
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Merge folds bare field values from one document into the client's profile.
// It reports whether at least one field changed. Persistence failures are
// logged and reported as false with a nil error.
func (m *Merger) Merge(ctx context.Context, clientID, documentID string, fields map[string]any) (bool, error) {
	return m.merge(ctx, clientID, documentID, updatesFromFields(fields))
}

// MergeDocument folds a document's extraction record into the client's
// profile, keeping each winning result's confidence and source as provenance.
func (m *Merger) MergeDocument(ctx context.Context, clientID, documentID string, data model.DocumentData) (bool, error) {
	return m.merge(ctx, clientID, documentID, updatesFromDocument(data))
}

func (m *Merger) merge(ctx context.Context, clientID, documentID string, updates []update) (bool, error) {
	if clientID == "" {
		return false, eris.Wrap(ErrInvalidArgument, "merge: client id is required")
	}
	if documentID == "" {
		return false, eris.Wrap(ErrInvalidArgument, "merge: document id is required")
	}

	log := zap.L().With(zap.String("client_id", clientID), zap.String("document_id", documentID))

	unlock := m.locks.Lock(clientID)
	defer unlock()

	var sum Summary
	cfg := resilience.Attempts(m.maxAttempts, isVersionConflict)
	cfg.OnRetry = resilience.RetryLogger("merge", "update_profile")

	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		current, err := m.getOrCreate(ctx, clientID)
		if err != nil {
			return err
		}

		next := current.Clone()
		sum = apply(next, documentID, updates, m.now())
		if !sum.Changed() {
			return nil
		}

		_, err = m.store.UpdateProfile(ctx, current.ID, current.Version, next.Data, next.FieldSources)
		return err
	})
	if err != nil {
		log.Error("merge: persist profile failed", zap.Error(err))
		return false, nil
	}

	log.Info("merge: complete",
		zap.Int("updated", len(sum.Updated)),
		zap.Int("skipped_protected", len(sum.SkippedProtected)),
		zap.Int("skipped_empty", len(sum.SkippedEmpty)),
	)
	if len(sum.SkippedProtected) > 0 {
		log.Debug("merge: manual edits preserved", zap.Strings("fields", sum.SkippedProtected))
	}
	return sum.Changed(), nil
}

// ApplyManualEdit records a human correction. The field becomes protected
// from automated merges permanently; the previous document id is kept as
// provenance of the value that was corrected.
func (m *Merger) ApplyManualEdit(ctx context.Context, clientID, field string, value any) (*model.ClientProfile, error) {
	if clientID == "" || field == "" {
		return nil, eris.Wrap(ErrInvalidArgument, "manual edit: client id and field are required")
	}

	unlock := m.locks.Lock(clientID)
	defer unlock()

	cfg := resilience.Attempts(m.maxAttempts, isVersionConflict)
	updated, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.ClientProfile, error) {
		current, err := m.getOrCreate(ctx, clientID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		next.Data[field] = value
		next.FieldSources[field] = model.FieldSource{
			DocumentID:     current.FieldSources[field].DocumentID,
			ExtractedAt:    m.now(),
			ManuallyEdited: true,
		}
		return m.store.UpdateProfile(ctx, current.ID, current.Version, next.Data, next.FieldSources)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "manual edit: update %s for client %s", field, clientID)
	}

	zap.L().Info("merge: manual edit applied",
		zap.String("client_id", clientID),
		zap.String("field", field),
	)
	return updated, nil
}

// Get returns the client's profile, or store.ErrNotFound.
func (m *Merger) Get(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	return m.store.GetProfile(ctx, clientID)
}

func (m *Merger) getOrCreate(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	p, err := m.store.GetProfile(ctx, clientID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "load profile")
	}
	p, err = m.store.CreateProfile(ctx, clientID)
	if err != nil {
		return nil, eris.Wrap(err, "create profile")
	}
	return p, nil
}

func isVersionConflict(err error) bool {
	return errors.Is(err, store.ErrVersionConflict)
}
