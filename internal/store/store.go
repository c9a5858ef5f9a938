package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sells-group/docfill/internal/model"
)

var (
	// ErrNotFound is returned when a profile or document does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrVersionConflict is returned by UpdateProfile when the stored
	// version no longer matches the expected one.
	ErrVersionConflict = errors.New("store: version conflict")
)

// DocumentFilter specifies criteria for listing documents. Results are
// ordered by created_at, then id.
type DocumentFilter struct {
	ClientID string `json:"client_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for profiles and documents.
type Store interface {
	// Profiles
	GetProfile(ctx context.Context, clientID string) (*model.ClientProfile, error)
	CreateProfile(ctx context.Context, clientID string) (*model.ClientProfile, error)
	UpdateProfile(ctx context.Context, id string, expectedVersion int64, data map[string]any, sources map[string]model.FieldSource) (*model.ClientProfile, error)

	// Documents
	CreateDocument(ctx context.Context, clientID, filename string) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateDocumentData(ctx context.Context, id string, data model.DocumentData) error
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)
	ImportDocuments(ctx context.Context, docs []model.Document) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func marshalDocumentData(data model.DocumentData) ([]byte, error) {
	if data == nil {
		data = model.DocumentData{}
	}
	return json.Marshal(data)
}
