package profile

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/store"
)

type mockStore struct {
	mock.Mock
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) GetProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClientProfile), args.Error(1)
}

func (m *mockStore) CreateProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClientProfile), args.Error(1)
}

func (m *mockStore) UpdateProfile(ctx context.Context, id string, expectedVersion int64, data map[string]any, sources map[string]model.FieldSource) (*model.ClientProfile, error) {
	args := m.Called(ctx, id, expectedVersion, data, sources)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClientProfile), args.Error(1)
}

func (m *mockStore) CreateDocument(ctx context.Context, clientID, filename string) (*model.Document, error) {
	args := m.Called(ctx, clientID, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *mockStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *mockStore) UpdateDocumentData(ctx context.Context, id string, data model.DocumentData) error {
	return m.Called(ctx, id, data).Error(0)
}

func (m *mockStore) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]model.Document, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *mockStore) ImportDocuments(ctx context.Context, docs []model.Document) (int64, error) {
	args := m.Called(ctx, docs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
