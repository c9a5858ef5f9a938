package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docfill/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var profileCols = []string{"id", "client_id", "data", "field_sources", "version", "created_at", "updated_at"}

func TestPostgresStore_GetProfile_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, client_id, data, field_sources, version, created_at, updated_at FROM client_profiles WHERE client_id = \$1`).
		WithArgs("client-x").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProfile(context.Background(), "client-x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfile_DecodesJSON(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM client_profiles WHERE client_id`).
		WithArgs("client-1").
		WillReturnRows(mock.NewRows(profileCols).AddRow(
			"p1", "client-1",
			[]byte(`{"email":"a@b.co"}`),
			[]byte(`{"email":{"documentId":"d1","extractedAt":"2026-01-02T00:00:00Z","manuallyEdited":true}}`),
			int64(4), now, now,
		))

	p, err := s.GetProfile(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, int64(4), p.Version)
	assert.Equal(t, "a@b.co", p.Data["email"])
	assert.True(t, p.IsProtected("email"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfile_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM client_profiles`).
		WithArgs("client-1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetProfile(context.Background(), "client-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get profile")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProfile_OnConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`ON CONFLICT \(client_id\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "client-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`FROM client_profiles WHERE client_id`).
		WithArgs("client-1").
		WillReturnRows(mock.NewRows(profileCols).AddRow("existing", "client-1", []byte(`{}`), []byte(`{}`), int64(7), now, now))

	p, err := s.CreateProfile(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "existing", p.ID)
	assert.Equal(t, int64(7), p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProfile_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE client_profiles SET data = \$1, field_sources = \$2, version = version \+ 1`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "p1", int64(3)).
		WillReturnRows(mock.NewRows(profileCols).AddRow("p1", "client-1", []byte(`{"a":"1"}`), []byte(`{"a":{"documentId":"d","extractedAt":"2026-01-02T00:00:00Z","manuallyEdited":false}}`), int64(4), now, now))

	p, err := s.UpdateProfile(context.Background(), "p1", 3,
		map[string]any{"a": "1"},
		map[string]model.FieldSource{"a": {DocumentID: "d"}},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.Version)
	assert.Equal(t, "1", p.Data["a"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProfile_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`UPDATE client_profiles`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "p1", int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.UpdateProfile(context.Background(), "p1", 3, nil, nil)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDocumentData_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE documents SET extracted_data = \$1`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateDocumentData(context.Background(), "missing", model.DocumentData{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDocuments(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM documents WHERE true AND client_id = \$1 ORDER BY created_at, id LIMIT \$2`).
		WithArgs("client-1", 10).
		WillReturnRows(mock.NewRows([]string{"id", "client_id", "filename", "extracted_data", "created_at", "updated_at"}).
			AddRow("d1", "client-1", "a.pdf", []byte(`{"name":"Ana"}`), now, now).
			AddRow("d2", "client-1", "b.pdf", []byte(`{"email":{"value":"a@b.co","confidence":90,"source":"llm"}}`), now, now))

	docs, err := s.ListDocuments(context.Background(), DocumentFilter{ClientID: "client-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.True(t, docs[0].ExtractedData["name"].IsLegacy())
	assert.False(t, docs[1].ExtractedData["email"].IsLegacy())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDocument_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM documents WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportDocuments(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE _import_documents`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_import_documents"}, documentColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO documents .* ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.ImportDocuments(context.Background(), []model.Document{
		{ID: "d1", ClientID: "c1", Filename: "a.pdf"},
		{ID: "d2", ClientID: "c1", Filename: "b.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgresStore_ImportDocuments_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE _import_documents`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_import_documents"}, documentColumns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err := s.ImportDocuments(context.Background(), []model.Document{{ID: "d1", ClientID: "c1", Filename: "a.pdf"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO _import_documents")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS client_profiles`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
