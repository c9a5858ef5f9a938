package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docfill/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: pragmas are per-connection and SQLite has a single writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS client_profiles (
	id            TEXT PRIMARY KEY,
	client_id     TEXT NOT NULL UNIQUE,
	data          TEXT NOT NULL DEFAULT '{}',
	field_sources TEXT NOT NULL DEFAULT '{}',
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	client_id      TEXT NOT NULL,
	filename       TEXT NOT NULL,
	extracted_data TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_client_id ON documents(client_id);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at, id);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteProfileColumns = `id, client_id, data, field_sources, version, created_at, updated_at`

func (s *SQLiteStore) GetProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProfileColumns+` FROM client_profiles WHERE client_id = ?`,
		clientID,
	)
	return scanProfile(row)
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_profiles (id, client_id, data, field_sources, version, created_at, updated_at)
		 VALUES (?, ?, '{}', '{}', 1, ?, ?)
		 ON CONFLICT (client_id) DO NOTHING`,
		uuid.New().String(), clientID, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert profile for client %s", clientID)
	}
	return s.GetProfile(ctx, clientID)
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, expectedVersion int64, data map[string]any, sources map[string]model.FieldSource) (*model.ClientProfile, error) {
	dataJSON, sourcesJSON, err := marshalProfileMaps(data, sources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal profile")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE client_profiles
		 SET data = ?, field_sources = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(dataJSON), string(sourcesJSON), time.Now().UTC(), id, expectedVersion,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update profile %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM client_profiles WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: check profile %s", id)
		}
		return nil, ErrVersionConflict
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProfileColumns+` FROM client_profiles WHERE id = ?`, id,
	)
	return scanProfile(row)
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, clientID, filename string) (*model.Document, error) {
	doc := &model.Document{
		ID:            uuid.New().String(),
		ClientID:      clientID,
		Filename:      filename,
		ExtractedData: model.DocumentData{},
		CreatedAt:     time.Now().UTC(),
	}
	doc.UpdatedAt = doc.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, client_id, filename, extracted_data, created_at, updated_at) VALUES (?, ?, ?, '{}', ?, ?)`,
		doc.ID, doc.ClientID, doc.Filename, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert document %s", filename)
	}
	return doc, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, filename, extracted_data, created_at, updated_at FROM documents WHERE id = ?`,
		id,
	)
	return scanDocument(row)
}

func (s *SQLiteStore) UpdateDocumentData(ctx context.Context, id string, data model.DocumentData) error {
	dataJSON, err := marshalDocumentData(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal document data")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET extracted_data = ?, updated_at = ? WHERE id = ?`,
		string(dataJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT id, client_id, filename, extracted_data, created_at, updated_at FROM documents WHERE 1=1`
	var args []any

	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

// ImportDocuments inserts pre-existing extraction records as-is, legacy
// fields included. Documents whose id already exists are skipped.
func (s *SQLiteStore) ImportDocuments(ctx context.Context, docs []model.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, client_id, filename, extracted_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: prepare")
	}
	defer stmt.Close()

	var inserted int64
	for _, d := range docs {
		row, err := importRow(d)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import: marshal %s", d.Filename)
		}
		row[3] = string(row[3].([]byte))
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import: insert %s", d.Filename)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import: commit")
	}
	return inserted, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanProfile(row scannable) (*model.ClientProfile, error) {
	var p model.ClientProfile
	var dataJSON, sourcesJSON string

	err := row.Scan(&p.ID, &p.ClientID, &dataJSON, &sourcesJSON, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan profile")
	}
	if err := unmarshalProfileMaps([]byte(dataJSON), []byte(sourcesJSON), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &p, nil
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var dataJSON string

	err := row.Scan(&d.ID, &d.ClientID, &d.Filename, &dataJSON, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan document")
	}
	d.ExtractedData, err = model.ParseDocumentData([]byte(dataJSON))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal document %s", d.ID)
	}
	return &d, nil
}

func marshalProfileMaps(data map[string]any, sources map[string]model.FieldSource) ([]byte, []byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	if sources == nil {
		sources = map[string]model.FieldSource{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, nil, err
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, nil, err
	}
	return dataJSON, sourcesJSON, nil
}

func unmarshalProfileMaps(dataJSON, sourcesJSON []byte, p *model.ClientProfile) error {
	p.Data = map[string]any{}
	p.FieldSources = map[string]model.FieldSource{}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &p.Data); err != nil {
			return eris.Wrap(err, "data")
		}
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &p.FieldSources); err != nil {
			return eris.Wrap(err, "field_sources")
		}
	}
	return nil
}

// importRow renders a document as a row in documents column order, filling
// in a fresh id and timestamps where missing.
func importRow(d model.Document) ([]any, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	dataJSON, err := marshalDocumentData(d.ExtractedData)
	if err != nil {
		return nil, err
	}
	return []any{d.ID, d.ClientID, d.Filename, dataJSON, d.CreatedAt, d.UpdatedAt}, nil
}

var documentColumns = []string{"id", "client_id", "filename", "extracted_data", "created_at", "updated_at"}
