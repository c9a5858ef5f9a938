package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docfill/internal/db"
	"github.com/sells-group/docfill/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_profile":          `SELECT id, client_id, data, field_sources, version, created_at, updated_at FROM client_profiles WHERE client_id = $1`,
	"update_profile":       `UPDATE client_profiles SET data = $1, field_sources = $2, version = version + 1, updated_at = $3 WHERE id = $4 AND version = $5 RETURNING id, client_id, data, field_sources, version, created_at, updated_at`,
	"get_document":         `SELECT id, client_id, filename, extracted_data, created_at, updated_at FROM documents WHERE id = $1`,
	"update_document_data": `UPDATE documents SET extracted_data = $1, updated_at = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS client_profiles (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id     TEXT NOT NULL UNIQUE,
	data          JSONB NOT NULL DEFAULT '{}'::jsonb,
	field_sources JSONB NOT NULL DEFAULT '{}'::jsonb,
	version       BIGINT NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id      TEXT NOT NULL,
	filename       TEXT NOT NULL,
	extracted_data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_client_id ON documents(client_id);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at, id);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, client_id, data, field_sources, version, created_at, updated_at FROM client_profiles WHERE client_id = $1`,
		clientID,
	)
	p, err := scanPgProfile(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", clientID)
	}
	return p, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, clientID string) (*model.ClientProfile, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO client_profiles (id, client_id, data, field_sources, version, created_at, updated_at)
		 VALUES ($1, $2, '{}'::jsonb, '{}'::jsonb, 1, $3, $4)
		 ON CONFLICT (client_id) DO NOTHING`,
		uuid.New().String(), clientID, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert profile for client %s", clientID)
	}
	return s.GetProfile(ctx, clientID)
}

// UpdateProfile writes data and field_sources in one statement guarded by
// the expected version. A missing row and a moved version both surface as
// ErrVersionConflict; the caller's reload distinguishes them.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, expectedVersion int64, data map[string]any, sources map[string]model.FieldSource) (*model.ClientProfile, error) {
	dataJSON, sourcesJSON, err := marshalProfileMaps(data, sources)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal profile")
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE client_profiles SET data = $1, field_sources = $2, version = version + 1, updated_at = $3
		 WHERE id = $4 AND version = $5
		 RETURNING id, client_id, data, field_sources, version, created_at, updated_at`,
		dataJSON, sourcesJSON, time.Now().UTC(), id, expectedVersion,
	)
	p, err := scanPgProfile(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update profile %s", id)
	}
	return p, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, clientID, filename string) (*model.Document, error) {
	doc := &model.Document{
		ID:            uuid.New().String(),
		ClientID:      clientID,
		Filename:      filename,
		ExtractedData: model.DocumentData{},
		CreatedAt:     time.Now().UTC(),
	}
	doc.UpdatedAt = doc.CreatedAt

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, client_id, filename, extracted_data, created_at, updated_at) VALUES ($1, $2, $3, '{}'::jsonb, $4, $5)`,
		doc.ID, doc.ClientID, doc.Filename, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert document %s", filename)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, client_id, filename, extracted_data, created_at, updated_at FROM documents WHERE id = $1`,
		id,
	)
	d, err := scanPgDocument(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return d, nil
}

func (s *PostgresStore) UpdateDocumentData(ctx context.Context, id string, data model.DocumentData) error {
	dataJSON, err := marshalDocumentData(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal document data")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET extracted_data = $1, updated_at = $2 WHERE id = $3`,
		dataJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT id, client_id, filename, extracted_data, created_at, updated_at FROM documents WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ClientID != "" {
		query += fmt.Sprintf(` AND client_id = $%d`, argIdx)
		args = append(args, filter.ClientID)
		argIdx++
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanPgDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

// ImportDocuments bulk-loads extraction records: COPY into a temp table,
// then INSERT ... ON CONFLICT (id) DO NOTHING into documents.
func (s *PostgresStore) ImportDocuments(ctx context.Context, docs []model.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		row, err := importRow(d)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: import: marshal %s", d.Filename)
		}
		rows = append(rows, row)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`CREATE TEMP TABLE _import_documents (LIKE documents INCLUDING DEFAULTS) ON COMMIT DROP`,
	); err != nil {
		return 0, eris.Wrap(err, "postgres: import: create temp table")
	}

	if _, err := db.CopyFrom(ctx, tx, "_import_documents", documentColumns, rows); err != nil {
		return 0, eris.Wrap(err, "postgres: import")
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO documents (id, client_id, filename, extracted_data, created_at, updated_at)
		 SELECT id, client_id, filename, extracted_data, created_at, updated_at FROM _import_documents
		 ON CONFLICT (id) DO NOTHING`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import: insert")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: import: commit")
	}
	return tag.RowsAffected(), nil
}

func scanPgProfile(row pgx.Row) (*model.ClientProfile, error) {
	var p model.ClientProfile
	var dataJSON, sourcesJSON []byte

	err := row.Scan(&p.ID, &p.ClientID, &dataJSON, &sourcesJSON, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalProfileMaps(dataJSON, sourcesJSON, &p); err != nil {
		return nil, eris.Wrap(err, "unmarshal profile")
	}
	return &p, nil
}

func scanPgDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	var dataJSON []byte

	err := row.Scan(&d.ID, &d.ClientID, &d.Filename, &dataJSON, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.ExtractedData, err = model.ParseDocumentData(dataJSON)
	if err != nil {
		return nil, eris.Wrapf(err, "unmarshal document %s", d.ID)
	}
	return &d, nil
}
