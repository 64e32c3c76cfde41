package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/remote"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultPublicBaseURL = "http://localhost:8787"

// Store keeps rows as JSONB documents keyed by table and id, and blobs as
// BYTEA keyed by bucket and path.
type Store struct {
	db            *sql.DB
	publicBaseURL string
}

// Open connects to dsn and brings the schema up to date.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, publicBaseURL: defaultPublicBaseURL}
}

// Migrate applies the embedded migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	debuglog.Infof("database migrations applied")
	return nil
}

func (s *Store) SetPublicBaseURL(base string) {
	if base != "" {
		s.publicBaseURL = base
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Select(ctx context.Context, table string, order remote.Order) ([]remote.Row, error) {
	query := `SELECT data FROM foro_rows WHERE tbl = $1`
	args := []any{table}
	if order.Column != "" {
		// jsonb orders numbers numerically and strings lexically
		dir := "ASC NULLS FIRST"
		if order.Direction == remote.Descending {
			dir = "DESC NULLS LAST"
		}
		query += ` ORDER BY data -> $2::text ` + dir + `, inserted_at`
		args = append(args, order.Column)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting from %s: %w", table, describe(err))
	}
	defer rows.Close()

	out := []remote.Row{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row, err := decodeRow(data)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// Insert stores row under a new UUID. Any id in row is ignored.
func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	id := uuid.NewString()
	stored := make(remote.Row, len(row)+1)
	for k, v := range row {
		stored[k] = v
	}
	stored["id"] = id

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encoding row: %w", err)
	}

	var out []byte
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO foro_rows (tbl, id, data) VALUES ($1, $2, $3::jsonb) RETURNING data`,
		table, id, string(data)).Scan(&out)
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, describe(err))
	}
	return decodeRow(out)
}

// Update merges patch into the stored row. The id key cannot be patched.
func (s *Store) Update(ctx context.Context, table, id string, patch remote.Row) (remote.Row, error) {
	clean := make(remote.Row, len(patch))
	for k, v := range patch {
		if k != "id" {
			clean[k] = v
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encoding patch: %w", err)
	}

	var out []byte
	err = s.db.QueryRowContext(ctx,
		`UPDATE foro_rows SET data = data || $3::jsonb WHERE tbl = $1 AND id = $2 RETURNING data`,
		table, id, string(data)).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("updating %s/%s: %w", table, id, remote.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", table, id, describe(err))
	}
	return decodeRow(out)
}

// UploadBlob stores data under bucket/path, replacing any existing object.
func (s *Store) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data cannot be empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO foro_blobs (bucket, path, content_type, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bucket, path) DO UPDATE
		SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, updated_at = now()`,
		bucket, path, contentType, data)
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, path, describe(err))
	}
	return remote.PublicURL(s.publicBaseURL, bucket, path), nil
}

func (s *Store) ReadBlob(ctx context.Context, bucket, path string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, content_type FROM foro_blobs WHERE bucket = $1 AND path = $2`,
		bucket, path).Scan(&data, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("reading %s/%s: %w", bucket, path, remote.ErrBlobNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading %s/%s: %w", bucket, path, describe(err))
	}
	return data, contentType, nil
}

func decodeRow(data []byte) (remote.Row, error) {
	var row remote.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	return row, nil
}

// describe adds a hint for the schema errors a missing migration produces.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return fmt.Errorf("%w (schema missing, run migrations)", err)
	}
	return err
}
