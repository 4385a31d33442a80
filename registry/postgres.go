package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pithecene-io/dbviz/types"
)

// PostgresStore keeps artifacts in PostgreSQL through the pgx driver.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

// NewPostgresStore connects to dsn. The schema is created lazily on first
// use.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS derived_artifacts (
  source_item_path TEXT PRIMARY KEY,
  artifact_id TEXT NOT NULL,
  source TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  is_permanent BOOLEAN NOT NULL DEFAULT FALSE,
  permissions TEXT NOT NULL DEFAULT '{}',
  properties TEXT NOT NULL DEFAULT '{}',
  open_location TEXT NOT NULL DEFAULT '',
  delete_location TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_derived_artifacts_artifact_id ON derived_artifacts (artifact_id);
`)
	})
	return s.schemaErr
}

const selectColumns = `source_item_path, artifact_id, source, type, title, description,
  is_permanent, permissions, properties, open_location, delete_location, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (artifactRecord, error) {
	var r artifactRecord
	err := row.Scan(
		&r.SourceItemPath,
		&r.ArtifactID,
		&r.Source,
		&r.Type,
		&r.Title,
		&r.Description,
		&r.IsPermanent,
		&r.Permissions,
		&r.Properties,
		&r.OpenLocation,
		&r.DeleteLocation,
		&r.CreatedAt,
	)
	return r, err
}

func (s *PostgresStore) Create(ctx context.Context, a *types.DerivedArtifact, overwrite bool) error {
	if err := Validate(a); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	r, err := toRecord(a)
	if err != nil {
		return err
	}

	conflict := `ON CONFLICT (source_item_path) DO NOTHING`
	if overwrite {
		conflict = `ON CONFLICT (source_item_path)
DO UPDATE SET artifact_id=EXCLUDED.artifact_id,
  source=EXCLUDED.source,
  type=EXCLUDED.type,
  title=EXCLUDED.title,
  description=EXCLUDED.description,
  is_permanent=EXCLUDED.is_permanent,
  permissions=EXCLUDED.permissions,
  properties=EXCLUDED.properties,
  open_location=EXCLUDED.open_location,
  delete_location=EXCLUDED.delete_location,
  created_at=EXCLUDED.created_at`
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO derived_artifacts (`+selectColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`+conflict,
		r.SourceItemPath, r.ArtifactID, r.Source, r.Type, r.Title, r.Description,
		r.IsPermanent, r.Permissions, r.Properties, r.OpenLocation, r.DeleteLocation, r.CreatedAt)
	if err != nil {
		return err
	}
	if !overwrite {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrExists, a.SourceItemPath)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sourceItemPath string) (*types.DerivedArtifact, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`
FROM derived_artifacts WHERE source_item_path = $1`, sourceItemPath)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceItemPath)
	}
	if err != nil {
		return nil, err
	}
	a, err := r.toArtifact()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]types.DerivedArtifact, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+`
FROM derived_artifacts ORDER BY source_item_path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]types.DerivedArtifact, 0, 32)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		a, err := r.toArtifact()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, sourceItemPath string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM derived_artifacts WHERE source_item_path = $1`, sourceItemPath)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sourceItemPath)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
