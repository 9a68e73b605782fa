package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// PostgresStorage keeps documents in a table with one row per document name.
type PostgresStorage struct {
	db    *sql.DB
	table string
	name  string
}

// NewPostgresStorage returns a PostgresStorage that stores the document named
// name in table.
func NewPostgresStorage(db *sql.DB, table, name string) *PostgresStorage {
	return &PostgresStorage{
		db:    db,
		table: pq.QuoteIdentifier(table),
		name:  name,
	}
}

// OpenPostgresStorage opens a connection pool for dsn and makes sure the
// table exists.
func OpenPostgresStorage(ctx context.Context, dsn, table, name string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	s := NewPostgresStorage(db, table, name)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the checkpoint table if it does not exist.
func (p *PostgresStorage) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	)`, p.table)

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "create checkpoint table")
	}
	return nil
}

// Location returns the table and document name.
func (p *PostgresStorage) Location() string {
	return fmt.Sprintf("postgres table %s, document %q", p.table, p.name)
}

// Read returns the stored document, or nil if there is no row for it.
func (p *PostgresStorage) Read(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE name = $1`, p.table)

	var doc string
	err := p.db.QueryRowContext(ctx, query, p.name).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select checkpoint document")
	}
	return []byte(doc), nil
}

// Write upserts the document row.
func (p *PostgresStorage) Write(ctx context.Context, doc []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, document, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`, p.table)

	if _, err := p.db.ExecContext(ctx, query, p.name, string(doc)); err != nil {
		return errors.Wrap(err, "upsert checkpoint document")
	}
	return nil
}

// Close closes the underlying connection pool.
func (p *PostgresStorage) Close() error {
	return p.db.Close()
}
