package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLite keeps documents in an embedded database. The *sql.DB must be limited
// to a single connection (persistence.OpenSQLite does this) so transactions
// are serialized by the pool.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Kind() string { return "sqlite" }

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Load(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name=?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return normalize([]byte(body)), nil
}

func (s *SQLite) Update(ctx context.Context, name string, fn Mutator) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE name=?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		body, err = "", nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	next, write, err := fn(normalize([]byte(body)))
	if err != nil {
		return err
	}
	if !write {
		return tx.Commit()
	}

	const query = `
        INSERT INTO documents (name, body, version, updated_at)
        VALUES (?, ?, 1, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
        ON CONFLICT(name) DO UPDATE SET
            body=excluded.body,
            version=documents.version+1,
            updated_at=excluded.updated_at`
	if _, err = tx.ExecContext(ctx, query, name, string(next)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}
