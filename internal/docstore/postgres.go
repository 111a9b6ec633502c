package docstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps documents in the documents table and serializes writers
// with a row lock held for the whole read-modify-write transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Kind() string { return "postgres" }

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Load(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT body FROM documents WHERE name=$1`, name).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return normalize(body), nil
}

func (p *Postgres) Update(ctx context.Context, name string, fn Mutator) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO documents (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}

		var body []byte
		if err := tx.QueryRow(ctx, `SELECT body FROM documents WHERE name=$1 FOR UPDATE`, name).Scan(&body); err != nil {
			return fmt.Errorf("lock %s: %w", name, err)
		}

		next, write, err := fn(normalize(body))
		if err != nil || !write {
			return err
		}

		const query = `
        UPDATE documents
        SET body=$2, version=version+1, updated_at=NOW()
        WHERE name=$1`
		if _, err := tx.Exec(ctx, query, name, next); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		return nil
	})
}
