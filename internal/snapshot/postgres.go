package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// layoutsRow is the single row id of the layouts table.
const layoutsRow = 1

type PostgresBackend struct {
	db *sql.DB
}

// OpenPostgres connects, pings, and migrates the database at databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresBackend(db), nil
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) DB() *sql.DB {
	return b.db
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

func (b *PostgresBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT eid FROM env_snapshots ORDER BY eid`)
	if err != nil {
		return nil, fmt.Errorf("list env snapshots: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var eid string
		if err := rows.Scan(&eid); err != nil {
			return nil, fmt.Errorf("scan env id: %w", err)
		}
		ids = append(ids, eid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate env ids: %w", err)
	}
	return ids, nil
}

func (b *PostgresBackend) Load(ctx context.Context, eid string) ([]byte, error) {
	var body string
	err := b.db.QueryRowContext(ctx, `SELECT body FROM env_snapshots WHERE eid=$1`, eid).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load env %s: %w", eid, err)
	}
	return []byte(body), nil
}

func (b *PostgresBackend) Save(ctx context.Context, eid string, body []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO env_snapshots (eid, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (eid) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, eid, string(body))
	if err != nil {
		return fmt.Errorf("save env %s: %w", eid, err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, eid string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM env_snapshots WHERE eid=$1`, eid); err != nil {
		return fmt.Errorf("delete env %s: %w", eid, err)
	}
	return nil
}

func (b *PostgresBackend) LoadLayouts(ctx context.Context) (string, error) {
	var body string
	err := b.db.QueryRowContext(ctx, `SELECT body FROM layouts WHERE id=$1`, layoutsRow).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load layouts: %w", err)
	}
	return body, nil
}

func (b *PostgresBackend) SaveLayouts(ctx context.Context, layouts string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO layouts (id, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, layoutsRow, layouts)
	if err != nil {
		return fmt.Errorf("save layouts: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
