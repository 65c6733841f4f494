package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the room_files table used by Postgres.
const Schema = `CREATE TABLE IF NOT EXISTS room_files (
	room_id      BIGINT      NOT NULL,
	path         TEXT        NOT NULL,
	content      BYTEA,
	is_directory BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_id, path)
)`

// Postgres stores room files in the room_files table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and ensures the schema exists.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create room_files: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Read(ctx context.Context, room int64, path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	var content []byte
	err := p.pool.QueryRow(ctx,
		`SELECT content FROM room_files WHERE room_id = $1 AND path = $2 AND NOT is_directory`,
		room, path).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %d/%s", ErrNotFound, room, path)
	}
	if err != nil {
		return "", err
	}
	return decodeText(content)
}

func (p *Postgres) Write(ctx context.Context, room int64, path, text string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO room_files (room_id, path, content, is_directory)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (room_id, path) DO UPDATE
			SET content = EXCLUDED.content, updated_at = now()
			WHERE NOT room_files.is_directory`,
		room, path, []byte(text))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d/%s is a directory", ErrNotFound, room, path)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, room int64) ([]File, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT path, is_directory FROM room_files WHERE room_id = $1 ORDER BY path`, room)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (File, error) {
		var f File
		err := r.Scan(&f.Path, &f.IsDir)
		return f, err
	})
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
