package library

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the song catalog in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS songs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			layers JSONB NOT NULL DEFAULT '[]'::jsonb,
			delivered_files TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_songs_created ON songs (created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Song, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, layers, delivered_files, created_at
		 FROM songs ORDER BY created_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query songs: %w", err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var (
			song      Song
			layersRaw []byte
		)
		if err := rows.Scan(&song.ID, &song.Title, &layersRaw, &song.DeliveredFiles, &song.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan song row: %w", err)
		}
		if len(layersRaw) > 0 {
			if err := json.Unmarshal(layersRaw, &song.Layers); err != nil {
				return nil, fmt.Errorf("decode layers for song %s: %w", song.ID, err)
			}
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate song rows: %w", err)
	}
	return songs, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, song Song) (Song, error) {
	song, err := normalizeSong(song)
	if err != nil {
		return Song{}, err
	}
	layers, err := json.Marshal(song.Layers)
	if err != nil {
		return Song{}, fmt.Errorf("encode layers: %w", err)
	}
	files := song.DeliveredFiles
	if files == nil {
		files = []string{}
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO songs (id, title, layers, delivered_files, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, layers = EXCLUDED.layers, delivered_files = EXCLUDED.delivered_files
		 RETURNING created_at`,
		song.ID,
		song.Title,
		layers,
		files,
		song.CreatedAt,
	).Scan(&song.CreatedAt)
	if err != nil {
		return Song{}, fmt.Errorf("upsert song: %w", err)
	}
	return song, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM songs`); err != nil {
		return fmt.Errorf("clear songs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
