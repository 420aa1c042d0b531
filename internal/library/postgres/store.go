// Package postgres provides a PostgreSQL-backed [library.Store].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	songs, _ := store.SearchLyrics(ctx, "grace-chapel", "how sweet the sound")
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/versecue/internal/library"
)

var _ library.Store = (*Store)(nil)

const selectColumns = `id, organization, title, artist, lyrics, source, external_id`

// Store is a PostgreSQL song library. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a connection pool to dsn, pings it and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres library: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres library: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Upsert inserts song or replaces the row with the same id. A song without an
// id gets a random one.
func (s *Store) Upsert(ctx context.Context, song library.Song) (library.Song, error) {
	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	if song.Source == "" {
		song.Source = library.SourceLocal
	}
	const q = `
INSERT INTO songs (id, organization, title, artist, lyrics, source, external_id, search_title, search_lyrics)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    organization  = EXCLUDED.organization,
    title         = EXCLUDED.title,
    artist        = EXCLUDED.artist,
    lyrics        = EXCLUDED.lyrics,
    source        = EXCLUDED.source,
    external_id   = EXCLUDED.external_id,
    search_title  = EXCLUDED.search_title,
    search_lyrics = EXCLUDED.search_lyrics,
    updated_at    = now()`
	_, err := s.pool.Exec(ctx, q,
		song.ID, song.Organization, song.Title, song.Artist, song.Lyrics, song.Source, song.ExternalID,
		library.Fold(song.Title), library.Fold(song.Lyrics),
	)
	if err != nil {
		return library.Song{}, fmt.Errorf("postgres library: upsert %q: %w", song.ID, err)
	}
	return song, nil
}

// SearchTitle implements [library.Store].
func (s *Store) SearchTitle(ctx context.Context, org, query string) ([]library.Song, error) {
	q := library.Fold(query)
	if q == "" {
		return nil, nil
	}
	const sql = `SELECT ` + selectColumns + ` FROM songs
WHERE organization = $1
  AND search_title <> ''
  AND (strpos(search_title, $2) > 0
       OR (length(search_title) >= $3 AND strpos(' ' || $2 || ' ', ' ' || search_title || ' ') > 0))
ORDER BY seq
LIMIT $4`
	return s.query(ctx, "search title", sql, org, q, library.MinReverseTitle, library.SearchLimit)
}

// SearchLyrics implements [library.Store].
func (s *Store) SearchLyrics(ctx context.Context, org, phrase string) ([]library.Song, error) {
	p := library.Fold(phrase)
	if p == "" {
		return nil, nil
	}
	const sql = `SELECT ` + selectColumns + ` FROM songs
WHERE organization = $1 AND strpos(search_lyrics, $2) > 0
ORDER BY seq
LIMIT $3`
	return s.query(ctx, "search lyrics", sql, org, p, library.SearchLimit)
}

// SearchAllWords implements [library.Store].
func (s *Store) SearchAllWords(ctx context.Context, org string, words []string) ([]library.Song, error) {
	folded := library.FoldWords(words)
	if len(folded) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM songs WHERE organization = $1`)
	args := []any{org}
	for _, w := range folded {
		args = append(args, w)
		sb.WriteString(" AND strpos(search_lyrics, $" + strconv.Itoa(len(args)) + ") > 0")
	}
	args = append(args, library.SearchLimit)
	sb.WriteString(" ORDER BY seq LIMIT $" + strconv.Itoa(len(args)))
	return s.query(ctx, "search words", sb.String(), args...)
}

// Get implements [library.Store].
func (s *Store) Get(ctx context.Context, org, id string) (library.Song, error) {
	songs, err := s.query(ctx, "get", `SELECT `+selectColumns+` FROM songs WHERE organization = $1 AND id = $2`, org, id)
	if err != nil {
		return library.Song{}, err
	}
	if len(songs) == 0 {
		return library.Song{}, fmt.Errorf("%w: %s", library.ErrNotFound, id)
	}
	return songs[0], nil
}

// Ping implements [library.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres library: ping: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, op, sql string, args ...any) ([]library.Song, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres library: %s: %w", op, err)
	}
	songs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (library.Song, error) {
		var song library.Song
		err := row.Scan(&song.ID, &song.Organization, &song.Title, &song.Artist, &song.Lyrics, &song.Source, &song.ExternalID)
		return song, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres library: %s: scan: %w", op, err)
	}
	return songs, nil
}
