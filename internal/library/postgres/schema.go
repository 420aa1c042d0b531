package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// search_title and search_lyrics hold library.Fold output so containment
// queries run against the same normal form as the in-memory store.
const ddlSongs = `
CREATE TABLE IF NOT EXISTS songs (
    seq           BIGSERIAL    NOT NULL,
    id            TEXT         PRIMARY KEY,
    organization  TEXT         NOT NULL DEFAULT '',
    title         TEXT         NOT NULL,
    artist        TEXT         NOT NULL DEFAULT '',
    lyrics        TEXT         NOT NULL DEFAULT '',
    source        TEXT         NOT NULL DEFAULT 'local',
    external_id   TEXT         NOT NULL DEFAULT '',
    search_title  TEXT         NOT NULL DEFAULT '',
    search_lyrics TEXT         NOT NULL DEFAULT '',
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_songs_organization ON songs (organization);
CREATE INDEX IF NOT EXISTS idx_songs_org_seq ON songs (organization, seq);
`

// Migrate creates the songs table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSongs); err != nil {
		return fmt.Errorf("postgres library: migrate songs: %w", err)
	}
	return nil
}
