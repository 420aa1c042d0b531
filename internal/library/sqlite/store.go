// Package sqlite provides a single-file SQLite [library.Store] built on GORM
// and the pure-Go glebarez/sqlite driver, for installations without a
// PostgreSQL server.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/MrWong99/versecue/internal/library"
)

var _ library.Store = (*Store)(nil)

// songRow is the GORM model for the songs table. SearchTitle and SearchLyrics
// hold library.Fold output.
type songRow struct {
	ID           string `gorm:"primaryKey;type:varchar(64)"`
	Organization string `gorm:"index:idx_songs_org"`
	Title        string `gorm:"not null"`
	Artist       string
	Lyrics       string
	Source       string
	ExternalID   string
	SearchTitle  string
	SearchLyrics string
	UpdatedAt    time.Time
}

func (songRow) TableName() string { return "songs" }

func (r songRow) song() library.Song {
	return library.Song{
		ID:           r.ID,
		Organization: r.Organization,
		Title:        r.Title,
		Artist:       r.Artist,
		Lyrics:       r.Lyrics,
		Source:       r.Source,
		ExternalID:   r.ExternalID,
	}
}

// Store is a SQLite song library. It is safe for concurrent use.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the database at path and migrates the schema. Use
// ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite library: create dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite library: open %q: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite library: get sql.DB: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&songRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlite library: auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert inserts song or replaces the row with the same id.
func (s *Store) Upsert(ctx context.Context, song library.Song) (library.Song, error) {
	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	if song.Source == "" {
		song.Source = library.SourceLocal
	}
	row := songRow{
		ID:           song.ID,
		Organization: song.Organization,
		Title:        song.Title,
		Artist:       song.Artist,
		Lyrics:       song.Lyrics,
		Source:       song.Source,
		ExternalID:   song.ExternalID,
		SearchTitle:  library.Fold(song.Title),
		SearchLyrics: library.Fold(song.Lyrics),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return library.Song{}, fmt.Errorf("sqlite library: upsert %q: %w", song.ID, err)
	}
	return song, nil
}

// SearchTitle implements [library.Store].
func (s *Store) SearchTitle(ctx context.Context, org, query string) ([]library.Song, error) {
	q := library.Fold(query)
	if q == "" {
		return nil, nil
	}
	tx := s.scoped(ctx, org).
		Where("search_title <> ''").
		Where("(instr(search_title, ?) > 0 OR (length(search_title) >= ? AND instr(?, ' ' || search_title || ' ') > 0))",
			q, library.MinReverseTitle, " "+q+" ")
	return s.find(tx, "search title")
}

// SearchLyrics implements [library.Store].
func (s *Store) SearchLyrics(ctx context.Context, org, phrase string) ([]library.Song, error) {
	p := library.Fold(phrase)
	if p == "" {
		return nil, nil
	}
	return s.find(s.scoped(ctx, org).Where("instr(search_lyrics, ?) > 0", p), "search lyrics")
}

// SearchAllWords implements [library.Store].
func (s *Store) SearchAllWords(ctx context.Context, org string, words []string) ([]library.Song, error) {
	folded := library.FoldWords(words)
	if len(folded) == 0 {
		return nil, nil
	}
	tx := s.scoped(ctx, org)
	for _, w := range folded {
		tx = tx.Where("instr(search_lyrics, ?) > 0", w)
	}
	return s.find(tx, "search words")
}

// Get implements [library.Store].
func (s *Store) Get(ctx context.Context, org, id string) (library.Song, error) {
	var row songRow
	err := s.scoped(ctx, org).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return library.Song{}, fmt.Errorf("%w: %s", library.ErrNotFound, id)
	}
	if err != nil {
		return library.Song{}, fmt.Errorf("sqlite library: get %q: %w", id, err)
	}
	return row.song(), nil
}

// Ping implements [library.Store].
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite library: ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) scoped(ctx context.Context, org string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&songRow{}).Where("organization = ?", org)
}

func (s *Store) find(tx *gorm.DB, op string) ([]library.Song, error) {
	var rows []songRow
	if err := tx.Order("rowid").Limit(library.SearchLimit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite library: %s: %w", op, err)
	}
	out := make([]library.Song, len(rows))
	for i, r := range rows {
		out[i] = r.song()
	}
	return out, nil
}
