package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/versecue/internal/config"
	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/library/postgres"
	"github.com/MrWong99/versecue/internal/library/sqlite"
)

// upserter is implemented by the database-backed stores.
type upserter interface {
	Upsert(ctx context.Context, song library.Song) (library.Song, error)
}

// initLibrary opens the song library selected by library.backend. A store
// injected with WithStore wins.
func (a *App) initLibrary(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	lc := a.cfg.Library

	switch lc.Backend {
	case config.LibraryYAML:
		s, err := library.NewMemStoreFromFile(lc.Path)
		if err != nil {
			return err
		}
		a.store = s
		a.log.Info("song library loaded", "backend", lc.Backend, "path", lc.Path, "songs", s.Len())

	case config.LibraryPostgres:
		s, err := postgres.NewStore(ctx, lc.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		a.store = s
		if lc.Path != "" {
			if err := seed(ctx, s, lc.Path); err != nil {
				return err
			}
		}
		a.log.Info("song library connected", "backend", lc.Backend)

	case config.LibrarySQLite:
		s, err := sqlite.Open(lc.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		a.store = s
		a.log.Info("song library opened", "backend", lc.Backend, "path", lc.Path)

	default:
		a.store = library.NewMemStore()
		a.log.Warn("song library is empty, only external search will match", "backend", lc.Backend)
	}
	return nil
}

// seed upserts every song of a YAML library file into a database store.
func seed(ctx context.Context, s upserter, path string) error {
	lf, err := library.LoadFile(path)
	if err != nil {
		return err
	}
	for _, song := range lf.Songs {
		if _, err := s.Upsert(ctx, song); err != nil {
			return fmt.Errorf("seed %q: %w", song.Title, err)
		}
	}
	return nil
}
