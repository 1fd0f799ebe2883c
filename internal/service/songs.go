package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/songbook/internal/catalog"
	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/metrics"
	"github.com/and161185/songbook/internal/model"
	"github.com/and161185/songbook/internal/pagecache"
	"github.com/and161185/songbook/internal/repository"
)

// SongService serves the public catalog and the admin CRUD surface.
// Every successful write drops the affected cache entries.
type SongService struct {
	repo  repository.SongRepository
	cache pagecache.Cache
	log   *zap.Logger
}

// NewSongService constructs SongService. A nil cache disables caching.
func NewSongService(repo repository.SongRepository, cache pagecache.Cache, log *zap.Logger) *SongService {
	if cache == nil {
		cache = pagecache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SongService{repo: repo, cache: cache, log: log}
}

// Create assigns a new ID and stores s.
func (s *SongService) Create(ctx context.Context, song model.Song) (model.Song, error) {
	if err := validateSong(song); err != nil {
		return model.Song{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Song{}, err
	}
	song.ID = id
	song.Title = strings.TrimSpace(song.Title)

	out, err := s.repo.Create(ctx, song)
	if err != nil {
		return model.Song{}, err
	}
	s.invalidate(ctx, out.ID)
	return out, nil
}

// Get returns one song, from cache when possible. The ticket is taken before
// the row is read, so a write that lands in between voids the fill.
func (s *SongService) Get(ctx context.Context, id uuid.UUID) (model.Song, error) {
	cached, ticket, ok, err := s.cache.Song(ctx, id)
	if err != nil {
		s.log.Warn("cache read", zap.Stringer("id", id), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	song, rerr := s.repo.Get(ctx, id)
	if rerr != nil {
		return model.Song{}, rerr
	}
	if err != nil {
		return *song, nil
	}
	if err := s.cache.PutSong(ctx, *song, ticket); err != nil {
		s.log.Warn("cache write", zap.Stringer("id", id), zap.Error(err))
	}
	return *song, nil
}

// List searches the catalog.
func (s *SongService) List(ctx context.Context, q catalog.Query) (catalog.Page, error) {
	songs, err := s.all(ctx)
	if err != nil {
		return catalog.Page{}, err
	}
	return catalog.Search(songs, q), nil
}

func (s *SongService) all(ctx context.Context) ([]model.Song, error) {
	cached, ticket, ok, err := s.cache.List(ctx)
	if err != nil {
		s.log.Warn("cache read", zap.String("key", "list"), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	songs, rerr := s.repo.List(ctx)
	if rerr != nil {
		return nil, rerr
	}
	if err != nil {
		// no valid ticket
		return songs, nil
	}
	if err := s.cache.PutList(ctx, songs, ticket); err != nil {
		s.log.Warn("cache write", zap.String("key", "list"), zap.Error(err))
	}
	return songs, nil
}

// Update applies patch if the stored record still carries expected as its
// updatedAt. A stale expected value yields errs.ErrVersionConflict.
func (s *SongService) Update(ctx context.Context, id uuid.UUID, patch model.SongPatch, expected time.Time) (model.Song, error) {
	if expected.IsZero() {
		return model.Song{}, fmt.Errorf("missing updatedAt: %w", errs.ErrValidation)
	}
	if err := validatePatch(patch); err != nil {
		return model.Song{}, err
	}

	out, err := s.repo.Update(ctx, id, patch, expected)
	if err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			metrics.Conflicts.Inc()
		}
		return model.Song{}, err
	}
	s.invalidate(ctx, id)
	return out, nil
}

// Delete removes a song under the same updatedAt check as Update.
func (s *SongService) Delete(ctx context.Context, id uuid.UUID, expected time.Time) error {
	if expected.IsZero() {
		return fmt.Errorf("missing updatedAt: %w", errs.ErrValidation)
	}
	if err := s.repo.Delete(ctx, id, expected); err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			metrics.Conflicts.Inc()
		}
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Revalidate drops cached pages for one song, or for everything when id is Nil.
func (s *SongService) Revalidate(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return s.cache.InvalidateAll(ctx)
	}
	return s.cache.Invalidate(ctx, id)
}

func (s *SongService) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn("cache invalidate", zap.Stringer("id", id), zap.Error(err))
	}
}

func validateSong(s model.Song) error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("empty title: %w", errs.ErrValidation)
	}
	return validateNumbers(s.Track, s.Disc)
}

func validatePatch(p model.SongPatch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("empty title: %w", errs.ErrValidation)
	}
	return validateNumbers(p.Track, p.Disc)
}

func validateNumbers(track, disc *int32) error {
	if track != nil && *track <= 0 {
		return fmt.Errorf("track must be positive: %w", errs.ErrValidation)
	}
	if disc != nil && *disc <= 0 {
		return fmt.Errorf("disc must be positive: %w", errs.ErrValidation)
	}
	return nil
}
