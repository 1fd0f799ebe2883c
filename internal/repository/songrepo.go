package repository

import (
	"context"
	"time"

	"github.com/and161185/songbook/internal/model"
	"github.com/gofrs/uuid/v5"
)

// SongRepository provides versioned access to song records.
type SongRepository interface {
	// Create inserts a new song and returns it with server-assigned timestamps.
	Create(ctx context.Context, s model.Song) (model.Song, error)

	// Get returns a single song by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Song, error)

	// List returns all songs ordered by title.
	List(ctx context.Context) ([]model.Song, error)

	// Update applies patch if the stored updated_at equals expected.
	Update(ctx context.Context, id uuid.UUID, patch model.SongPatch, expected time.Time) (model.Song, error)

	// Delete removes a song with the same updated_at check as Update.
	Delete(ctx context.Context, id uuid.UUID, expected time.Time) error
}
