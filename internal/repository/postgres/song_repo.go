package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const songCols = `id, title, album, genre, lyricist, composer, artist, track, disc, links, lyrics, has_cover, has_score, created_at, updated_at`

// SongRepo implements SongRepository using PostgreSQL.
type SongRepo struct{ db *DB }

// NewSongRepo constructs a song repository.
func NewSongRepo(db *DB) *SongRepo { return &SongRepo{db: db} }

func scanSong(row pgx.Row) (model.Song, error) {
	var s model.Song
	err := row.Scan(
		&s.ID, &s.Title, &s.Album, &s.Genre, &s.Lyricist, &s.Composer, &s.Artist,
		&s.Track, &s.Disc, &s.Links, &s.Lyrics, &s.HasCover, &s.HasScore,
		&s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// sameVersion compares timestamps at the precision PostgreSQL stores them.
func sameVersion(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilLinks(v map[string]string) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	return v
}

// Create inserts a song row; created_at/updated_at come from the database.
func (r *SongRepo) Create(ctx context.Context, s model.Song) (model.Song, error) {
	const q = `
INSERT INTO songs (id, title, album, genre, lyricist, composer, artist, track, disc, links, lyrics, has_cover, has_score)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q,
		s.ID, s.Title, nonNil(s.Album), nonNil(s.Genre), nonNil(s.Lyricist), nonNil(s.Composer), nonNil(s.Artist),
		s.Track, s.Disc, nonNilLinks(s.Links), s.Lyrics, s.HasCover, s.HasScore,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return model.Song{}, errs.ErrAlreadyExists
	}
	if err != nil {
		return model.Song{}, err
	}
	return s, nil
}

// Get returns a single song by id.
func (r *SongRepo) Get(ctx context.Context, id uuid.UUID) (*model.Song, error) {
	q := `SELECT ` + songCols + ` FROM songs WHERE id=$1`
	s, err := scanSong(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns every song ordered by title.
func (r *SongRepo) List(ctx context.Context) ([]model.Song, error) {
	q := `SELECT ` + songCols + ` FROM songs ORDER BY title ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Song{}
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update applies patch with optimistic concurrency on updated_at.
func (r *SongRepo) Update(
	ctx context.Context, id uuid.UUID, patch model.SongPatch, expected time.Time,
) (song model.Song, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Song{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	sel := `SELECT ` + songCols + ` FROM songs WHERE id=$1 FOR UPDATE`
	cur, err := scanSong(tx.QueryRow(ctx, sel, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Song{}, errs.ErrNotFound
		}
		return model.Song{}, err
	}
	if !sameVersion(cur.UpdatedAt, expected) {
		return model.Song{}, fmt.Errorf("song %s: %w", id, errs.ErrVersionConflict)
	}

	next := patch.Apply(cur)
	const upd = `
UPDATE songs SET title=$2, album=$3, genre=$4, lyricist=$5, composer=$6, artist=$7,
  track=$8, disc=$9, links=$10, lyrics=$11, has_cover=$12, has_score=$13, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	if err = tx.QueryRow(ctx, upd,
		id, next.Title, nonNil(next.Album), nonNil(next.Genre), nonNil(next.Lyricist), nonNil(next.Composer), nonNil(next.Artist),
		next.Track, next.Disc, nonNilLinks(next.Links), next.Lyrics, next.HasCover, next.HasScore,
	).Scan(&next.UpdatedAt); err != nil {
		return model.Song{}, err
	}
	return next, nil
}

// Delete removes a song if its updated_at still matches expected.
func (r *SongRepo) Delete(ctx context.Context, id uuid.UUID, expected time.Time) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT updated_at FROM songs WHERE id=$1 FOR UPDATE`
	const del = `DELETE FROM songs WHERE id=$1`

	var cur time.Time
	if err = tx.QueryRow(ctx, sel, id).Scan(&cur); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	if !sameVersion(cur, expected) {
		return fmt.Errorf("song %s: %w", id, errs.ErrVersionConflict)
	}
	_, err = tx.Exec(ctx, del, id)
	return err
}
