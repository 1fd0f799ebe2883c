// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Song is a single library entry with its optimistic-concurrency timestamp.
type Song struct {
	ID        uuid.UUID         `json:"id" msgpack:"id"`
	Title     string            `json:"title" msgpack:"title"`
	Album     []string          `json:"album,omitempty" msgpack:"album"`
	Genre     []string          `json:"genre,omitempty" msgpack:"genre"`
	Lyricist  []string          `json:"lyricist,omitempty" msgpack:"lyricist"`
	Composer  []string          `json:"composer,omitempty" msgpack:"composer"`
	Artist    []string          `json:"artist,omitempty" msgpack:"artist"`
	Track     *int32            `json:"track,omitempty" msgpack:"track"`
	Disc      *int32            `json:"disc,omitempty" msgpack:"disc"`
	Links     map[string]string `json:"links,omitempty" msgpack:"links"`
	Lyrics    string            `json:"lyrics" msgpack:"lyrics"`
	HasCover  bool              `json:"hasCover" msgpack:"has_cover"`
	HasScore  bool              `json:"hasScore" msgpack:"has_score"`
	CreatedAt time.Time         `json:"createdAt" msgpack:"created_at"`
	UpdatedAt time.Time         `json:"updatedAt" msgpack:"updated_at"` // version for optimistic locking
}

// SongPatch is a partial update; nil fields are left untouched.
type SongPatch struct {
	Title    *string
	Album    *[]string
	Genre    *[]string
	Lyricist *[]string
	Composer *[]string
	Artist   *[]string
	Track    *int32
	Disc     *int32
	Links    *map[string]string
	Lyrics   *string
	HasCover *bool
	HasScore *bool

	// ClearTrack and ClearDisc unset the numbers when Track or Disc is nil.
	ClearTrack bool
	ClearDisc  bool
}

// Apply returns a copy of s with the patch applied. Timestamps are not touched.
func (p SongPatch) Apply(s Song) Song {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Album != nil {
		s.Album = *p.Album
	}
	if p.Genre != nil {
		s.Genre = *p.Genre
	}
	if p.Lyricist != nil {
		s.Lyricist = *p.Lyricist
	}
	if p.Composer != nil {
		s.Composer = *p.Composer
	}
	if p.Artist != nil {
		s.Artist = *p.Artist
	}
	switch {
	case p.Track != nil:
		v := *p.Track
		s.Track = &v
	case p.ClearTrack:
		s.Track = nil
	}
	switch {
	case p.Disc != nil:
		v := *p.Disc
		s.Disc = &v
	case p.ClearDisc:
		s.Disc = nil
	}
	if p.Links != nil {
		s.Links = *p.Links
	}
	if p.Lyrics != nil {
		s.Lyrics = *p.Lyrics
	}
	if p.HasCover != nil {
		s.HasCover = *p.HasCover
	}
	if p.HasScore != nil {
		s.HasScore = *p.HasScore
	}
	return s
}

// User represents an administrator account. Passwords are never stored in plaintext.
type User struct {
	ID          uuid.UUID // PK
	Username    string    // unique
	DisplayName string
	PwdHash     []byte // Argon2id(password, SaltAuth)
	SaltAuth    []byte // per-user auth salt
	SessionGen  int64  // bumped on logout and password change
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Identity is the caller resolved from a session cookie.
type Identity struct {
	UserID     uuid.UUID
	Username   string
	Generation int64
	ExpiresAt  time.Time
}

// Session is a freshly issued session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}
