package httpserver

import (
	"time"

	"github.com/and161185/songbook/internal/model"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=256"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=256"`
}

type accountRequest struct {
	Username    string `json:"username" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

type accountView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func viewAccount(u *model.User) accountView {
	return accountView{ID: u.ID.String(), Username: u.Username, DisplayName: u.DisplayName, UpdatedAt: u.UpdatedAt}
}

// songRequest is the editable part of a song.
type songRequest struct {
	Title    string            `json:"title" validate:"required,max=200"`
	Album    []string          `json:"album" validate:"max=20,dive,required,max=200"`
	Genre    []string          `json:"genre" validate:"max=20,dive,required,max=100"`
	Lyricist []string          `json:"lyricist" validate:"max=20,dive,required,max=200"`
	Composer []string          `json:"composer" validate:"max=20,dive,required,max=200"`
	Artist   []string          `json:"artist" validate:"max=20,dive,required,max=200"`
	Track    *int32            `json:"track" validate:"omitempty,gt=0,lte=9999"`
	Disc     *int32            `json:"disc" validate:"omitempty,gt=0,lte=999"`
	Links    map[string]string `json:"links" validate:"max=20,dive,keys,required,max=50,endkeys,required,url,max=2048"`
	Lyrics   string            `json:"lyrics" validate:"max=50000"`
	HasCover bool              `json:"hasCover"`
	HasScore bool              `json:"hasScore"`
}

func (r songRequest) song() model.Song {
	return model.Song{
		Title:    r.Title,
		Album:    r.Album,
		Genre:    r.Genre,
		Lyricist: r.Lyricist,
		Composer: r.Composer,
		Artist:   r.Artist,
		Track:    r.Track,
		Disc:     r.Disc,
		Links:    r.Links,
		Lyrics:   r.Lyrics,
		HasCover: r.HasCover,
		HasScore: r.HasScore,
	}
}

// songUpdateRequest replaces every editable field; a null or missing track
// or disc clears it. ExpectedUpdatedAt is the updatedAt the client last read.
type songUpdateRequest struct {
	songRequest
	ExpectedUpdatedAt time.Time `json:"expectedUpdatedAt"`
}

func (r songUpdateRequest) patch() model.SongPatch {
	p := model.SongPatch{
		Title:    &r.Title,
		Album:    &r.Album,
		Genre:    &r.Genre,
		Lyricist: &r.Lyricist,
		Composer: &r.Composer,
		Artist:   &r.Artist,
		Links:    &r.Links,
		Lyrics:   &r.Lyrics,
		HasCover: &r.HasCover,
		HasScore: &r.HasScore,
	}
	p.Track, p.ClearTrack = r.Track, r.Track == nil
	p.Disc, p.ClearDisc = r.Disc, r.Disc == nil
	return p
}
