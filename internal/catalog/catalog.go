// Package catalog searches, filters and paginates the song list.
package catalog

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/and161185/songbook/internal/model"
)

// Page size bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query selects a page of songs. Zero values mean "no filter" or the default page.
type Query struct {
	Q        string
	Genre    string
	Artist   string
	Page     int
	PageSize int
}

// Page is one window of a result set.
type Page struct {
	Items    []model.Song `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Pages    int          `json:"pages"`
}

// Normalize clamps paging fields into their valid ranges.
func (q Query) Normalize() Query {
	q.Q = strings.TrimSpace(q.Q)
	q.Genre = strings.TrimSpace(q.Genre)
	q.Artist = strings.TrimSpace(q.Artist)
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return q
}

// Search applies q to songs, which are expected in title order. With an empty
// Q the input order is kept; otherwise results are ranked by fuzzy score.
func Search(songs []model.Song, q Query) Page {
	q = q.Normalize()

	filtered := make([]model.Song, 0, len(songs))
	for _, s := range songs {
		if q.Genre != "" && !containsFold(s.Genre, q.Genre) {
			continue
		}
		if q.Artist != "" && !containsFold(s.Artist, q.Artist) {
			continue
		}
		filtered = append(filtered, s)
	}

	if q.Q != "" {
		matches := fuzzy.FindFrom(q.Q, haystack(filtered))
		ranked := make([]model.Song, 0, len(matches))
		for _, m := range matches {
			ranked = append(ranked, filtered[m.Index])
		}
		filtered = ranked
	}

	return paginate(filtered, q.Page, q.PageSize)
}

func paginate(songs []model.Song, page, size int) Page {
	total := len(songs)
	p := Page{Total: total, Page: page, PageSize: size, Pages: (total + size - 1) / size}
	start := (page - 1) * size
	if start >= total {
		p.Items = []model.Song{}
		return p
	}
	end := min(start+size, total)
	p.Items = songs[start:end]
	return p
}

// haystack exposes songs to fuzzy as "title artists albums".
type haystack []model.Song

func (h haystack) String(i int) string {
	s := h[i]
	parts := make([]string, 0, 1+len(s.Artist)+len(s.Album))
	parts = append(parts, s.Title)
	parts = append(parts, s.Artist...)
	parts = append(parts, s.Album...)
	return strings.Join(parts, " ")
}

func (h haystack) Len() int { return len(h) }

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
