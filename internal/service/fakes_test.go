package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/limiter"
	"github.com/and161185/songbook/internal/model"
	"github.com/and161185/songbook/internal/pagecache"
	"github.com/and161185/songbook/internal/repository"
)

type fakeUsers struct {
	byName map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, username, displayName string) (*model.User, error) {
	for name, u := range f.byName {
		if u.ID != id {
			continue
		}
		if other, taken := f.byName[username]; taken && other.ID != id {
			return nil, errs.ErrAlreadyExists
		}
		delete(f.byName, name)
		u.Username, u.DisplayName = username, displayName
		f.byName[username] = u
		c := *u
		return &c, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) byID(id uuid.UUID) *model.User {
	for _, u := range f.byName {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id uuid.UUID, hash, salt []byte) (*model.User, error) {
	u := f.byID(id)
	if u == nil {
		return nil, errs.ErrNotFound
	}
	u.PwdHash, u.SaltAuth = hash, salt
	u.SessionGen++
	c := *u
	return &c, nil
}

func (f *fakeUsers) SessionGeneration(_ context.Context, id uuid.UUID) (int64, error) {
	u := f.byID(id)
	if u == nil {
		return 0, errs.ErrNotFound
	}
	return u.SessionGen, nil
}

func (f *fakeUsers) BumpSessionGeneration(_ context.Context, id uuid.UUID) (int64, error) {
	u := f.byID(id)
	if u == nil {
		return 0, errs.ErrNotFound
	}
	u.SessionGen++
	return u.SessionGen, nil
}

type fakeLimiter struct {
	check    limiter.Decision
	checkErr error
	failure  limiter.Decision
	failErr  error

	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Check(context.Context, limiter.Key) (limiter.Decision, error) {
	return l.check, l.checkErr
}

func (l *fakeLimiter) RecordSuccess(context.Context, limiter.Key) error {
	l.successCalls++
	return nil
}

func (l *fakeLimiter) RecordFailure(context.Context, limiter.Key) (limiter.Decision, error) {
	l.failureCalls++
	return l.failure, l.failErr
}

// fakeSongs enforces the updatedAt check under a mutex, like SELECT ... FOR UPDATE.
type fakeSongs struct {
	mu    sync.Mutex
	songs map[uuid.UUID]model.Song
	clock time.Time
	lists int
}

var _ repository.SongRepository = (*fakeSongs)(nil)

func newFakeSongs() *fakeSongs {
	return &fakeSongs{
		songs: map[uuid.UUID]model.Song{},
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeSongs) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeSongs) Create(_ context.Context, s model.Song) (model.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.songs[s.ID]; ok {
		return model.Song{}, errs.ErrAlreadyExists
	}
	now := f.tick()
	s.CreatedAt, s.UpdatedAt = now, now
	f.songs[s.ID] = s
	return s, nil
}

func (f *fakeSongs) Get(_ context.Context, id uuid.UUID) (*model.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSongs) List(context.Context) ([]model.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	out := make([]model.Song, 0, len(f.songs))
	for _, s := range f.songs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSongs) Update(_ context.Context, id uuid.UUID, patch model.SongPatch, expected time.Time) (model.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[id]
	if !ok {
		return model.Song{}, errs.ErrNotFound
	}
	if !s.UpdatedAt.Equal(expected) {
		return model.Song{}, errs.ErrVersionConflict
	}
	s = patch.Apply(s)
	s.UpdatedAt = f.tick()
	f.songs[id] = s
	return s, nil
}

func (f *fakeSongs) Delete(_ context.Context, id uuid.UUID, expected time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[id]
	if !ok {
		return errs.ErrNotFound
	}
	if !s.UpdatedAt.Equal(expected) {
		return errs.ErrVersionConflict
	}
	delete(f.songs, id)
	return nil
}

// recordingCache wraps Nop and remembers invalidations.
type recordingCache struct {
	pagecache.Nop
	mu          sync.Mutex
	invalidated []uuid.UUID
	all         int
}

func (c *recordingCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *recordingCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all++
	return nil
}
