package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/songbook/internal/catalog"
	"github.com/and161185/songbook/internal/csrf"
	"github.com/and161185/songbook/internal/model"
	"github.com/and161185/songbook/internal/session"
	"github.com/and161185/songbook/internal/upload"
)

type fakeAccounts struct {
	user      *model.User
	loginErr  error
	pwErr     error
	logoutErr error
	logins    int
	logouts   []uuid.UUID
}

func (f *fakeAccounts) Login(context.Context, string, string, string) (*model.User, error) {
	f.logins++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.user, nil
}

func (f *fakeAccounts) Account(context.Context, uuid.UUID) (*model.User, error) { return f.user, nil }

func (f *fakeAccounts) UpdateAccount(_ context.Context, _ uuid.UUID, username, displayName string) (*model.User, error) {
	u := *f.user
	u.Username, u.DisplayName = username, displayName
	return &u, nil
}

func (f *fakeAccounts) ChangePassword(context.Context, uuid.UUID, string, string) (*model.User, error) {
	if f.pwErr != nil {
		return nil, f.pwErr
	}
	u := *f.user
	u.SessionGen++
	return &u, nil
}

func (f *fakeAccounts) Logout(_ context.Context, id uuid.UUID) error {
	f.logouts = append(f.logouts, id)
	return f.logoutErr
}

type fakeSongSvc struct {
	mu          sync.Mutex
	calls       int
	song        model.Song
	err         error
	lastQuery   catalog.Query
	lastPatch   model.SongPatch
	lastExpect  time.Time
	revalidated []uuid.UUID
}

func (f *fakeSongSvc) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeSongSvc) Create(_ context.Context, s model.Song) (model.Song, error) {
	f.hit()
	s.ID = f.song.ID
	return s, f.err
}

func (f *fakeSongSvc) Get(context.Context, uuid.UUID) (model.Song, error) {
	f.hit()
	return f.song, f.err
}

func (f *fakeSongSvc) List(_ context.Context, q catalog.Query) (catalog.Page, error) {
	f.hit()
	f.lastQuery = q
	return catalog.Page{Items: []model.Song{f.song}, Total: 1, Page: 1, PageSize: 20, Pages: 1}, f.err
}

func (f *fakeSongSvc) Update(_ context.Context, _ uuid.UUID, p model.SongPatch, expected time.Time) (model.Song, error) {
	f.hit()
	f.lastPatch, f.lastExpect = p, expected
	return f.song, f.err
}

func (f *fakeSongSvc) Delete(_ context.Context, _ uuid.UUID, expected time.Time) error {
	f.hit()
	f.lastExpect = expected
	return f.err
}

func (f *fakeSongSvc) Revalidate(_ context.Context, id uuid.UUID) error {
	f.hit()
	f.revalidated = append(f.revalidated, id)
	return f.err
}

type fakeUploader struct {
	calls   int
	lastID  string
	lastCfg upload.Config
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, data []byte, id, _ string, cfg upload.Config) (upload.Result, error) {
	f.calls++
	f.lastID, f.lastCfg = id, cfg
	return upload.Result{Object: cfg.Prefix + "/" + id + ".jpg", Size: int64(len(data))}, f.err
}

type harness struct {
	srv      *Server
	sessions *session.Provider
	csrf     *csrf.Manager
	accounts *fakeAccounts
	songs    *fakeSongSvc
	uploads  *fakeUploader
	user     model.User
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	sessions, err := session.NewProvider(session.Config{SignKey: []byte("test-key"), TTL: time.Hour})
	require.NoError(t, err)
	user := model.User{ID: uuid.Must(uuid.NewV4()), Username: "admin", DisplayName: "Admin"}
	h := &harness{
		sessions: sessions,
		csrf:     csrf.New(csrf.Config{HTTPOnly: true}),
		accounts: &fakeAccounts{user: &user},
		songs:    &fakeSongSvc{song: model.Song{ID: uuid.Must(uuid.NewV4()), Title: "Yesterday"}},
		uploads:  &fakeUploader{},
		user:     user,
	}
	d := Deps{
		Log:              zaptest.NewLogger(t),
		Sessions:         h.sessions,
		CSRF:             h.csrf,
		Accounts:         h.accounts,
		Songs:            h.songs,
		Uploads:          h.uploads,
		RevalidateSecret: "s3cret",
	}
	for _, o := range opts {
		o(&d)
	}
	h.srv = New(d)
	return h
}

func (h *harness) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	s, err := h.sessions.Sign(h.user)
	require.NoError(t, err)
	return &http.Cookie{Name: session.DefaultCookieName, Value: s.Token}
}

// expiredSessionCookie signs a session for h.user that expired ago before now.
func (h *harness) expiredSessionCookie(t *testing.T, ago time.Duration) *http.Cookie {
	t.Helper()
	old, err := session.NewProvider(session.Config{
		SignKey: []byte("test-key"),
		TTL:     time.Hour,
		Now:     func() time.Time { return time.Now().Add(-time.Hour - ago) },
	})
	require.NoError(t, err)
	s, err := old.Sign(h.user)
	require.NoError(t, err)
	return &http.Cookie{Name: session.DefaultCookieName, Value: s.Token}
}

func (h *harness) csrfPair(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	tok, err := h.csrf.Issue(rec)
	require.NoError(t, err)
	return rec.Result().Cookies()[0], tok
}

type reqOpt func(*http.Request)

func withSession(c *http.Cookie) reqOpt { return func(r *http.Request) { r.AddCookie(c) } }

func withCSRF(c *http.Cookie, header string) reqOpt {
	return func(r *http.Request) {
		if c != nil {
			r.AddCookie(c)
		}
		if header != "" {
			r.Header.Set(csrf.DefaultHeaderName, header)
		}
	}
}

func (h *harness) do(method, target string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, target, rdr)
	r.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(r)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, r)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}
