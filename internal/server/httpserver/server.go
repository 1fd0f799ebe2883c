// Package httpserver exposes the songbook JSON API over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/songbook/internal/catalog"
	"github.com/and161185/songbook/internal/csrf"
	"github.com/and161185/songbook/internal/model"
	"github.com/and161185/songbook/internal/upload"
)

// Sessions issues and resolves session cookies.
type Sessions interface {
	Issue(w http.ResponseWriter, u model.User) (model.Session, error)
	Resolve(r *http.Request) (model.Identity, error)
	Clear(w http.ResponseWriter)
}

// Accounts is the account service surface used by handlers.
type Accounts interface {
	Login(ctx context.Context, username, password, remoteAddr string) (*model.User, error)
	Account(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, username, displayName string) (*model.User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) (*model.User, error)
	Logout(ctx context.Context, id uuid.UUID) error
}

// Songs is the song service surface used by handlers.
type Songs interface {
	Create(ctx context.Context, s model.Song) (model.Song, error)
	Get(ctx context.Context, id uuid.UUID) (model.Song, error)
	List(ctx context.Context, q catalog.Query) (catalog.Page, error)
	Update(ctx context.Context, id uuid.UUID, patch model.SongPatch, expected time.Time) (model.Song, error)
	Delete(ctx context.Context, id uuid.UUID, expected time.Time) error
	Revalidate(ctx context.Context, id uuid.UUID) error
}

// Uploader forwards validated files to storage.
type Uploader interface {
	Upload(ctx context.Context, data []byte, identifier, contentType string, cfg upload.Config) (upload.Result, error)
}

// Deps are the collaborators of Server. Limiter and Health are optional.
type Deps struct {
	Log              *zap.Logger
	Sessions         Sessions
	CSRF             *csrf.Manager
	Accounts         Accounts
	Songs            Songs
	Uploads          Uploader
	RevalidateSecret string
	Limiter          *ClientLimiter
	Health           func(ctx context.Context) error
}

// Server routes HTTP requests to handlers.
type Server struct {
	log        *zap.Logger
	sessions   Sessions
	csrf       *csrf.Manager
	accounts   Accounts
	songs      Songs
	uploads    Uploader
	revalidate string
	health     func(ctx context.Context) error
	validate   *validator.Validate
	router     *mux.Router
}

// New wires routes and middleware.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		log:        log,
		sessions:   d.Sessions,
		csrf:       d.CSRF,
		accounts:   d.Accounts,
		songs:      d.Songs,
		uploads:    d.Uploads,
		revalidate: d.RevalidateSecret,
		health:     d.Health,
		validate:   v,
		router:     mux.NewRouter(),
	}
	s.routes(d.Limiter)
	return s
}

func (s *Server) routes(lim *ClientLimiter) {
	r := s.router
	r.Use(Logging(s.log), Recover(s.log))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if lim != nil {
		api.Use(lim.Middleware(s))
	}
	mutating := RouteOptions{RequireCSRF: true}

	api.HandleFunc("/csrf", s.handleCSRF).Methods(http.MethodGet)

	api.Handle("/auth/login", s.CSRFOnly(s.handleLogin)).Methods(http.MethodPost)
	api.Handle("/auth/logout", s.Authed(s.handleLogout, mutating)).Methods(http.MethodPost)
	api.Handle("/auth/password", s.Authed(s.handlePassword, mutating)).Methods(http.MethodPost)

	api.Handle("/account", s.Authed(s.handleAccount, RouteOptions{})).Methods(http.MethodGet)
	api.Handle("/account", s.Authed(s.handleUpdateAccount, mutating)).Methods(http.MethodPut)

	api.HandleFunc("/songs", s.handleListSongs).Methods(http.MethodGet)
	api.Handle("/songs", s.Authed(s.handleCreateSong, mutating)).Methods(http.MethodPost)
	api.HandleFunc("/songs/{id}", s.handleGetSong).Methods(http.MethodGet)
	api.Handle("/songs/{id}", s.Authed(s.handleUpdateSong, mutating)).Methods(http.MethodPut)
	api.Handle("/songs/{id}", s.Authed(s.handleDeleteSong, mutating)).Methods(http.MethodDelete)

	api.Handle("/upload/cover", s.Authed(s.uploadHandler(upload.Cover), mutating)).Methods(http.MethodPost)
	api.Handle("/upload/score", s.Authed(s.uploadHandler(upload.Score), mutating)).Methods(http.MethodPost)

	api.HandleFunc("/revalidate", s.handleRevalidate).Methods(http.MethodGet, http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
