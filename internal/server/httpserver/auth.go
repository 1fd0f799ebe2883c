package httpserver

import (
	"errors"
	"net/http"

	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/model"
)

// RouteOptions configures Authed.
type RouteOptions struct {
	RequireCSRF bool
}

// AuthedHandler is a handler that runs with a resolved caller.
type AuthedHandler func(w http.ResponseWriter, r *http.Request, id model.Identity)

// Authed resolves the session before running h. A missing, expired or revoked
// session answers 401; with RequireCSRF a token mismatch answers 403. In both cases h
// is not invoked. Neither session nor token state is modified here.
func (s *Server) Authed(h AuthedHandler, opts RouteOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.sessions.Resolve(r)
		if err != nil {
			if !errors.Is(err, errs.ErrUnauthorized) {
				s.fail(w, r, err)
				return
			}
			s.fail(w, r, errs.ErrUnauthorized)
			return
		}
		if opts.RequireCSRF && !s.csrf.Verify(r) {
			s.fail(w, r, errs.ErrForbidden)
			return
		}
		h(w, r.WithContext(WithIdentity(r.Context(), id)), id)
	})
}

// CSRFOnly guards routes that mutate state before a session exists, such as login.
func (s *Server) CSRFOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.csrf.Verify(r) {
			s.fail(w, r, errs.ErrForbidden)
			return
		}
		h(w, r)
	})
}
