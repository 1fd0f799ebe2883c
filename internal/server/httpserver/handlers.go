package httpserver

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/songbook/internal/catalog"
	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/model"
	"github.com/and161185/songbook/internal/upload"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn("health check", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	tok, err := s.csrf.Issue(w)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
}

// --- auth ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.accounts.Login(r.Context(), req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.sessions.Issue(w, *u); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(u))
}

// handleLogout clears the cookies and revokes every session of the user.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, id model.Identity) {
	s.sessions.Clear(w)
	s.csrf.Clear(w)
	if err := s.accounts.Logout(r.Context(), id.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var req passwordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.accounts.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// other sessions are revoked; keep this one
	if _, err := s.sessions.Issue(w, *u); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- account ---

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, id model.Identity) {
	u, err := s.accounts.Account(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(u))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var req accountRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.accounts.UpdateAccount(r.Context(), id.UserID, req.Username, req.DisplayName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// the session carries the username, so reissue it when it changes
	if u.Username != id.Username {
		if _, err := s.sessions.Issue(w, *u); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, viewAccount(u))
}

// --- songs ---

func songID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad song id: %w", errs.ErrValidation)
	}
	return id, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad %s: %w", name, errs.ErrValidation)
	}
	return n, nil
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	size, err := intParam(r, "pageSize")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := s.songs.List(r.Context(), catalog.Query{
		Q:        q.Get("q"),
		Genre:    q.Get("genre"),
		Artist:   q.Get("artist"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	id, err := songID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	song, err := s.songs.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleCreateSong(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	var req songRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	song, err := s.songs.Create(r.Context(), req.song())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

func (s *Server) handleUpdateSong(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	id, err := songID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req songUpdateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	song, err := s.songs.Update(r.Context(), id, req.patch(), req.ExpectedUpdatedAt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	id, err := songID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	expected, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("expectedUpdatedAt"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("bad expectedUpdatedAt: %w", errs.ErrValidation))
		return
	}
	if err := s.songs.Delete(r.Context(), id, expected); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- uploads ---

const multipartMemory = 32 << 20

func (s *Server) uploadHandler(cfg upload.Config) AuthedHandler {
	return func(w http.ResponseWriter, r *http.Request, _ model.Identity) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxSize+1<<20)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				s.fail(w, r, fmt.Errorf("file too large, limit %d bytes: %w", cfg.MaxSize, errs.ErrValidation))
				return
			}
			s.fail(w, r, fmt.Errorf("bad multipart form: %w", errs.ErrValidation))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, hdr, err := r.FormFile("file")
		if err != nil {
			s.fail(w, r, fmt.Errorf("missing file: %w", errs.ErrValidation))
			return
		}
		defer file.Close()

		info := upload.FileInfo{Name: hdr.Filename, ContentType: hdr.Header.Get("Content-Type"), Size: hdr.Size}
		if v := upload.ValidateFile(info, cfg); !v.Valid {
			s.fail(w, r, fmt.Errorf("%s: %w", v.Reason, errs.ErrValidation))
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.uploads.Upload(r.Context(), data, r.FormValue("id"), info.ContentType, cfg)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// --- revalidation ---

func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if s.revalidate == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.revalidate)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid secret"})
		return
	}

	id := uuid.Nil
	if raw := r.URL.Query().Get("id"); raw != "" {
		parsed, err := uuid.FromString(raw)
		if err != nil {
			s.fail(w, r, fmt.Errorf("bad song id: %w", errs.ErrValidation))
			return
		}
		id = parsed
	}
	if err := s.songs.Revalidate(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revalidated": true, "now": time.Now().UnixMilli()})
}
