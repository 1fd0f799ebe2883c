package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/and161185/songbook/internal/errs"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// classify maps an error to a status and a message safe to show the client.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, strings.TrimSuffix(err.Error(), ": "+errs.ErrValidation.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "invalid csrf token"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, errs.ErrVersionConflict):
		return http.StatusConflict, "the record was changed by someone else, reload it and try again"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "too many attempts, try again later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// decode reads a JSON body into dst and runs struct validation on it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed body: %v: %w", err, errs.ErrValidation)
	}
	return s.check(dst)
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid %s: %w", strings.Join(parts, "; "), errs.ErrValidation)
}
