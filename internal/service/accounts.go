// Package service contains application services for accounts and songs.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/songbook/internal/crypto"
	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/limiter"
	"github.com/and161185/songbook/internal/model"
	"github.com/and161185/songbook/internal/repository"
)

// MinPasswordLen applies to newly set passwords.
const MinPasswordLen = 8

// Unknown usernames are checked against this hash so a miss costs as much as
// a wrong password.
var (
	dummySalt = make([]byte, 16)
	dummyHash = pkgcrypto.HashPassword([]byte("songbook"), dummySalt)
)

// AccountService authenticates administrators and manages their profile.
type AccountService struct {
	users  repository.UserRepository
	lim    limiter.Limiter
	log    *zap.Logger
	verify func(password, salt, hash []byte) bool
}

// NewAccountService constructs AccountService with required dependencies.
func NewAccountService(users repository.UserRepository, lim limiter.Limiter, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{users: users, lim: lim, log: log, verify: pkgcrypto.VerifyPassword}
}

// Register creates a new administrator. Used by the create-user command.
func (s *AccountService) Register(ctx context.Context, username, displayName, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("empty username: %w", errs.ErrValidation)
	}
	if len(password) < MinPasswordLen {
		return nil, fmt.Errorf("password shorter than %d: %w", MinPasswordLen, errs.ErrValidation)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, salt, err := pkgcrypto.NewPasswordHash([]byte(password))
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:          uid,
		Username:    username,
		DisplayName: strings.TrimSpace(displayName),
		PwdHash:     hash,
		SaltAuth:    salt,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials with rate limiting keyed by (username, client address).
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, username, password, remoteAddr string) (*model.User, error) {
	key := limiter.KeyFor(username, remoteAddr)

	d, err := s.lim.Check(ctx, key)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, fmt.Errorf("retry in %s: %w", d.RetryAfter.Round(time.Second), errs.ErrRateLimited)
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	salt, hash := dummySalt, dummyHash
	if err == nil {
		salt, hash = u.SaltAuth, u.PwdHash
	}
	if !s.verify([]byte(password), salt, hash) || err != nil {
		fd, ferr := s.lim.RecordFailure(ctx, key)
		if ferr != nil {
			s.log.Warn("record login failure", zap.String("username", username), zap.Error(ferr))
		} else if !fd.Allowed {
			return nil, errs.ErrRateLimited
		}
		return nil, errs.ErrUnauthorized
	}

	if err := s.lim.RecordSuccess(ctx, key); err != nil {
		s.log.Warn("reset login limiter", zap.String("username", username), zap.Error(err))
	}
	return u, nil
}

// Account returns the profile of the given user.
func (s *AccountService) Account(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateAccount changes username and display name.
func (s *AccountService) UpdateAccount(ctx context.Context, id uuid.UUID, username, displayName string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("empty username: %w", errs.ErrValidation)
	}
	return s.users.UpdateProfile(ctx, id, username, strings.TrimSpace(displayName))
}

// ChangePassword replaces the password after verifying the current one.
// Every existing session of the user is revoked; the returned user carries the
// new session generation.
func (s *AccountService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) (*model.User, error) {
	if len(next) < MinPasswordLen {
		return nil, fmt.Errorf("password shorter than %d: %w", MinPasswordLen, errs.ErrValidation)
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.verify([]byte(current), u.SaltAuth, u.PwdHash) {
		return nil, fmt.Errorf("current password: %w", errs.ErrUnauthorized)
	}
	hash, salt, err := pkgcrypto.NewPasswordHash([]byte(next))
	if err != nil {
		return nil, err
	}
	return s.users.SetPassword(ctx, id, hash, salt)
}

// Logout revokes every session of the user.
func (s *AccountService) Logout(ctx context.Context, id uuid.UUID) error {
	_, err := s.users.BumpSessionGeneration(ctx, id)
	return err
}
