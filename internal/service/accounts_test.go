package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	pkgcrypto "github.com/and161185/songbook/internal/crypto"
	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/limiter"
	"github.com/and161185/songbook/internal/model"
)

func seedUser(t *testing.T, users *fakeUsers, name, password string) *model.User {
	t.Helper()
	hash, salt, err := pkgcrypto.NewPasswordHash([]byte(password))
	require.NoError(t, err)
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Username: name, PwdHash: hash, SaltAuth: salt}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestAccounts_Register(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := NewAccountService(users, &fakeLimiter{}, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := s.Register(ctx, " ", "D", "longenough")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.Register(ctx, "alice", "D", "short")
	require.ErrorIs(t, err, errs.ErrValidation)

	u, err := s.Register(ctx, "alice", " Alice ", "longenough")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, u.ID)
	require.Equal(t, "Alice", u.DisplayName)
	require.True(t, pkgcrypto.VerifyPassword([]byte("longenough"), u.SaltAuth, u.PwdHash))

	_, err = s.Register(ctx, "alice", "", "longenough")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestAccounts_Login(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "alice", "correct-horse")
	lim := &fakeLimiter{check: limiter.Decision{Allowed: true}, failure: limiter.Decision{Allowed: true}}
	s := NewAccountService(users, lim, zaptest.NewLogger(t))
	ctx := context.Background()

	lim.checkErr = errors.New("lim-err")
	_, err := s.Login(ctx, "alice", "correct-horse", "1.2.3.4:1")
	require.Error(t, err)
	lim.checkErr = nil

	lim.check = limiter.Decision{RetryAfter: time.Minute}
	_, err = s.Login(ctx, "alice", "correct-horse", "1.2.3.4:1")
	require.ErrorIs(t, err, errs.ErrRateLimited)
	lim.check = limiter.Decision{Allowed: true}

	_, err = s.Login(ctx, "nobody", "x", "1.2.3.4:1")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = s.Login(ctx, "alice", "wrong", "1.2.3.4:1")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, 2, lim.failureCalls)

	lim.failure = limiter.Decision{RetryAfter: time.Minute}
	_, err = s.Login(ctx, "alice", "wrong", "1.2.3.4:1")
	require.ErrorIs(t, err, errs.ErrRateLimited)
	lim.failure = limiter.Decision{Allowed: true}

	got, err := s.Login(ctx, "alice", "correct-horse", "1.2.3.4:1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, 1, lim.successCalls)

	users.getErr = errors.New("db down")
	_, err = s.Login(ctx, "alice", "correct-horse", "1.2.3.4:1")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAccounts_ChangePassword(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "alice", "old-password")
	s := NewAccountService(users, &fakeLimiter{}, nil)
	ctx := context.Background()

	_, err := s.ChangePassword(ctx, u.ID, "old-password", "short")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.ChangePassword(ctx, u.ID, "nope-nope", "new-password")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = s.ChangePassword(ctx, uuid.Must(uuid.NewV4()), "old-password", "new-password")
	require.ErrorIs(t, err, errs.ErrNotFound)

	changed, err := s.ChangePassword(ctx, u.ID, "old-password", "new-password")
	require.NoError(t, err)
	require.Equal(t, u.SessionGen+1, changed.SessionGen)
	stored, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, pkgcrypto.VerifyPassword([]byte("new-password"), stored.SaltAuth, stored.PwdHash))
}

func TestAccounts_LogoutRevokesSessions(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "alice", "pw-pw-pw-pw")
	s := NewAccountService(users, &fakeLimiter{}, nil)
	ctx := context.Background()

	require.NoError(t, s.Logout(ctx, u.ID))
	gen, err := users.SessionGeneration(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.SessionGen+1, gen)

	require.ErrorIs(t, s.Logout(ctx, uuid.Must(uuid.NewV4())), errs.ErrNotFound)
}

func TestAccounts_Login_UnknownUserPaysForHash(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	seedUser(t, users, "alice", "correct-horse")
	lim := &fakeLimiter{check: limiter.Decision{Allowed: true}, failure: limiter.Decision{Allowed: true}}
	s := NewAccountService(users, lim, nil)

	var verified [][]byte
	s.verify = func(password, salt, hash []byte) bool {
		verified = append(verified, salt)
		return pkgcrypto.VerifyPassword(password, salt, hash)
	}

	_, err := s.Login(context.Background(), "ghost", "correct-horse", "1.2.3.4:1")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Len(t, verified, 1)
	require.Equal(t, dummySalt, verified[0])

	_, err = s.Login(context.Background(), "alice", "wrong", "1.2.3.4:1")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Len(t, verified, 2)
	require.Equal(t, 2, lim.failureCalls)
}

func TestAccounts_UpdateAccount(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "alice", "pw-pw-pw-pw")
	seedUser(t, users, "bob", "pw-pw-pw-pw")
	s := NewAccountService(users, &fakeLimiter{}, nil)
	ctx := context.Background()

	_, err := s.UpdateAccount(ctx, u.ID, "", "x")
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.UpdateAccount(ctx, u.ID, "bob", "x")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	got, err := s.UpdateAccount(ctx, u.ID, "alice2", " Alice ")
	require.NoError(t, err)
	require.Equal(t, "alice2", got.Username)
	require.Equal(t, "Alice", got.DisplayName)

	acc, err := s.Account(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice2", acc.Username)
}
