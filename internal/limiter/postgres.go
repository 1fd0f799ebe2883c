package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps limiter state in the auth_limiter table.
type PG struct {
	q      Querier
	policy Policy
	now    func() time.Time
}

// NewPG constructs a PostgreSQL-backed limiter. Zero policy fields fall back to DefaultPolicy.
func NewPG(q Querier, p Policy) *PG {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxFails <= 0 {
		p.MaxFails = DefaultPolicy.MaxFails
	}
	if p.BlockFor <= 0 {
		p.BlockFor = DefaultPolicy.BlockFor
	}
	return &PG{q: q, policy: p, now: time.Now}
}

// Check reports whether k is currently blocked.
func (l *PG) Check(ctx context.Context, k Key) (Decision, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, k.Username, k.ClientHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Decision{Allowed: true}, nil
	case err != nil:
		return Decision{}, fmt.Errorf("limiter check: %w", err)
	}
	if now := l.now(); blockedUntil.After(now) {
		return Decision{RetryAfter: blockedUntil.Sub(now)}, nil
	}
	return Decision{Allowed: true}, nil
}

// RecordSuccess resets counters for k.
func (l *PG) RecordSuccess(ctx context.Context, k Key) error {
	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', now())
ON CONFLICT (username, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	if _, err := l.q.Exec(ctx, q, k.Username, k.ClientHash); err != nil {
		return fmt.Errorf("limiter reset: %w", err)
	}
	return nil
}

// RecordFailure bumps the failure counter, restarting it when the previous
// failure is older than the window, and blocks once MaxFails is reached.
func (l *PG) RecordFailure(ctx context.Context, k Key) (Decision, error) {
	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (username, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN EXCLUDED.updated_at - auth_limiter.updated_at > $3::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, k.Username, k.ClientHash, l.policy.Window).Scan(&fails); err != nil {
		return Decision{}, fmt.Errorf("limiter failure: %w", err)
	}
	if fails < l.policy.MaxFails {
		return Decision{Allowed: true}, nil
	}

	until := l.now().Add(l.policy.BlockFor)
	const upd = `UPDATE auth_limiter SET blocked_until=$3 WHERE username=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, upd, k.Username, k.ClientHash, until); err != nil {
		return Decision{}, fmt.Errorf("limiter block: %w", err)
	}
	return Decision{RetryAfter: l.policy.BlockFor}, nil
}
