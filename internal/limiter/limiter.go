// Package limiter throttles password attempts per (username, client) pair.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"
)

// Key identifies the pair being throttled. ClientHash is a digest of the
// client address so raw IPs are never persisted.
type Key struct {
	Username   string
	ClientHash []byte
}

// KeyFor builds a Key from a username and a request remote address.
// The port part of remoteAddr, if any, is ignored.
func KeyFor(username, remoteAddr string) Key {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(host))
	return Key{Username: username, ClientHash: sum[:]}
}

// Decision is the outcome of a check. RetryAfter is set only when blocked.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Policy configures the sliding window and lockout.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows five failures in fifteen minutes before a fifteen minute block.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Check reports whether an attempt may proceed now.
	Check(ctx context.Context, k Key) (Decision, error)
	// RecordSuccess resets the counters for k.
	RecordSuccess(ctx context.Context, k Key) error
	// RecordFailure counts a failed attempt and may start a block.
	RecordFailure(ctx context.Context, k Key) (Decision, error)
}
