// Package csrf issues and validates double-submit anti-forgery tokens.
//
// A token is 32 random bytes, hex-encoded, stored in a cookie and echoed by the
// client in a request header on state-changing requests.
package csrf

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/songbook/internal/crypto"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultCookieName = "csrf_token"
	DefaultHeaderName = "X-CSRF-Token"
	DefaultTTL        = time.Hour

	tokenBytes = 32
)

// Config holds cookie attributes and the header the client echoes the token in.
type Config struct {
	CookieName string
	HeaderName string
	Path       string
	TTL        time.Duration
	HTTPOnly   bool
	Secure     bool
	SameSite   http.SameSite
}

// Manager issues tokens into cookies and checks requests against them.
type Manager struct {
	cfg Config
	now func() time.Time
}

// New returns a Manager with defaults filled in.
func New(cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteStrictMode
	}
	return &Manager{cfg: cfg, now: time.Now}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// IssueOption adjusts a single Issue call.
type IssueOption func(*http.Cookie)

// WithHTTPOnly overrides the configured HttpOnly flag for one cookie.
func WithHTTPOnly(v bool) IssueOption {
	return func(c *http.Cookie) { c.HttpOnly = v }
}

// Issue generates a fresh token, sets it as a cookie and returns it.
func (m *Manager) Issue(w http.ResponseWriter, opts ...IssueOption) (string, error) {
	token, err := crypto.RandHex(tokenBytes)
	if err != nil {
		return "", err
	}
	c := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     m.cfg.Path,
		Expires:  m.now().Add(m.cfg.TTL),
		MaxAge:   int(m.cfg.TTL / time.Second),
		HttpOnly: m.cfg.HTTPOnly,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
	}
	for _, o := range opts {
		o(c)
	}
	http.SetCookie(w, c)
	return token, nil
}

// Clear expires the token cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     m.cfg.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: m.cfg.HTTPOnly,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
	})
}

// Verify reports whether r carries a header token matching its cookie token.
func (m *Manager) Verify(r *http.Request) bool {
	var cookieVal string
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		cookieVal = c.Value
	}
	return ValidateToken(cookieVal, r.Header.Get(m.cfg.HeaderName))
}

// ValidateToken fails closed on absent or blank values and otherwise compares
// in constant time. Only the length is observable through timing.
func ValidateToken(cookieValue, headerValue string) bool {
	if strings.TrimSpace(cookieValue) == "" || strings.TrimSpace(headerValue) == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) == 1
}
