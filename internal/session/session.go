// Package session signs and resolves HS256 session cookies.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/model"
)

// DefaultCookieName is used when Config.CookieName is empty.
const DefaultCookieName = "session"

const issuer = "songbook"

// Config controls the session cookie.
type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
	SignKey    []byte
	// Generations, when set, revokes tokens signed before the user's last
	// logout or password change.
	Generations GenerationSource
	// Now defaults to time.Now.
	Now func() time.Time
}

// GenerationSource reports the current session generation of a user.
type GenerationSource interface {
	SessionGeneration(ctx context.Context, id uuid.UUID) (int64, error)
}

type claims struct {
	jwt.RegisteredClaims
	Username   string `json:"username"`
	Generation int64  `json:"gen"`
}

// Provider issues session cookies and resolves identities from them.
type Provider struct {
	cfg Config
	now func() time.Time
}

// NewProvider constructs a Provider; the signing key is required.
func NewProvider(cfg Config) (*Provider, error) {
	if len(cfg.SignKey) == 0 {
		return nil, errors.New("session: empty signing key")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{cfg: cfg, now: now}, nil
}

// Sign creates a signed token for the user without touching any response.
func (p *Provider) Sign(u model.User) (model.Session, error) {
	now := p.now()
	exp := now.Add(p.cfg.TTL)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username:   u.Username,
		Generation: u.SessionGen,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.cfg.SignKey)
	if err != nil {
		return model.Session{}, fmt.Errorf("sign session: %w", err)
	}
	return model.Session{Token: signed, ExpiresAt: exp}, nil
}

// Issue signs a session for u and sets it as an HttpOnly cookie.
func (p *Provider) Issue(w http.ResponseWriter, u model.User) (model.Session, error) {
	s, err := p.Sign(u)
	if err != nil {
		return model.Session{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.cfg.CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(p.cfg.TTL / time.Second),
		HttpOnly: true,
		Secure:   p.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s, nil
}

// Clear expires the session cookie.
func (p *Provider) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   p.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Resolve reads the session cookie and returns the caller identity.
// Any missing, malformed, expired or revoked session yields errs.ErrUnauthorized.
// Other errors come from the generation lookup.
func (p *Provider) Resolve(r *http.Request) (model.Identity, error) {
	c, err := r.Cookie(p.cfg.CookieName)
	if err != nil || c.Value == "" {
		return model.Identity{}, fmt.Errorf("no session cookie: %w", errs.ErrUnauthorized)
	}
	id, err := p.Parse(c.Value)
	if err != nil {
		return model.Identity{}, err
	}
	if p.cfg.Generations == nil {
		return id, nil
	}
	gen, err := p.cfg.Generations.SessionGeneration(r.Context(), id.UserID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Identity{}, fmt.Errorf("user gone: %w", errs.ErrUnauthorized)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("session generation: %w", err)
	}
	if gen != id.Generation {
		return model.Identity{}, fmt.Errorf("session revoked: %w", errs.ErrUnauthorized)
	}
	return id, nil
}

// Parse validates a raw session token. Expiry is exact; there is no leeway.
func (p *Provider) Parse(token string) (model.Identity, error) {
	var cl claims
	parsed, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return p.cfg.SignKey, nil
	},
		jwt.WithTimeFunc(p.now),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return model.Identity{}, fmt.Errorf("invalid session: %w", errs.ErrUnauthorized)
	}

	id, err := uuid.FromString(cl.Subject)
	if err != nil {
		return model.Identity{}, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	return model.Identity{
		UserID:     id,
		Username:   cl.Username,
		Generation: cl.Generation,
		ExpiresAt:  cl.ExpiresAt.Time,
	}, nil
}
