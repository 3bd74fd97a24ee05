package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName    = "staffsuite_session"
	DefaultMaxAge = 24 * time.Hour
)

var ErrWeakSecret = errors.New("session secret must be at least 32 bytes")

type ManagerConfig struct {
	Secret       string
	MaxAge       time.Duration
	Store        Store
	SecureCookie bool
}

// Manager issues and resolves sessions. The browser only ever holds a signed
// token naming the session; the remote bearer token stays in Store.
type Manager struct {
	secret  []byte
	maxAge  time.Duration
	store   Store
	secure  bool
	nowFunc func() time.Time
}

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrWeakSecret
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Manager{
		secret:  []byte(cfg.Secret),
		maxAge:  maxAge,
		store:   cfg.Store,
		secure:  cfg.SecureCookie,
		nowFunc: time.Now,
	}, nil
}

func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

func (m *Manager) Issue(ctx context.Context, user Identity, accessToken string) (Session, string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Session{}, "", fmt.Errorf("access token is required")
	}
	now := m.nowFunc().UTC().Truncate(time.Second)
	s := Session{
		ID:          uuid.NewString(),
		User:        user,
		AccessToken: accessToken,
		IssuedAt:    now,
		MaxAge:      m.maxAge,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt()),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Session{}, "", fmt.Errorf("sign session token: %w", err)
	}
	if err := m.store.Save(ctx, s); err != nil {
		return Session{}, "", fmt.Errorf("save session: %w", err)
	}
	return s, signed, nil
}

func (m *Manager) Resolve(ctx context.Context, signed string) (Session, error) {
	signed = strings.TrimSpace(signed)
	if signed == "" {
		return Session{}, ErrNoSession
	}

	parsed := &claims{}
	token, err := jwt.ParseWithClaims(signed, parsed, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpired
		}
		return Session{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if !token.Valid || parsed.ID == "" {
		return Session{}, ErrNoSession
	}

	s, err := m.store.Load(ctx, parsed.ID)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(m.nowFunc()) {
		_ = m.store.Delete(ctx, s.ID)
		return Session{}, ErrExpired
	}
	return s, nil
}

func (m *Manager) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, id)
}

func (m *Manager) CookieValue(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (m *Manager) SetCookie(w http.ResponseWriter, signed string, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  s.ExpiresAt(),
		MaxAge:   int(s.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CSRFToken binds form submissions to the session that rendered them.
func (m *Manager) CSRFToken(s Session) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte("csrf:" + s.ID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *Manager) ValidCSRF(s Session, token string) bool {
	expected := m.CSRFToken(s)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(token)))
}
