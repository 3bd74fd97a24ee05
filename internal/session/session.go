package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoSession = errors.New("no session")
	ErrExpired   = errors.New("session expired")
)

type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Session struct {
	ID          string        `json:"id"`
	User        Identity      `json:"user"`
	AccessToken string        `json:"accessToken"`
	IssuedAt    time.Time     `json:"issuedAt"`
	MaxAge      time.Duration `json:"maxAge"`
}

func (s Session) ExpiresAt() time.Time {
	return s.IssuedAt.Add(s.MaxAge)
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

type contextKey struct{}

// WithSession returns a context carrying s. Only the auth middleware and the
// credential exchange should call it; everything else reads via FromContext.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
