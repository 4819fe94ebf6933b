// Package session stores active sessions keyed by token hash, with Redis and
// in-memory backends.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found or expired")

// Session is the server-side record behind one bearer token. Bloc is set for
// delegates at login; SelectedBloc tracks the chair's current review target
// and changes as they move between blocs.
type Session struct {
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	Committee    string    `json:"committee"`
	Bloc         string    `json:"bloc,omitempty"`
	SelectedBloc string    `json:"selected_bloc,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ActiveBloc returns the bloc this session currently operates on: the chair's
// selection when present, the delegate's own bloc otherwise. Empty means no
// active bloc.
func (s Session) ActiveBloc() string {
	if s.SelectedBloc != "" {
		return s.SelectedBloc
	}
	return s.Bloc
}

// Registry is the session storage backend. Save overwrites, so updating a
// session (chair selecting a bloc) is a lookup, mutate, save cycle.
type Registry interface {
	Save(ctx context.Context, tokenHash string, sess Session) error
	Lookup(ctx context.Context, tokenHash string) (Session, error)
	Revoke(ctx context.Context, tokenHash string) error
}
