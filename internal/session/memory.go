package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is the in-process fallback used when no REDIS_URL is
// configured. Sessions do not survive a restart.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]Session)}
}

func (r *MemoryRegistry) Save(ctx context.Context, tokenHash string, sess Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[tokenHash] = sess
	return nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, tokenHash string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[tokenHash]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		delete(r.sessions, tokenHash)
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tokenHash)
	return nil
}
