package application

import (
	"fmt"

	"github.com/bnema/imsim/internal/domain"
)

// Snapshot returns every session in insertion order.
func (r *Registry) Snapshot() []domain.SessionStatus {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.sessions[id])
	}
	r.mu.RUnlock()

	out := make([]domain.SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot())
	}
	return out
}

func (r *Registry) Session(id domain.UserID) (domain.SessionStatus, error) {
	s, ok := r.lookup(id)
	if !ok {
		return domain.SessionStatus{}, fmt.Errorf("get session %s: %w", id, domain.ErrSessionNotFound)
	}
	return s.snapshot(), nil
}

func (r *Registry) StatusOf(id domain.UserID) (domain.Status, bool) {
	s, ok := r.lookup(id)
	if !ok {
		return "", false
	}
	return s.currentStatus(), true
}

// HasLog reports whether the user's activity log contains pattern.
func (r *Registry) HasLog(id domain.UserID, pattern string) bool {
	s, ok := r.lookup(id)
	return ok && s.hasLog(pattern)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
