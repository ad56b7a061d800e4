package status

import (
	"slices"
	"sync"

	"github.com/bnema/imsim/internal/domain"
)

// Snapshots is a registry observer that keeps the newest session table so it
// can be summarized or drawn while a long operation is still running.
type Snapshots struct {
	mu     sync.Mutex
	latest []domain.SessionStatus
	seen   int
}

func (s *Snapshots) Notify(sessions []domain.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = slices.Clone(sessions)
	s.seen++
}

func (s *Snapshots) Latest() []domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.latest)
}

// Notifications counts the snapshots received so far.
func (s *Snapshots) Notifications() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// Summary is the one-line status count of the newest snapshot, empty before
// the first notification.
func (s *Snapshots) Summary() string {
	latest := s.Latest()
	if len(latest) == 0 {
		return ""
	}
	return summaryLine(latest)
}

// Render draws the newest snapshot.
func (s *Snapshots) Render(opts RenderOptions) (string, error) {
	return renderOnce(s.Latest, opts)
}
