package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/imsim/internal/domain"
)

// Fire-and-forget operations. Each returns whether a frame was sent; callers
// that need the outcome read the session log.

func (r *Registry) Sync(id domain.UserID) bool {
	return r.withSession(id, func(s *Session) bool { return s.requestSync() })
}

func (r *Registry) SendMessage(from, to domain.UserID, content string) bool {
	return r.withSession(from, func(s *Session) bool { return s.sendMessage(to, content) })
}

func (r *Registry) SendGroupMessage(from domain.UserID, groupID uint64, content string) bool {
	return r.withSession(from, func(s *Session) bool { return s.sendGroupMessage(groupID, content) })
}

// SendAll makes every online session except target send content to target.
// It returns the number of messages sent.
func (r *Registry) SendAll(target domain.UserID, content string) int {
	r.mu.RLock()
	senders := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		if id != target {
			senders = append(senders, r.sessions[id])
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, s := range senders {
		if s.sendMessage(target, content) {
			sent++
		}
	}
	if sent > 0 {
		r.notify()
	}
	return sent
}

func (r *Registry) ApplyFriend(from, to domain.UserID, reason string) bool {
	return r.withSession(from, func(s *Session) bool { return s.applyFriend(to, reason) })
}

func (r *Registry) HandleFriend(id, requester domain.UserID, accept bool) bool {
	return r.withSession(id, func(s *Session) bool { return s.handleFriend(requester, accept) })
}

func (r *Registry) DeleteFriend(id, friend domain.UserID) bool {
	return r.withSession(id, func(s *Session) bool { return s.deleteFriend(friend) })
}

// MakeFriends sends a request from a to b, waits FriendAcceptDelay, then has
// b accept it.
func (r *Registry) MakeFriends(ctx context.Context, a, b domain.UserID) error {
	r.ApplyFriend(a, b, "Let's test")

	if delay := r.cfg.FriendAcceptDelay; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("make friends %s and %s: %w", a, b, ctx.Err())
		case <-timer.C:
		}
	}

	r.HandleFriend(b, a, true)
	return nil
}

func (r *Registry) FriendList(id domain.UserID) bool {
	return r.withSession(id, func(s *Session) bool { return s.friendList() })
}

func (r *Registry) CreateGroup(owner domain.UserID, name string) bool {
	return r.withSession(owner, func(s *Session) bool { return s.createGroup(name) })
}

func (r *Registry) JoinGroup(id domain.UserID, groupID uint64) bool {
	return r.withSession(id, func(s *Session) bool { return s.joinGroup(groupID) })
}

func (r *Registry) ApplyGroup(id domain.UserID, groupID uint64, reason string) bool {
	return r.withSession(id, func(s *Session) bool { return s.applyGroup(groupID, reason) })
}

func (r *Registry) HandleGroup(owner domain.UserID, groupID uint64, requester domain.UserID, accept bool) bool {
	return r.withSession(owner, func(s *Session) bool { return s.handleGroup(groupID, requester, accept) })
}

func (r *Registry) QuitGroup(id domain.UserID, groupID uint64) bool {
	return r.withSession(id, func(s *Session) bool { return s.quitGroup(groupID) })
}

func (r *Registry) GroupList(id domain.UserID) bool {
	return r.withSession(id, func(s *Session) bool { return s.groupList() })
}

func (r *Registry) Logout(id domain.UserID) bool {
	return r.withSession(id, func(s *Session) bool { return s.logout() })
}

func (r *Registry) withSession(id domain.UserID, fn func(s *Session) bool) bool {
	s, ok := r.lookup(id)
	if !ok {
		return false
	}
	sent := fn(s)
	if sent {
		r.notify()
	}
	return sent
}
