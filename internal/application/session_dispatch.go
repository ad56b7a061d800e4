package application

import (
	"fmt"
	"strings"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/wire"
)

func decode[T any](body []byte) (T, error) {
	var msg T
	err := wire.Unmarshal(body, &msg)
	return msg, err
}

func (s *Session) dispatch(h *handle, cmd wire.Command, body []byte) error {
	switch cmd {
	case wire.CmdLoginResp:
		resp, err := decode[wire.LoginResp](body)
		if err != nil {
			return err
		}
		s.onLoginResp(h, resp)
	case wire.CmdLogoutResp:
		s.onLogoutOrKick(h, wire.DecodeKickNotify(body))
	case wire.CmdHeartbeatResp:
		resp, err := decode[wire.HeartbeatResp](body)
		if err != nil {
			return err
		}
		s.onHeartbeatResp(h, resp)
	case wire.CmdMsgSendResp:
		resp, err := decode[wire.MsgSendResp](body)
		if err != nil {
			return err
		}
		if resp.Success {
			s.log(domain.LogRx, fmt.Sprintf("Ack Msg (seq=%d, msg=%d)", resp.SeqID, resp.MsgID))
		} else {
			s.failure("Ack Failed", resp.ErrorMessage)
		}
	case wire.CmdMsgPushNotify:
		s.log(domain.LogRx, "New Message Received! Syncing...")
		s.sync(h)
	case wire.CmdMsgSyncResp:
		resp, err := decode[wire.MsgSyncResp](body)
		if err != nil {
			return err
		}
		s.onSyncResp(h, resp)
	case wire.CmdFriendApplyResp:
		resp, err := decode[wire.FriendApplyResp](body)
		if err != nil {
			return err
		}
		if resp.Success {
			s.log(domain.LogRx, fmt.Sprintf("Friend Req Sent (apply=%d)", resp.ApplyID))
		} else {
			s.failure("Friend Req Failed", resp.ErrorMessage)
		}
	case wire.CmdFriendHandleResp:
		return s.logResult(body, "Friend Req Handled", "Friend Handle Failed")
	case wire.CmdFriendDeleteResp:
		return s.logResult(body, "Friend Deleted", "Friend Delete Failed")
	case wire.CmdFriendListResp:
		resp, err := decode[wire.FriendListResp](body)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(resp.Friends))
		for _, f := range resp.Friends {
			names = append(names, strings.TrimSpace(fmt.Sprintf("%d %s", f.UserID, f.Nickname)))
		}
		s.log(domain.LogRx, fmt.Sprintf("Friends (%d): %s", len(names), strings.Join(names, ", ")))
	case wire.CmdGroupCreateResp:
		resp, err := decode[wire.GroupCreateResp](body)
		if err != nil {
			return err
		}
		if !resp.Success {
			s.failure("Group Create Failed", resp.ErrorMessage)
			return nil
		}
		s.mu.Lock()
		s.lastGroupID = resp.GroupID
		s.mu.Unlock()
		s.log(domain.LogRx, fmt.Sprintf("Group Created! (id=%d)", resp.GroupID))
	case wire.CmdGroupJoinResp:
		return s.logResult(body, "Joined Group", "Join Group Failed")
	case wire.CmdGroupApplyResp:
		return s.logResult(body, "Group Apply Sent", "Group Apply Failed")
	case wire.CmdGroupHandleResp:
		return s.logResult(body, "Group Apply Handled", "Group Handle Failed")
	case wire.CmdGroupQuitResp:
		return s.logResult(body, "Quit Group", "Quit Group Failed")
	case wire.CmdGroupListResp:
		resp, err := decode[wire.GroupListResp](body)
		if err != nil {
			return err
		}
		groups := make([]string, 0, len(resp.Groups))
		for _, g := range resp.Groups {
			groups = append(groups, fmt.Sprintf("%d %s", g.GroupID, g.GroupName))
		}
		s.log(domain.LogRx, fmt.Sprintf("Groups (%d): %s", len(groups), strings.Join(groups, ", ")))
	default:
		s.log(domain.LogRx, fmt.Sprintf("Cmd: 0x%04x", uint16(cmd)))
	}
	return nil
}

func (s *Session) onLoginResp(h *handle, resp wire.LoginResp) {
	if !resp.Success {
		s.failure("Login Failed", resp.ErrorMessage)
		return
	}

	s.mu.Lock()
	if s.status != domain.StatusHandshaking {
		status := s.status
		s.mu.Unlock()
		s.log(domain.LogWarn, fmt.Sprintf("Login response ignored while %s", status))
		return
	}
	s.setStatusLocked(domain.StatusOnline)
	s.mu.Unlock()

	s.log(domain.LogRx, "Login Success")
	go s.heartbeat(h)
	s.sync(h)
}

// onLogoutOrKick handles the shared 0x1006 frame: a logout response when a
// logout is outstanding, a kick otherwise.
func (s *Session) onLogoutOrKick(h *handle, kick wire.KickNotify) {
	s.mu.Lock()
	if s.logoutPending {
		s.logoutPending = false
		s.setStatusLocked(domain.StatusOffline)
		s.mu.Unlock()
		s.log(domain.LogSys, "Logged out")
		h.close()
		return
	}
	s.setStatusLocked(domain.StatusKicked)
	s.mu.Unlock()

	text := "KICKED by Server"
	if kick.Reason != "" {
		text += ": " + kick.Reason
	}
	s.log(domain.LogErr, text)
	h.close()
}

func (s *Session) onHeartbeatResp(h *handle, resp wire.HeartbeatResp) {
	s.log(domain.LogRx, fmt.Sprintf("Heartbeat Ack (seq=%d)", resp.MaxSeqID))

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	if resp.MaxSeqID > cursor {
		s.log(domain.LogWarn, fmt.Sprintf("Detected missing msgs (Local: %d, Remote: %d). Syncing...", cursor, resp.MaxSeqID))
		s.sync(h)
	}
}

func (s *Session) onSyncResp(h *handle, resp wire.MsgSyncResp) {
	s.mu.Lock()
	if resp.MaxSeq > s.cursor {
		s.cursor = resp.MaxSeq
	}
	s.mu.Unlock()

	if n := len(resp.Msgs); n > 0 {
		s.log(domain.LogRx, fmt.Sprintf("Synced %d new msgs", n))
		for _, m := range resp.Msgs {
			s.log(domain.LogRx, toMessage(m).Summary())
		}
	}
	if resp.HasMore {
		s.sync(h)
	}
}

func (s *Session) logResult(body []byte, okText, failPrefix string) error {
	res, err := decode[wire.Result](body)
	if err != nil {
		return err
	}
	if res.Success {
		s.log(domain.LogRx, okText)
		return nil
	}
	s.failure(failPrefix, res.ErrorMessage)
	return nil
}

// failure records a server-reported rejection. Session state is unchanged.
func (s *Session) failure(prefix, message string) {
	if message == "" {
		message = "Unknown"
	}
	s.log(domain.LogErr, fmt.Sprintf("%s: %s", prefix, message))
	s.deps.logger.Debug("server rejected request", "user", int64(s.id), "err", fmt.Errorf("%s: %w: %s", strings.ToLower(prefix), domain.ErrApplication, message))
}

func toMessage(m wire.MessageData) domain.Message {
	return domain.Message{
		MsgID:      m.MsgID,
		SeqID:      m.SeqID,
		SenderID:   domain.UserID(m.SenderID),
		ReceiverID: domain.UserID(m.ReceiverID),
		GroupID:    m.GroupID,
		Type:       domain.MessageType(m.Type),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}
