package application

import (
	"fmt"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/wire"
)

// The operations below are fire-and-forget: they return false without
// sending anything unless the session is online.

func (s *Session) requestSync() bool {
	return s.whenOnline(func(h *handle) error {
		s.sync(h)
		return nil
	})
}

func (s *Session) sendMessage(to domain.UserID, content string) bool {
	return s.whenOnline(func(h *handle) error {
		req := wire.MsgSendReq{SenderID: uint64(s.id), ReceiverID: uint64(to), Type: uint32(domain.MessageTypeText), Content: content}
		if err := s.send(h, wire.CmdMsgSendReq, req); err != nil {
			return err
		}
		s.log(domain.LogTx, fmt.Sprintf("To %s: %s", to, content))
		return nil
	})
}

func (s *Session) sendGroupMessage(groupID uint64, content string) bool {
	return s.whenOnline(func(h *handle) error {
		req := wire.MsgSendReq{SenderID: uint64(s.id), GroupID: groupID, Type: uint32(domain.MessageTypeText), Content: content}
		if err := s.send(h, wire.CmdMsgSendReq, req); err != nil {
			return err
		}
		s.log(domain.LogTx, fmt.Sprintf("To Group %d: %s", groupID, content))
		return nil
	})
}

func (s *Session) applyFriend(friend domain.UserID, reason string) bool {
	return s.request(wire.CmdFriendApplyReq, wire.FriendApplyReq{UserID: uint64(s.id), FriendID: uint64(friend), Reason: reason},
		fmt.Sprintf("Friend request to %s", friend))
}

func (s *Session) handleFriend(requester domain.UserID, accept bool) bool {
	verb := "Rejected"
	if accept {
		verb = "Accepted"
	}
	return s.request(wire.CmdFriendHandleReq, wire.FriendHandleReq{UserID: uint64(s.id), RequesterID: uint64(requester), Accept: accept},
		fmt.Sprintf("%s friend %s", verb, requester))
}

func (s *Session) deleteFriend(friend domain.UserID) bool {
	return s.request(wire.CmdFriendDeleteReq, wire.FriendDeleteReq{UserID: uint64(s.id), FriendID: uint64(friend)},
		fmt.Sprintf("Deleting friend %s", friend))
}

func (s *Session) friendList() bool {
	return s.request(wire.CmdFriendListReq, wire.FriendListReq{UserID: uint64(s.id)}, "Requesting friend list")
}

func (s *Session) createGroup(name string) bool {
	return s.request(wire.CmdGroupCreateReq, wire.GroupCreateReq{GroupName: name, OwnerID: uint64(s.id)},
		fmt.Sprintf("Creating group '%s'", name))
}

func (s *Session) joinGroup(groupID uint64) bool {
	return s.request(wire.CmdGroupJoinReq, wire.GroupJoinReq{GroupID: groupID, UserID: uint64(s.id)},
		fmt.Sprintf("Joining group %d", groupID))
}

func (s *Session) applyGroup(groupID uint64, reason string) bool {
	return s.request(wire.CmdGroupApplyReq, wire.GroupApplyReq{UserID: uint64(s.id), GroupID: groupID, Reason: reason},
		fmt.Sprintf("Applying to group %d", groupID))
}

func (s *Session) handleGroup(groupID uint64, requester domain.UserID, accept bool) bool {
	verb := "Rejecting"
	if accept {
		verb = "Approving"
	}
	req := wire.GroupHandleReq{UserID: uint64(s.id), RequesterID: uint64(requester), GroupID: groupID, Accept: accept}
	return s.request(wire.CmdGroupHandleReq, req, fmt.Sprintf("%s %s for group %d", verb, requester, groupID))
}

func (s *Session) quitGroup(groupID uint64) bool {
	return s.request(wire.CmdGroupQuitReq, wire.GroupQuitReq{UserID: uint64(s.id), GroupID: groupID},
		fmt.Sprintf("Quitting group %d", groupID))
}

func (s *Session) groupList() bool {
	return s.request(wire.CmdGroupListReq, wire.GroupListReq{UserID: uint64(s.id)}, "Requesting group list")
}

func (s *Session) logout() bool {
	return s.whenOnline(func(h *handle) error {
		s.mu.Lock()
		s.logoutPending = true
		deviceID := s.creds.DeviceID
		s.mu.Unlock()

		if err := s.send(h, wire.CmdLogoutReq, wire.LogoutReq{UserID: uint64(s.id), DeviceID: deviceID}); err != nil {
			s.mu.Lock()
			s.logoutPending = false
			s.mu.Unlock()
			return err
		}
		s.log(domain.LogTx, "Logging out")
		return nil
	})
}

func (s *Session) request(cmd wire.Command, msg any, text string) bool {
	return s.whenOnline(func(h *handle) error {
		if err := s.send(h, cmd, msg); err != nil {
			return err
		}
		s.log(domain.LogTx, text)
		return nil
	})
}
