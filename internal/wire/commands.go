package wire

import (
	"fmt"
	"slices"
)

type Command uint16

const (
	CmdLoginReq      Command = 0x1001
	CmdLoginResp     Command = 0x1002
	CmdHeartbeatReq  Command = 0x1003
	CmdHeartbeatResp Command = 0x1004
	CmdLogoutReq     Command = 0x1005
	// CmdLogoutResp doubles as the kick notification.
	CmdLogoutResp Command = 0x1006

	CmdMsgSendReq    Command = 0x2001
	CmdMsgSendResp   Command = 0x2002
	CmdMsgPushNotify Command = 0x2003
	CmdMsgSyncReq    Command = 0x2004
	CmdMsgSyncResp   Command = 0x2005

	CmdFriendApplyReq   Command = 0x3001
	CmdFriendApplyResp  Command = 0x3002
	CmdFriendHandleReq  Command = 0x3003
	CmdFriendHandleResp Command = 0x3004
	CmdFriendListReq    Command = 0x3005
	CmdFriendListResp   Command = 0x3006
	CmdFriendDeleteReq  Command = 0x3007
	CmdFriendDeleteResp Command = 0x3008

	CmdGroupCreateReq  Command = 0x4001
	CmdGroupCreateResp Command = 0x4002
	CmdGroupJoinReq    Command = 0x4003
	CmdGroupJoinResp   Command = 0x4004
	CmdGroupListReq    Command = 0x4005
	CmdGroupListResp   Command = 0x4006
	CmdGroupApplyReq   Command = 0x4007
	CmdGroupApplyResp  Command = 0x4008
	CmdGroupHandleReq  Command = 0x4009
	CmdGroupHandleResp Command = 0x4010
	CmdGroupQuitReq    Command = 0x4011
	CmdGroupQuitResp   Command = 0x4012
)

// CmdKickNotify is the same wire command as CmdLogoutResp.
const CmdKickNotify = CmdLogoutResp

var commandNames = map[Command]string{
	CmdLoginReq:         "login_req",
	CmdLoginResp:        "login_resp",
	CmdHeartbeatReq:     "heartbeat_req",
	CmdHeartbeatResp:    "heartbeat_resp",
	CmdLogoutReq:        "logout_req",
	CmdLogoutResp:       "logout_resp",
	CmdMsgSendReq:       "msg_send_req",
	CmdMsgSendResp:      "msg_send_resp",
	CmdMsgPushNotify:    "msg_push_notify",
	CmdMsgSyncReq:       "msg_sync_req",
	CmdMsgSyncResp:      "msg_sync_resp",
	CmdFriendApplyReq:   "friend_apply_req",
	CmdFriendApplyResp:  "friend_apply_resp",
	CmdFriendHandleReq:  "friend_handle_req",
	CmdFriendHandleResp: "friend_handle_resp",
	CmdFriendListReq:    "friend_list_req",
	CmdFriendListResp:   "friend_list_resp",
	CmdFriendDeleteReq:  "friend_delete_req",
	CmdFriendDeleteResp: "friend_delete_resp",
	CmdGroupCreateReq:   "group_create_req",
	CmdGroupCreateResp:  "group_create_resp",
	CmdGroupJoinReq:     "group_join_req",
	CmdGroupJoinResp:    "group_join_resp",
	CmdGroupListReq:     "group_list_req",
	CmdGroupListResp:    "group_list_resp",
	CmdGroupApplyReq:    "group_apply_req",
	CmdGroupApplyResp:   "group_apply_resp",
	CmdGroupHandleReq:   "group_handle_req",
	CmdGroupHandleResp:  "group_handle_resp",
	CmdGroupQuitReq:     "group_quit_req",
	CmdGroupQuitResp:    "group_quit_resp",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cmd(0x%04x)", uint16(c))
}

func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// Commands lists every known command in ascending order.
func Commands() []Command {
	out := make([]Command, 0, len(commandNames))
	for c := range commandNames {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
