package wire

import "strings"

type LoginReq struct {
	Username   string `im:"1"`
	Password   string `im:"2"`
	DeviceID   string `im:"3"`
	DeviceType uint32 `im:"4"`
}

type LoginResp struct {
	UserID       uint64 `im:"1"`
	Token        string `im:"2"`
	Nickname     string `im:"3"`
	Success      bool   `im:"4"`
	ErrorMessage string `im:"5"`
}

type LogoutReq struct {
	UserID   uint64 `im:"1"`
	DeviceID string `im:"2"`
}

// KickNotify is carried by CmdKickNotify. The gateway writes the reason as
// raw text rather than as tagged fields.
type KickNotify struct {
	Reason string
}

func DecodeKickNotify(body []byte) KickNotify {
	return KickNotify{Reason: strings.TrimSpace(string(body))}
}

func EncodeKickNotify(reason string) []byte {
	return EncodeFrame(CmdKickNotify, []byte(reason))
}

type HeartbeatReq struct{}

type HeartbeatResp struct {
	ServerTime uint64 `im:"1"`
	MaxSeqID   uint64 `im:"2"`
}

type MsgSendReq struct {
	SenderID   uint64 `im:"1"`
	ReceiverID uint64 `im:"2"`
	GroupID    uint64 `im:"3"`
	Type       uint32 `im:"4"`
	Content    string `im:"5"`
}

type MsgSendResp struct {
	MsgID        uint64 `im:"1"`
	SeqID        uint64 `im:"2"`
	Success      bool   `im:"3"`
	ErrorMessage string `im:"4"`
}

type MsgPushNotify struct {
	MsgID uint64 `im:"1"`
	SeqID uint64 `im:"2"`
}

type MsgSyncReq struct {
	UserID   uint64 `im:"1"`
	LocalSeq uint64 `im:"2"`
	Limit    uint32 `im:"3"`
}

type MsgSyncResp struct {
	MaxSeq  uint64        `im:"1"`
	Msgs    []MessageData `im:"2"`
	HasMore bool          `im:"3"`
}

type MessageData struct {
	MsgID      uint64 `im:"1"`
	SeqID      uint64 `im:"2"`
	SenderID   uint64 `im:"3"`
	GroupID    uint64 `im:"4"`
	Type       uint32 `im:"5"`
	Content    string `im:"6"`
	CreatedAt  string `im:"7"`
	ReceiverID uint64 `im:"8"`
}

type FriendApplyReq struct {
	UserID   uint64 `im:"1"`
	FriendID uint64 `im:"2"`
	Reason   string `im:"3"`
}

type FriendApplyResp struct {
	Success      bool   `im:"1"`
	ErrorMessage string `im:"2"`
	ApplyID      uint64 `im:"3"`
}

type FriendHandleReq struct {
	UserID      uint64 `im:"1"`
	ApplyID     uint64 `im:"2"`
	RequesterID uint64 `im:"3"`
	Accept      bool   `im:"4"`
}

type FriendDeleteReq struct {
	UserID   uint64 `im:"1"`
	FriendID uint64 `im:"2"`
}

type FriendListReq struct {
	UserID uint64 `im:"1"`
}

type Friend struct {
	UserID   uint64 `im:"1"`
	Nickname string `im:"2"`
}

type FriendListResp struct {
	Success bool     `im:"1"`
	Friends []Friend `im:"2"`
}

type GroupCreateReq struct {
	GroupName string `im:"1"`
	OwnerID   uint64 `im:"2"`
}

type GroupCreateResp struct {
	Success      bool   `im:"1"`
	ErrorMessage string `im:"2"`
	GroupID      uint64 `im:"3"`
}

type GroupJoinReq struct {
	GroupID uint64 `im:"1"`
	UserID  uint64 `im:"2"`
}

type GroupApplyReq struct {
	UserID  uint64 `im:"1"`
	GroupID uint64 `im:"2"`
	Reason  string `im:"3"`
}

type GroupHandleReq struct {
	UserID      uint64 `im:"1"`
	ApplyID     uint64 `im:"2"`
	RequesterID uint64 `im:"3"`
	GroupID     uint64 `im:"4"`
	Accept      bool   `im:"5"`
}

type GroupQuitReq struct {
	UserID  uint64 `im:"1"`
	GroupID uint64 `im:"2"`
}

type GroupListReq struct {
	UserID uint64 `im:"1"`
}

type Group struct {
	GroupID   uint64 `im:"1"`
	GroupName string `im:"2"`
	OwnerID   uint64 `im:"3"`
}

type GroupListResp struct {
	Success bool    `im:"1"`
	Groups  []Group `im:"2"`
}

// Result is the shape shared by the plain acknowledgement responses.
type Result struct {
	Success      bool   `im:"1"`
	ErrorMessage string `im:"2"`
}
