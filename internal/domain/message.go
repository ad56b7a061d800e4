package domain

import "fmt"

type MessageType uint32

const (
	MessageTypeUnknown   MessageType = 0
	MessageTypeText      MessageType = 1
	MessageTypeImage     MessageType = 2
	MessageTypeFriendReq MessageType = 3
	MessageTypeSystem    MessageType = 4
)

type Message struct {
	MsgID      uint64
	SeqID      uint64
	SenderID   UserID
	ReceiverID UserID
	GroupID    uint64
	Type       MessageType
	Content    string
	CreatedAt  string
}

// Summary is the line written to a session's activity log for a synced message.
func (m Message) Summary() string {
	content := m.Content
	if content == "" {
		content = fmt.Sprintf("(type %d)", m.Type)
	}
	if m.GroupID != 0 {
		return fmt.Sprintf("From %s in group %d: %s", m.SenderID, m.GroupID, content)
	}
	return fmt.Sprintf("From %s: %s", m.SenderID, content)
}
