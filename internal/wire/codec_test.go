package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bnema/imsim/internal/domain"
)

func TestLoginReqEncodesUsernameFirst(t *testing.T) {
	t.Parallel()

	body, err := Marshal(LoginReq{Username: "1014", Password: "pass123", DeviceID: "web-42", DeviceType: 3})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(body), 6)
	assert.Equal(t, byte(0x0A), body[0])
	assert.Equal(t, byte(4), body[1])
	assert.Equal(t, "1014", string(body[2:6]))
	assert.Equal(t, byte(0x12), body[6])
	assert.Equal(t, []byte{0x20, 0x03}, body[len(body)-2:])
}

func TestMarshalWritesZeroValues(t *testing.T) {
	t.Parallel()

	body, err := Marshal(&FriendHandleReq{UserID: 5, RequesterID: 6})
	require.NoError(t, err)

	assert.Equal(t, []byte{0x08, 0x05, 0x10, 0x00, 0x18, 0x06, 0x20, 0x00}, body)
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		out  any
	}{
		{name: "login request", in: &LoginReq{Username: "1014", Password: "pass123", DeviceID: "web-1", DeviceType: 3}, out: &LoginReq{}},
		{name: "login response", in: &LoginResp{UserID: 1014, Token: "tok", Nickname: "neo", Success: true, ErrorMessage: "none"}, out: &LoginResp{}},
		{name: "logout request", in: &LogoutReq{UserID: 1014, DeviceID: "pc-7"}, out: &LogoutReq{}},
		{name: "empty heartbeat", in: &HeartbeatReq{}, out: &HeartbeatReq{}},
		{name: "heartbeat response", in: &HeartbeatResp{ServerTime: 1_700_000_000_000, MaxSeqID: 12}, out: &HeartbeatResp{}},
		{name: "message send request", in: &MsgSendReq{SenderID: 1014, ReceiverID: 1015, GroupID: 3, Type: 1, Content: "hello"}, out: &MsgSendReq{}},
		{name: "message send response", in: &MsgSendResp{MsgID: 5, SeqID: 6, Success: true, ErrorMessage: "x"}, out: &MsgSendResp{}},
		{name: "push notify", in: &MsgPushNotify{MsgID: 5, SeqID: 6}, out: &MsgPushNotify{}},
		{name: "sync request", in: &MsgSyncReq{UserID: 1014, LocalSeq: 3, Limit: 50}, out: &MsgSyncReq{}},
		{
			name: "sync response with embedded messages",
			in: &MsgSyncResp{
				MaxSeq: 9,
				Msgs: []MessageData{
					{MsgID: 1, SeqID: 8, SenderID: 1015, Type: 1, Content: "hi", CreatedAt: "2026-01-01", ReceiverID: 1014},
					{MsgID: 2, SeqID: 9, SenderID: 1016, GroupID: 3, Type: 1, Content: "storm"},
				},
				HasMore: true,
			},
			out: &MsgSyncResp{},
		},
		{name: "message data", in: &MessageData{MsgID: 1, SeqID: 2, SenderID: 3, GroupID: 4, Type: 5, Content: "c", CreatedAt: "t", ReceiverID: 6}, out: &MessageData{}},
		{name: "friend apply request", in: &FriendApplyReq{UserID: 1, FriendID: 2, Reason: "hey"}, out: &FriendApplyReq{}},
		{name: "friend apply response", in: &FriendApplyResp{Success: true, ErrorMessage: "e", ApplyID: 9}, out: &FriendApplyResp{}},
		{name: "friend handle request", in: &FriendHandleReq{UserID: 1, ApplyID: 2, RequesterID: 3, Accept: true}, out: &FriendHandleReq{}},
		{name: "friend delete request", in: &FriendDeleteReq{UserID: 1, FriendID: 2}, out: &FriendDeleteReq{}},
		{name: "friend list request", in: &FriendListReq{UserID: 1}, out: &FriendListReq{}},
		{name: "friend", in: &Friend{UserID: 1015, Nickname: "trinity"}, out: &Friend{}},
		{name: "friend list", in: &FriendListResp{Success: true, Friends: []Friend{{UserID: 1015, Nickname: "trinity"}, {UserID: 1016}}}, out: &FriendListResp{}},
		{name: "group create request", in: &GroupCreateReq{GroupName: "StormHub", OwnerID: 1014}, out: &GroupCreateReq{}},
		{name: "group create response", in: &GroupCreateResp{Success: true, ErrorMessage: "e", GroupID: 17}, out: &GroupCreateResp{}},
		{name: "group join request", in: &GroupJoinReq{GroupID: 17, UserID: 1015}, out: &GroupJoinReq{}},
		{name: "group apply request", in: &GroupApplyReq{UserID: 1015, GroupID: 17, Reason: "let me in"}, out: &GroupApplyReq{}},
		{name: "group handle request", in: &GroupHandleReq{UserID: 1, ApplyID: 2, RequesterID: 3, GroupID: 4, Accept: true}, out: &GroupHandleReq{}},
		{name: "group quit request", in: &GroupQuitReq{UserID: 1015, GroupID: 17}, out: &GroupQuitReq{}},
		{name: "group list request", in: &GroupListReq{UserID: 1014}, out: &GroupListReq{}},
		{name: "group", in: &Group{GroupID: 3, GroupName: "Storm", OwnerID: 1014}, out: &Group{}},
		{name: "group list", in: &GroupListResp{Success: true, Groups: []Group{{GroupID: 3, GroupName: "Storm", OwnerID: 1014}}}, out: &GroupListResp{}},
		{name: "result", in: &Result{Success: false, ErrorMessage: "not friends"}, out: &Result{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := Marshal(tt.in)
			require.NoError(t, err)

			// Fields a newer gateway might add must not disturb decoding.
			body = protowire.AppendTag(body, 98, protowire.VarintType)
			body = protowire.AppendVarint(body, 300)
			body = protowire.AppendTag(body, 99, protowire.BytesType)
			body = protowire.AppendBytes(body, []byte("extension"))

			require.NoError(t, Unmarshal(body, tt.out))
			assert.Equal(t, tt.in, tt.out)
		})
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	t.Parallel()

	body, err := Marshal(HeartbeatResp{ServerTime: 100, MaxSeqID: 12})
	require.NoError(t, err)

	body = protowire.AppendTag(body, 9, protowire.VarintType)
	body = protowire.AppendVarint(body, 1<<40)
	body = protowire.AppendTag(body, 10, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte("server added this"))

	var got HeartbeatResp
	require.NoError(t, Unmarshal(body, &got))
	assert.Equal(t, HeartbeatResp{ServerTime: 100, MaxSeqID: 12}, got)
}

func TestUnmarshalSkipsMismatchedWireType(t *testing.T) {
	t.Parallel()

	var body []byte
	body = protowire.AppendTag(body, 1, protowire.BytesType)
	body = protowire.AppendString(body, "not a varint")
	body = protowire.AppendTag(body, 2, protowire.VarintType)
	body = protowire.AppendVarint(body, 77)

	var got HeartbeatResp
	require.NoError(t, Unmarshal(body, &got))
	assert.Equal(t, HeartbeatResp{MaxSeqID: 77}, got)
}

func TestUnmarshalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
		want error
	}{
		{name: "varint continuation at final byte", body: []byte{0x08, 0x80}, want: ErrTruncatedVarint},
		{name: "tag continuation at final byte", body: []byte{0x88}, want: ErrTruncatedVarint},
		{name: "declared length past end", body: []byte{0x12, 0x05, 'a'}, want: ErrTruncatedField},
		{name: "fixed32 wire type", body: []byte{0x0D, 0, 0, 0, 0}, want: ErrUnsupportedWireType},
		{name: "field number zero", body: []byte{0x00, 0x01}, want: ErrInvalidFieldNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got HeartbeatResp
			err := Unmarshal(tt.body, &got)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, domain.ErrDecode)
		})
	}
}

func TestUnmarshalNestedTruncation(t *testing.T) {
	t.Parallel()

	var body []byte
	body = protowire.AppendTag(body, 2, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte{0x08, 0x80})

	var got MsgSyncResp
	require.ErrorIs(t, Unmarshal(body, &got), ErrTruncatedVarint)
}

func TestUnmarshalRequiresStructPointer(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Unmarshal(nil, LoginResp{}), ErrUnsupportedFieldType)
	require.ErrorIs(t, Unmarshal(nil, (*LoginResp)(nil)), ErrUnsupportedFieldType)
}

func TestSchemaOfOrdersAndCaches(t *testing.T) {
	t.Parallel()

	type outOfOrder struct {
		B string `im:"2"`
		A uint64 `im:"1"`
		C bool
	}

	schema, err := SchemaOf(outOfOrder{})
	require.NoError(t, err)
	require.Len(t, schema.Fields, 2)
	assert.Equal(t, "A", schema.Fields[0].Name)
	assert.Equal(t, protowire.VarintType, schema.Fields[0].WireType)
	assert.Equal(t, "B", schema.Fields[1].Name)
	assert.Equal(t, protowire.BytesType, schema.Fields[1].WireType)

	again, err := SchemaOf(&outOfOrder{})
	require.NoError(t, err)
	assert.Same(t, schema, again)

	f, ok := schema.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "B", f.Name)
}

func TestSchemaOfRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	type duplicate struct {
		A uint64 `im:"1"`
		B uint64 `im:"1"`
	}
	type unsupported struct {
		M map[string]string `im:"1"`
	}
	type badNumber struct {
		A uint64 `im:"zero"`
	}

	_, err := SchemaOf(duplicate{})
	require.ErrorContains(t, err, "used by A and B")

	_, err = SchemaOf(unsupported{})
	require.ErrorIs(t, err, ErrUnsupportedFieldType)

	_, err = SchemaOf(badNumber{})
	require.ErrorContains(t, err, "invalid field number")

	_, err = SchemaOf(42)
	require.ErrorIs(t, err, ErrUnsupportedFieldType)
}
