// Package gatewaytest runs an in-process IM gateway and discovery endpoint
// for tests. It keeps every user's inbox in memory, pushes notifications to
// online recipients, and kicks an older login of the same user and device.
package gatewaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/wire"
)

const KickReason = "Kicked by new login"

type deviceKey struct {
	user   uint64
	device uint32
}

type conn struct {
	ws     *gws.Conn
	key    deviceKey
	writeMu sync.Mutex
}

func (c *conn) write(frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteMessage(gws.BinaryMessage, frame)
}

func (c *conn) send(cmd wire.Command, msg any) {
	frame, err := wire.Encode(cmd, msg)
	if err != nil {
		return
	}
	c.write(frame)
}

type Server struct {
	HTTP *httptest.Server

	// RejectPassword, when set, fails every login using it.
	RejectPassword string

	upgrader gws.Upgrader

	mu        sync.Mutex
	online    map[deviceKey]*conn
	inbox     map[uint64][]wire.MessageData
	nextMsgID uint64
	groups    map[uint64]*group
	nextGroup uint64
	nextApply uint64
	logins    int
}

type group struct {
	name    string
	owner   uint64
	members []uint64
}

func NewServer() *Server {
	s := &Server{
		online: make(map[deviceKey]*conn),
		inbox:  make(map[uint64][]wire.MessageData),
		groups: make(map[uint64]*group),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/discover/", s.handleDiscover)
	mux.HandleFunc("/ws", s.handleWS)
	s.HTTP = httptest.NewServer(mux)
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.online))
	for _, c := range s.online {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}
	s.HTTP.Close()
}

// DiscoveryURL is the base URL to hand to the discovery client.
func (s *Server) DiscoveryURL() string {
	return s.HTTP.URL + "/api"
}

func (s *Server) GatewayURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws"
}

// Logins counts accepted logins.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Inbox returns the stored messages of one user.
func (s *Server) Inbox(user domain.UserID) []wire.MessageData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.MessageData(nil), s.inbox[uint64(user)]...)
}

func (s *Server) handleDiscover(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": 0,
		"msg":  "",
		"data": map[string]string{"gatewayUrl": s.GatewayURL()},
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}
	defer s.drop(c)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		header, body, err := wire.DecodeFrame(data)
		if err != nil {
			continue
		}
		if !s.handle(c, header.Command, body) {
			return
		}
	}
}

func (s *Server) drop(c *conn) {
	s.mu.Lock()
	if s.online[c.key] == c {
		delete(s.online, c.key)
	}
	s.mu.Unlock()
	_ = c.ws.Close()
}

// handle answers one request. It returns false when the connection is done.
func (s *Server) handle(c *conn, cmd wire.Command, body []byte) bool {
	switch cmd {
	case wire.CmdLoginReq:
		var req wire.LoginReq
		if wire.Unmarshal(body, &req) != nil {
			return true
		}
		s.login(c, req)
	case wire.CmdLogoutReq:
		c.write(wire.EncodeFrame(wire.CmdLogoutResp, nil))
		return false
	case wire.CmdHeartbeatReq:
		c.send(wire.CmdHeartbeatResp, wire.HeartbeatResp{ServerTime: uint64(time.Now().UnixMilli()), MaxSeqID: s.maxSeq(c.key.user)})
	case wire.CmdMsgSendReq:
		var req wire.MsgSendReq
		if wire.Unmarshal(body, &req) != nil {
			return true
		}
		c.send(wire.CmdMsgSendResp, s.sendMessage(c.key.user, req))
	case wire.CmdMsgSyncReq:
		var req wire.MsgSyncReq
		if wire.Unmarshal(body, &req) != nil {
			return true
		}
		c.send(wire.CmdMsgSyncResp, s.sync(c.key.user, req))
	case wire.CmdFriendApplyReq:
		var req wire.FriendApplyReq
		if wire.Unmarshal(body, &req) != nil {
			return true
		}
		s.mu.Lock()
		s.nextApply++
		applyID := s.nextApply
		s.mu.Unlock()
		s.deliver(req.FriendID, wire.MessageData{SenderID: req.UserID, ReceiverID: req.FriendID, Type: uint32(domain.MessageTypeFriendReq), Content: "Friend Request: " + req.Reason})
		c.send(wire.CmdFriendApplyResp, wire.FriendApplyResp{Success: true, ApplyID: applyID})
	case wire.CmdFriendHandleReq:
		var req wire.FriendHandleReq
		if wire.Unmarshal(body, &req) != nil {
			return true
		}
		if req.Accept {
			s.deliver(req.RequesterID, wire.MessageData{SenderID: req.UserID, ReceiverID: req.RequesterID, Type: uint32(domain.MessageTypeSystem), Content: "Friend Request Accepted"})
		}
		c.send(wire.CmdFriendHandleResp, wire.Result{Success: true})
	case wire.CmdFriendDeleteReq:
		c.send(wire.CmdFriendDeleteResp, wire.Result{Success: true})
	case wire.CmdFriendListReq:
		c.send(wire.CmdFriendListResp, wire.FriendListResp{Success: true})
	case wire.CmdGroupCreateReq:
		var req wire.GroupCreateReq
		if wire.Unmarshal(body, &req) != nil {
			return true
		}
		s.mu.Lock()
		s.nextGroup++
		id := s.nextGroup
		s.groups[id] = &group{name: req.GroupName, owner: req.OwnerID, members: []uint64{req.OwnerID}}
		s.mu.Unlock()
		c.send(wire.CmdGroupCreateResp, wire.GroupCreateResp{Success: true, GroupID: id})
	case wire.CmdGroupJoinReq:
		var req wire.GroupJoinReq
		if wire.Unmarshal(body, &req) != nil {
			return true
		}
		c.send(wire.CmdGroupJoinResp, s.joinGroup(req.GroupID, req.UserID))
	case wire.CmdGroupApplyReq:
		c.send(wire.CmdGroupApplyResp, wire.Result{Success: true})
	case wire.CmdGroupHandleReq:
		c.send(wire.CmdGroupHandleResp, wire.Result{Success: true})
	case wire.CmdGroupQuitReq:
		c.send(wire.CmdGroupQuitResp, wire.Result{Success: true})
	case wire.CmdGroupListReq:
		c.send(wire.CmdGroupListResp, s.groupList(c.key.user))
	}
	return true
}

func (s *Server) login(c *conn, req wire.LoginReq) {
	user, err := strconv.ParseUint(req.Username, 10, 64)
	if err != nil || user == 0 {
		c.send(wire.CmdLoginResp, wire.LoginResp{Success: false, ErrorMessage: "invalid username"})
		return
	}
	if s.RejectPassword != "" && req.Password == s.RejectPassword {
		c.send(wire.CmdLoginResp, wire.LoginResp{Success: false, ErrorMessage: "invalid password"})
		return
	}

	key := deviceKey{user: user, device: req.DeviceType}
	s.mu.Lock()
	previous := s.online[key]
	c.key = key
	s.online[key] = c
	s.logins++
	s.mu.Unlock()

	if previous != nil && previous != c {
		previous.write(wire.EncodeKickNotify(KickReason))
		_ = previous.ws.Close()
	}
	c.send(wire.CmdLoginResp, wire.LoginResp{UserID: user, Token: "token-" + req.Username, Success: true})
}

func (s *Server) sendMessage(sender uint64, req wire.MsgSendReq) wire.MsgSendResp {
	msg := wire.MessageData{SenderID: sender, ReceiverID: req.ReceiverID, GroupID: req.GroupID, Type: req.Type, Content: req.Content}
	if req.GroupID == 0 {
		stored := s.deliver(req.ReceiverID, msg)
		return wire.MsgSendResp{MsgID: stored.MsgID, SeqID: stored.SeqID, Success: true}
	}

	s.mu.Lock()
	g, ok := s.groups[req.GroupID]
	var members []uint64
	if ok {
		members = append(members, g.members...)
	}
	s.mu.Unlock()
	if !ok {
		return wire.MsgSendResp{Success: false, ErrorMessage: "group not found"}
	}

	var last wire.MessageData
	for _, m := range members {
		if m != sender {
			last = s.deliver(m, msg)
		}
	}
	return wire.MsgSendResp{MsgID: last.MsgID, SeqID: last.SeqID, Success: true}
}

// deliver stores msg in the recipient's inbox and notifies its live
// connections.
func (s *Server) deliver(to uint64, msg wire.MessageData) wire.MessageData {
	s.mu.Lock()
	s.nextMsgID++
	msg.MsgID = s.nextMsgID
	msg.SeqID = uint64(len(s.inbox[to])) + 1
	msg.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	s.inbox[to] = append(s.inbox[to], msg)
	var targets []*conn
	for key, c := range s.online {
		if key.user == to {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.send(wire.CmdMsgPushNotify, wire.MsgPushNotify{MsgID: msg.MsgID, SeqID: msg.SeqID})
	}
	return msg
}

func (s *Server) sync(user uint64, req wire.MsgSyncReq) wire.MsgSyncResp {
	limit := int(req.Limit)
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := wire.MsgSyncResp{MaxSeq: req.LocalSeq}
	for _, m := range s.inbox[user] {
		if m.SeqID <= req.LocalSeq {
			continue
		}
		if len(resp.Msgs) == limit {
			resp.HasMore = true
			break
		}
		resp.Msgs = append(resp.Msgs, m)
		resp.MaxSeq = m.SeqID
	}
	return resp
}

func (s *Server) maxSeq(user uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.inbox[user]))
}

func (s *Server) joinGroup(groupID, user uint64) wire.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return wire.Result{Success: false, ErrorMessage: "group not found"}
	}
	g.members = append(g.members, user)
	return wire.Result{Success: true}
}

func (s *Server) groupList(user uint64) wire.GroupListResp {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := wire.GroupListResp{Success: true}
	for id := uint64(1); id <= s.nextGroup; id++ {
		g := s.groups[id]
		for _, m := range g.members {
			if m == user {
				resp.Groups = append(resp.Groups, wire.Group{GroupID: id, GroupName: g.name, OwnerID: g.owner})
				break
			}
		}
	}
	return resp
}
