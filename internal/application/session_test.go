package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/ports"
	"github.com/bnema/imsim/internal/wire"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestLoginSingleGoesOnlineAndSyncs(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)

	require.Eventually(t, func() bool { return conn.count(wire.CmdMsgSyncReq) == 1 }, waitFor, tick)

	var req wire.LoginReq
	require.NoError(t, wire.Unmarshal(conn.bodyOf(t, wire.CmdLoginReq, 0), &req))
	assert.Equal(t, "1014", req.Username)
	assert.Equal(t, "pass123", req.Password)
	assert.Equal(t, uint32(domain.DeviceWeb), req.DeviceType)
	assert.Contains(t, req.DeviceID, "web-")

	st, err := reg.Session(1014)
	require.NoError(t, err)
	assert.Equal(t, "ws://gw/ws", st.Gateway)
	assert.True(t, reg.HasLog(1014, "Login Success"))
}

func TestLoginFailureStaysHandshaking(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	require.NoError(t, reg.LoginSingle(context.Background(), 1014, "wrong", domain.DeviceWeb))
	conn := tr.conn(t, 0)
	require.Eventually(t, func() bool { return conn.count(wire.CmdLoginReq) == 1 }, waitFor, tick)

	conn.push(t, wire.CmdLoginResp, wire.LoginResp{Success: false, ErrorMessage: "bad password"})

	require.Eventually(t, func() bool { return reg.HasLog(1014, "Login Failed: bad password") }, waitFor, tick)
	status, ok := reg.StatusOf(1014)
	require.True(t, ok)
	assert.Equal(t, domain.StatusHandshaking, status)
	assert.Equal(t, 0, conn.count(wire.CmdMsgSyncReq))
}

func TestHeartbeatGapTriggersExactlyOneSync(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)
	require.Eventually(t, func() bool { return conn.count(wire.CmdMsgSyncReq) == 1 }, waitFor, tick)

	conn.push(t, wire.CmdMsgSyncResp, wire.MsgSyncResp{MaxSeq: 3})
	require.Eventually(t, func() bool { return cursorOf(t, reg, 1014) == 3 }, waitFor, tick)

	conn.push(t, wire.CmdHeartbeatResp, wire.HeartbeatResp{ServerTime: 1, MaxSeqID: 3})
	conn.push(t, wire.CmdHeartbeatResp, wire.HeartbeatResp{ServerTime: 2, MaxSeqID: 5})

	require.Eventually(t, func() bool { return reg.HasLog(1014, "Heartbeat Ack (seq=5)") }, waitFor, tick)
	require.Eventually(t, func() bool { return conn.count(wire.CmdMsgSyncReq) == 2 }, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "Detected missing msgs (Local: 3, Remote: 5). Syncing..."))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, conn.count(wire.CmdMsgSyncReq))

	var req wire.MsgSyncReq
	require.NoError(t, wire.Unmarshal(conn.bodyOf(t, wire.CmdMsgSyncReq, 1), &req))
	assert.Equal(t, uint64(3), req.LocalSeq)
	assert.Equal(t, uint32(50), req.Limit)
}

func TestHeartbeatLoopStopsWhenTransportCloses(t *testing.T) {
	t.Parallel()

	cfg := DefaultRegistryConfig()
	cfg.Session.HeartbeatInterval = 10 * time.Millisecond
	reg, tr := newTestRegistryWith(t, cfg)
	conn := loginOnline(t, reg, tr, 1014, 0)

	require.Eventually(t, func() bool { return conn.count(wire.CmdHeartbeatReq) >= 2 }, waitFor, tick)

	conn.serverClose()
	require.Eventually(t, func() bool {
		status, _ := reg.StatusOf(1014)
		return status == domain.StatusOffline
	}, waitFor, tick)

	sent := conn.count(wire.CmdHeartbeatReq)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sent, conn.count(wire.CmdHeartbeatReq))
	assert.True(t, reg.HasLog(1014, "Disconnected"))
}

func TestSyncAdvancesCursorWithoutMessages(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)

	conn.push(t, wire.CmdMsgSyncResp, wire.MsgSyncResp{MaxSeq: 3})
	require.Eventually(t, func() bool { return cursorOf(t, reg, 1014) == 3 }, waitFor, tick)

	conn.push(t, wire.CmdMsgSyncResp, wire.MsgSyncResp{MaxSeq: 7})
	require.Eventually(t, func() bool { return cursorOf(t, reg, 1014) == 7 }, waitFor, tick)

	conn.push(t, wire.CmdMsgSyncResp, wire.MsgSyncResp{MaxSeq: 5})
	conn.push(t, wire.CmdHeartbeatResp, wire.HeartbeatResp{MaxSeqID: 7})
	require.Eventually(t, func() bool { return reg.HasLog(1014, "Heartbeat Ack (seq=7)") }, waitFor, tick)
	assert.Equal(t, uint64(7), cursorOf(t, reg, 1014))
	assert.False(t, reg.HasLog(1014, "Synced"))
}

func TestSyncLogsMessagesAndFollowsHasMore(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)
	require.Eventually(t, func() bool { return conn.count(wire.CmdMsgSyncReq) == 1 }, waitFor, tick)

	conn.push(t, wire.CmdMsgSyncResp, wire.MsgSyncResp{
		MaxSeq: 2,
		Msgs: []wire.MessageData{
			{MsgID: 10, SeqID: 1, SenderID: 1015, Type: 1, Content: "hello"},
			{MsgID: 11, SeqID: 2, SenderID: 1016, Type: 4, Content: "Friend Request Accepted"},
		},
		HasMore: true,
	})

	require.Eventually(t, func() bool { return conn.count(wire.CmdMsgSyncReq) == 2 }, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "Synced 2 new msgs"))
	assert.True(t, reg.HasLog(1014, "From 1015: hello"))
	assert.True(t, reg.HasLog(1014, "From 1016: Friend Request Accepted"))

	var req wire.MsgSyncReq
	require.NoError(t, wire.Unmarshal(conn.bodyOf(t, wire.CmdMsgSyncReq, 1), &req))
	assert.Equal(t, uint64(2), req.LocalSeq)
}

func TestPushNotifyTriggersSync(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)
	require.Eventually(t, func() bool { return conn.count(wire.CmdMsgSyncReq) == 1 }, waitFor, tick)

	conn.pushRaw(wire.EncodeFrame(wire.CmdMsgPushNotify, nil))

	require.Eventually(t, func() bool { return conn.count(wire.CmdMsgSyncReq) == 2 }, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "New Message Received! Syncing..."))
}

func TestOrphanedTransportIsolation(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	oldConn := loginOnline(t, reg, tr, 1014, 0)
	first, err := reg.Session(1014)
	require.NoError(t, err)

	newConn := loginOnline(t, reg, tr, 1014, 1)
	second, err := reg.Session(1014)
	require.NoError(t, err)
	require.NotEqual(t, first.Handle, second.Handle)

	oldConn.push(t, wire.CmdHeartbeatResp, wire.HeartbeatResp{MaxSeqID: 99})
	require.Eventually(t, func() bool { return reg.HasLog(1014, "Orphaned heartbeat_resp frame ignored") }, waitFor, tick)

	oldConn.serverClose()
	require.Eventually(t, func() bool { return reg.HasLog(1014, "(Prev Session Closed)") }, waitFor, tick)

	status, _ := reg.StatusOf(1014)
	assert.Equal(t, domain.StatusOnline, status)
	assert.False(t, reg.HasLog(1014, "Remote: 99"))

	newConn.serverClose()
	require.Eventually(t, func() bool {
		status, _ := reg.StatusOf(1014)
		return status == domain.StatusOffline
	}, waitFor, tick)
}

func TestKickOnCurrentTransport(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.LoginSingle(ctx, 1014, "pass123", domain.DevicePC))
	first := tr.conn(t, 0)
	require.Eventually(t, func() bool { return first.count(wire.CmdLoginReq) == 1 }, waitFor, tick)
	firstStatus, err := reg.Session(1014)
	require.NoError(t, err)

	require.NoError(t, reg.LoginSingle(ctx, 1014, "pass123", domain.DevicePC))
	second := tr.conn(t, 1)
	require.Eventually(t, func() bool { return second.count(wire.CmdLoginReq) == 1 }, waitFor, tick)
	secondStatus, err := reg.Session(1014)
	require.NoError(t, err)
	assert.NotEqual(t, firstStatus.Handle, secondStatus.Handle)
	assert.Equal(t, domain.DevicePC, secondStatus.DeviceType)

	second.push(t, wire.CmdLoginResp, wire.LoginResp{UserID: 1014, Success: true})
	require.Eventually(t, func() bool {
		status, _ := reg.StatusOf(1014)
		return status == domain.StatusOnline
	}, waitFor, tick)

	second.pushRaw(wire.EncodeKickNotify("Kicked by new login"))

	require.Eventually(t, func() bool {
		status, _ := reg.StatusOf(1014)
		return status == domain.StatusKicked
	}, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "KICKED by Server: Kicked by new login"))
	require.Eventually(t, second.isClosed, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	status, _ := reg.StatusOf(1014)
	assert.Equal(t, domain.StatusKicked, status)
}

func TestKickOnOrphanDoesNotChangeStatus(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	oldConn := loginOnline(t, reg, tr, 1014, 0)
	loginOnline(t, reg, tr, 1014, 1)

	oldConn.pushRaw(wire.EncodeKickNotify("Kicked by new login"))

	require.Eventually(t, func() bool { return reg.HasLog(1014, "(Prev Session Kicked: Kicked by new login)") }, waitFor, tick)
	status, _ := reg.StatusOf(1014)
	assert.Equal(t, domain.StatusOnline, status)
}

func TestLogoutResponseGoesOffline(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)

	require.True(t, reg.Logout(1014))
	require.Eventually(t, func() bool { return conn.count(wire.CmdLogoutReq) == 1 }, waitFor, tick)

	conn.pushRaw(wire.EncodeFrame(wire.CmdLogoutResp, nil))

	require.Eventually(t, func() bool {
		status, _ := reg.StatusOf(1014)
		return status == domain.StatusOffline
	}, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "Logged out"))
	assert.False(t, reg.HasLog(1014, "KICKED"))
}

func TestMalformedFrameIsDropped(t *testing.T) {
	t.Parallel()

	metrics := &recordingMetrics{}
	reg, tr := newTestRegistryWith(t, DefaultRegistryConfig(), WithMetrics(metrics))
	conn := loginOnline(t, reg, tr, 1014, 0)

	conn.pushRaw([]byte{0x49, 0x4D})
	conn.pushRaw(wire.EncodeFrame(wire.CmdHeartbeatResp, []byte{0x10, 0x80}))

	require.Eventually(t, func() bool { return metrics.decodeFailures() == 2 }, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "Decode error"))
	status, _ := reg.StatusOf(1014)
	assert.Equal(t, domain.StatusOnline, status)
	assert.Positive(t, metrics.sentCount(wire.CmdLoginReq))
}

func TestServerRejectionIsLogged(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)

	require.True(t, reg.SendMessage(1014, 1015, "hi"))
	conn.push(t, wire.CmdMsgSendResp, wire.MsgSendResp{Success: false, ErrorMessage: "not friends"})
	conn.push(t, wire.CmdFriendHandleResp, wire.Result{Success: false})

	require.Eventually(t, func() bool { return reg.HasLog(1014, "Friend Handle Failed: Unknown") }, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "Ack Failed: not friends"))
	status, _ := reg.StatusOf(1014)
	assert.Equal(t, domain.StatusOnline, status)
}

func TestGroupCreateRecordsGroupID(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	conn := loginOnline(t, reg, tr, 1014, 0)

	require.True(t, reg.CreateGroup(1014, "StormHub"))
	var req wire.GroupCreateReq
	require.Eventually(t, func() bool { return conn.count(wire.CmdGroupCreateReq) == 1 }, waitFor, tick)
	require.NoError(t, wire.Unmarshal(conn.bodyOf(t, wire.CmdGroupCreateReq, 0), &req))
	assert.Equal(t, wire.GroupCreateReq{GroupName: "StormHub", OwnerID: 1014}, req)

	conn.push(t, wire.CmdGroupCreateResp, wire.GroupCreateResp{Success: true, GroupID: 17})

	require.Eventually(t, func() bool {
		st, err := reg.Session(1014)
		return err == nil && st.LastGroupID == 17
	}, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "Group Created! (id=17)"))
}

func TestDialFailureMarksOffline(t *testing.T) {
	t.Parallel()

	reg, tr := newTestRegistry(t)
	tr.setDialErr(errors.New("connection refused"))

	require.NoError(t, reg.LoginSingle(context.Background(), 1014, "pass123", domain.DeviceWeb))

	require.Eventually(t, func() bool {
		status, _ := reg.StatusOf(1014)
		return status == domain.StatusOffline
	}, waitFor, tick)
	assert.True(t, reg.HasLog(1014, "Connect failed: connection refused"))
}

func TestDisconnectAllDuringDialClosesLateConnection(t *testing.T) {
	t.Parallel()
	reg, tr := newTestRegistry(t)
	release := tr.holdDials()

	require.NoError(t, reg.LoginSingle(context.Background(), 1014, "", domain.DeviceUnknown))
	require.Eventually(t, func() bool { return tr.pendingDials() == 1 }, waitFor, tick)

	reg.DisconnectAll()
	close(release)

	c := tr.conn(t, 0)
	require.Eventually(t, c.isClosed, waitFor, tick)
	assert.Zero(t, c.count(wire.CmdLoginReq))
	assert.Zero(t, reg.Len())
}

func TestDisconnectSingleDuringDialClosesLateConnection(t *testing.T) {
	t.Parallel()
	reg, tr := newTestRegistry(t)
	release := tr.holdDials()

	require.NoError(t, reg.LoginSingle(context.Background(), 1014, "", domain.DeviceUnknown))
	require.Eventually(t, func() bool { return tr.pendingDials() == 1 }, waitFor, tick)

	require.NoError(t, reg.DisconnectSingle(1014))
	close(release)

	c := tr.conn(t, 0)
	require.Eventually(t, c.isClosed, waitFor, tick)
	status, ok := reg.StatusOf(1014)
	require.True(t, ok)
	assert.Equal(t, domain.StatusOffline, status)
}

func TestConnectAfterShutdownIsRefused(t *testing.T) {
	t.Parallel()
	reg, tr := newTestRegistry(t)

	s := reg.ensure(1014)
	s.shutdown()

	assert.Empty(t, s.connect(context.Background(), domain.Credentials{UserID: 1014}, "ws://gw/ws"))
	assert.Never(t, func() bool { return tr.dialCount() > 0 }, 50*time.Millisecond, tick)
}

func loginOnline(t *testing.T, reg *Registry, tr *fakeTransport, id domain.UserID, connIndex int) *fakeConn {
	t.Helper()

	require.NoError(t, reg.LoginSingle(context.Background(), id, "pass123", domain.DeviceWeb))
	conn := tr.conn(t, connIndex)
	require.Eventually(t, func() bool { return conn.count(wire.CmdLoginReq) == 1 }, waitFor, tick)
	conn.push(t, wire.CmdLoginResp, wire.LoginResp{UserID: uint64(id), Success: true})
	require.Eventually(t, func() bool {
		st, err := reg.Session(id)
		return err == nil && st.Status == domain.StatusOnline
	}, waitFor, tick)
	return conn
}

func cursorOf(t *testing.T, reg *Registry, id domain.UserID) uint64 {
	t.Helper()
	st, err := reg.Session(id)
	require.NoError(t, err)
	return st.Cursor
}

func newTestRegistry(t *testing.T) (*Registry, *fakeTransport) {
	t.Helper()
	return newTestRegistryWith(t, DefaultRegistryConfig())
}

func newTestRegistryWith(t *testing.T, cfg RegistryConfig, opts ...RegistryOption) (*Registry, *fakeTransport) {
	t.Helper()

	tr := &fakeTransport{}
	reg := NewRegistry(&fakeDiscoverer{gateway: "ws://gw/ws"}, tr, cfg, opts...)
	t.Cleanup(reg.DisconnectAll)
	return reg, tr
}

var errConnClosed = errors.New("fake connection closed")

type fakeDiscoverer struct {
	mu      sync.Mutex
	gateway string
	calls   int
	failOn  map[int]bool
}

func (d *fakeDiscoverer) Discover(_ context.Context, _ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failOn[d.calls] {
		return "", domain.ErrDiscovery
	}
	return d.gateway, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dialErr error
	// gate, when set, holds every Dial until it is closed.
	gate    chan struct{}
	pending int
}

func (f *fakeTransport) Dial(_ context.Context, _ string) (ports.Conn, error) {
	f.mu.Lock()
	gate := f.gate
	f.pending++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending--
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	c := &fakeConn{inbox: make(chan []byte, 32), closed: make(chan struct{})}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) setDialErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialErr = err
}

func (f *fakeTransport) holdDials() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeTransport) pendingDials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeTransport) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	require.Eventually(t, func() bool { return f.dialCount() > i }, waitFor, tick)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

type fakeConn struct {
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errConnClosed
	default:
	}
	select {
	case frame := <-c.inbox:
		return frame, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(frame []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) serverClose() {
	_ = c.Close()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(t *testing.T, cmd wire.Command, msg any) {
	t.Helper()
	frame, err := wire.Encode(cmd, msg)
	require.NoError(t, err)
	c.pushRaw(frame)
}

func (c *fakeConn) pushRaw(frame []byte) {
	c.inbox <- frame
}

func (c *fakeConn) count(cmd wire.Command) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, frame := range c.frames {
		if header, _, err := wire.DecodeFrame(frame); err == nil && header.Command == cmd {
			n++
		}
	}
	return n
}

// bodyOf returns the body of the nth frame sent with cmd.
func (c *fakeConn) bodyOf(t *testing.T, cmd wire.Command, nth int) []byte {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := 0
	for _, frame := range c.frames {
		header, body, err := wire.DecodeFrame(frame)
		require.NoError(t, err)
		if header.Command != cmd {
			continue
		}
		if seen == nth {
			return body
		}
		seen++
	}
	t.Fatalf("no frame #%d for %s", nth, cmd)
	return nil
}

type recordingMetrics struct {
	mu      sync.Mutex
	sent    map[wire.Command]int
	decodes int
}

func (m *recordingMetrics) FrameSent(cmd wire.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[wire.Command]int)
	}
	m.sent[cmd]++
}

func (m *recordingMetrics) FrameReceived(wire.Command) {}

func (m *recordingMetrics) DecodeFailed(wire.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodes++
}

func (m *recordingMetrics) SessionsByStatus(map[domain.Status]int) {}

func (m *recordingMetrics) sentCount(cmd wire.Command) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[cmd]
}

func (m *recordingMetrics) decodeFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decodes
}
