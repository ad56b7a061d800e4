package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/ports"
	"github.com/bnema/imsim/internal/wire"
)

type SessionConfig struct {
	HeartbeatInterval time.Duration
	SyncLimit         uint32
	LogCapacity       int
	EventBuffer       int
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HeartbeatInterval: 30 * time.Second,
		SyncLimit:         50,
		LogCapacity:       domain.DefaultLogCapacity,
		EventBuffer:       64,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.SyncLimit == 0 {
		c.SyncLimit = def.SyncLimit
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = def.LogCapacity
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

// handle is one transport attempt. A login always creates a new handle; the
// previous one is left open until the gateway closes it.
type handle struct {
	id      string
	gateway string
	done    chan struct{}

	mu     sync.Mutex
	conn   ports.Conn
	closed bool
}

func newHandle(gateway string) *handle {
	return &handle{id: uuid.NewString(), gateway: gateway, done: make(chan struct{})}
}

func (h *handle) attach(conn ports.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conn = conn
	return true
}

func (h *handle) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conn := h.conn
	close(h.done)
	h.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (h *handle) write(frame []byte) error {
	h.mu.Lock()
	conn, closed := h.conn, h.closed
	h.mu.Unlock()

	if closed || conn == nil {
		return fmt.Errorf("write frame: %w: connection not open", domain.ErrTransport)
	}
	return conn.WriteMessage(frame)
}

type sessionEvent interface {
	source() *handle
}

type dialedEvent struct {
	h    *handle
	conn ports.Conn
	err  error
}

type messageEvent struct {
	h    *handle
	data []byte
}

type closedEvent struct {
	h   *handle
	err error
}

func (e dialedEvent) source() *handle  { return e.h }
func (e messageEvent) source() *handle { return e.h }
func (e closedEvent) source() *handle  { return e.h }

type sessionDeps struct {
	transport ports.Transport
	metrics   ports.Metrics
	logger    *slog.Logger
	clock     ports.Clock
	onChange  func()
}

// Session is one simulated user. All transport events are funneled through a
// single event loop; operations called from other goroutines only read state
// under mu and write frames.
type Session struct {
	id   domain.UserID
	cfg  SessionConfig
	deps sessionDeps

	logs     *domain.LogRing
	events   chan sessionEvent
	stopped  chan struct{}
	stopOnce sync.Once

	mu            sync.Mutex
	status        domain.Status
	current       *handle
	live          map[string]*handle
	creds         domain.Credentials
	cursor        uint64
	lastGroupID   uint64
	logoutPending bool
	shut          bool
	updatedAt     time.Time
}

func newSession(id domain.UserID, cfg SessionConfig, deps sessionDeps) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:      id,
		cfg:     cfg,
		deps:    deps,
		logs:    domain.NewLogRing(cfg.LogCapacity),
		events:  make(chan sessionEvent, cfg.EventBuffer),
		stopped: make(chan struct{}),
		status:  domain.StatusIdle,
		live:    make(map[string]*handle),
	}
	s.updatedAt = s.now()
	go s.run()
	return s
}

func (s *Session) ID() domain.UserID {
	return s.id
}

func (s *Session) run() {
	for {
		select {
		case <-s.stopped:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
			s.changed()
		}
	}
}

// post hands ev to the event loop. It reports false once the loop has
// stopped, in which case ev will never be handled.
func (s *Session) post(ev sessionEvent) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Session) handleEvent(ev sessionEvent) {
	switch ev := ev.(type) {
	case dialedEvent:
		s.onDialed(ev)
	case messageEvent:
		s.onMessage(ev)
	case closedEvent:
		s.onClosed(ev)
	}
}

// connect starts a fresh transport attempt and makes it current. It returns
// an empty handle id when the session has already been shut down.
func (s *Session) connect(ctx context.Context, creds domain.Credentials, gateway string) string {
	h := newHandle(gateway)

	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return ""
	}
	s.current = h
	s.live[h.id] = h
	s.creds = creds
	s.cursor = 0
	s.logoutPending = false
	s.setStatusLocked(domain.StatusConnecting)
	s.mu.Unlock()

	s.log(domain.LogSys, fmt.Sprintf("Dispatching to %s (Dev:%d)", gateway, creds.DeviceType))

	dialCtx := context.WithoutCancel(ctx)
	go func() {
		conn, err := s.deps.transport.Dial(dialCtx, gateway)
		if err == nil && !h.attach(conn) {
			// Closed while dialing: shutdown or disconnect got there first.
			_ = conn.Close()
			return
		}
		if !s.post(dialedEvent{h: h, conn: conn, err: err}) {
			h.close()
		}
	}()
	return h.id
}

func (s *Session) onDialed(ev dialedEvent) {
	if ev.err != nil {
		s.mu.Lock()
		isCurrent := s.current == ev.h
		delete(s.live, ev.h.id)
		if isCurrent {
			s.setStatusLocked(domain.StatusOffline)
		}
		s.mu.Unlock()

		ev.h.close()
		if isCurrent {
			s.log(domain.LogErr, fmt.Sprintf("Connect failed: %v", ev.err))
		}
		return
	}

	s.mu.Lock()
	if s.current != ev.h {
		delete(s.live, ev.h.id)
		s.mu.Unlock()
		ev.h.close()
		s.log(domain.LogWarn, "Superseded connection opened late, closing it")
		return
	}
	s.setStatusLocked(domain.StatusHandshaking)
	creds := s.creds
	s.mu.Unlock()

	s.log(domain.LogTx, fmt.Sprintf("Connected to %s (Dev:%d)", ev.h.gateway, creds.DeviceType))
	go s.readPump(ev.h, ev.conn)

	req := wire.LoginReq{
		Username:   creds.UserID.String(),
		Password:   creds.Password,
		DeviceID:   creds.DeviceID,
		DeviceType: uint32(creds.DeviceType),
	}
	if s.send(ev.h, wire.CmdLoginReq, req) == nil {
		s.log(domain.LogTx, "Sent LoginReq")
	}
}

func (s *Session) readPump(h *handle, conn ports.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.post(closedEvent{h: h, err: err})
			return
		}
		s.post(messageEvent{h: h, data: data})
	}
}

func (s *Session) onClosed(ev closedEvent) {
	s.mu.Lock()
	delete(s.live, ev.h.id)
	isCurrent := s.current == ev.h
	prev := s.status
	if isCurrent && !prev.Terminal() {
		s.setStatusLocked(domain.StatusOffline)
	}
	s.mu.Unlock()

	ev.h.close()

	switch {
	case !isCurrent:
		s.log(domain.LogWarn, "(Prev Session Closed)")
	case !prev.Terminal():
		s.log(domain.LogErr, "Disconnected")
		s.deps.logger.Debug("transport closed", "user", s.id, "handle", ev.h.id, "err", ev.err)
	}
}

func (s *Session) onMessage(ev messageEvent) {
	header, body, err := wire.DecodeFrame(ev.data)
	if err != nil {
		s.deps.metrics.DecodeFailed(header.Command)
		s.log(domain.LogErr, fmt.Sprintf("Decode error: %v", err))
		return
	}
	s.deps.metrics.FrameReceived(header.Command)

	if !s.isCurrent(ev.h) {
		if header.Command == wire.CmdKickNotify {
			s.log(domain.LogWarn, fmt.Sprintf("(Prev Session Kicked: %s)", wire.DecodeKickNotify(body).Reason))
			return
		}
		s.log(domain.LogWarn, fmt.Sprintf("Orphaned %s frame ignored", header.Command))
		return
	}

	if err := s.dispatch(ev.h, header.Command, body); err != nil {
		s.deps.metrics.DecodeFailed(header.Command)
		s.log(domain.LogErr, fmt.Sprintf("Decode error: %v", err))
	}
}

func (s *Session) heartbeat(h *handle) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-s.stopped:
			return
		case <-ticker.C:
			if !s.isCurrent(h) {
				return
			}
			_ = s.send(h, wire.CmdHeartbeatReq, wire.HeartbeatReq{})
		}
	}
}

func (s *Session) send(h *handle, cmd wire.Command, msg any) error {
	frame, err := wire.Encode(cmd, msg)
	if err != nil {
		s.log(domain.LogErr, fmt.Sprintf("Encode %s failed: %v", cmd, err))
		return err
	}
	if err := h.write(frame); err != nil {
		s.log(domain.LogErr, fmt.Sprintf("Send %s failed: %v", cmd, err))
		return err
	}
	s.deps.metrics.FrameSent(cmd)
	return nil
}

func (s *Session) sync(h *handle) {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	req := wire.MsgSyncReq{UserID: uint64(s.id), LocalSeq: cursor, Limit: s.cfg.SyncLimit}
	if s.send(h, wire.CmdMsgSyncReq, req) == nil {
		s.log(domain.LogTx, fmt.Sprintf("Syncing from seq %d...", cursor))
	}
}

// whenOnline runs fn with the current handle if the session is online.
func (s *Session) whenOnline(fn func(h *handle) error) bool {
	s.mu.Lock()
	h := s.current
	online := s.status == domain.StatusOnline && h != nil
	s.mu.Unlock()

	if !online {
		return false
	}
	return fn(h) == nil
}

func (s *Session) disconnect() {
	s.mu.Lock()
	h := s.current
	s.logoutPending = false
	s.setStatusLocked(domain.StatusOffline)
	s.mu.Unlock()

	if h != nil {
		h.close()
	}
	s.log(domain.LogSys, "Disconnected by user")
}

// shutdown closes every transport, including superseded ones, and stops the
// event loop.
func (s *Session) shutdown() {
	s.disconnect()

	s.mu.Lock()
	s.shut = true
	live := make([]*handle, 0, len(s.live))
	for _, h := range s.live {
		live = append(live, h)
	}
	s.live = make(map[string]*handle)
	s.mu.Unlock()

	for _, h := range live {
		h.close()
	}
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Session) isCurrent(h *handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == h
}

func (s *Session) currentStatus() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatusLocked(status domain.Status) {
	s.status = status
	s.updatedAt = s.now()
}

func (s *Session) snapshot() domain.SessionStatus {
	s.mu.Lock()
	st := domain.SessionStatus{
		UserID:      s.id,
		Status:      s.status,
		DeviceType:  s.creds.DeviceType,
		Cursor:      s.cursor,
		LastGroupID: s.lastGroupID,
		UpdatedAt:   s.updatedAt,
	}
	if s.current != nil {
		st.Handle = s.current.id
		st.Gateway = s.current.gateway
	}
	s.mu.Unlock()

	st.Logs = s.logs.Entries()
	return st
}

func (s *Session) hasLog(pattern string) bool {
	return s.logs.Contains(pattern)
}

func (s *Session) log(kind domain.LogKind, text string) {
	s.logs.Append(domain.LogEntry{Time: s.now(), Text: text, Kind: kind})

	level := slog.LevelDebug
	switch kind {
	case domain.LogErr:
		level = slog.LevelWarn
	case domain.LogWarn:
		level = slog.LevelInfo
	}
	s.deps.logger.Log(context.Background(), level, strings.TrimSpace(text), "user", int64(s.id), "kind", string(kind))
}

func (s *Session) changed() {
	if s.deps.onChange != nil {
		s.deps.onChange()
	}
}

func (s *Session) now() time.Time {
	if s.deps.clock == nil {
		return time.Now()
	}
	return s.deps.clock.Now()
}
