package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/ports"
)

const DefaultPassword = "pass123"

type RegistryConfig struct {
	Service           string
	StaggerDelay      time.Duration
	FriendAcceptDelay time.Duration
	DefaultDevice     domain.DeviceType
	Session           SessionConfig
	// Users holds per-user password and device overrides, applied when a
	// login does not name them.
	Users map[domain.UserID]domain.Credentials
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Service:           "chat",
		StaggerDelay:      100 * time.Millisecond,
		FriendAcceptDelay: 200 * time.Millisecond,
		DefaultDevice:     domain.DeviceWeb,
		Session:           DefaultSessionConfig(),
	}
}

type RegistryOption func(*Registry)

func WithObserver(o ports.Observer) RegistryOption {
	return func(r *Registry) { r.observers = append(r.observers, o) }
}

func WithMetrics(m ports.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

func WithClock(c ports.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// Registry owns every simulated session, keyed by user id and kept in
// insertion order.
type Registry struct {
	discoverer ports.Discoverer
	transport  ports.Transport
	cfg        RegistryConfig
	observers  []ports.Observer
	metrics    ports.Metrics
	logger     *slog.Logger
	clock      ports.Clock

	notifyMu sync.Mutex

	mu       sync.RWMutex
	sessions map[domain.UserID]*Session
	order    []domain.UserID
}

func NewRegistry(discoverer ports.Discoverer, transport ports.Transport, cfg RegistryConfig, opts ...RegistryOption) *Registry {
	if cfg.Service == "" {
		cfg.Service = "chat"
	}
	if cfg.DefaultDevice == domain.DeviceUnknown {
		cfg.DefaultDevice = domain.DeviceWeb
	}

	r := &Registry{
		discoverer: discoverer,
		transport:  transport,
		cfg:        cfg,
		metrics:    ports.NopMetrics{},
		logger:     slog.New(slog.DiscardHandler),
		clock:      ports.SystemClock{},
		sessions:   make(map[domain.UserID]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoginBatch starts sessions for a contiguous id range, skipping ids that
// already have a session. Starts are spaced by StaggerDelay. A failed login
// is logged and the batch moves on.
func (r *Registry) LoginBatch(ctx context.Context, startID domain.UserID, count int, password string) error {
	users := domain.UserRange{Start: startID, Count: count}
	if err := users.Validate(); err != nil {
		return fmt.Errorf("login batch: %w", err)
	}

	limit := rate.Inf
	if r.cfg.StaggerDelay > 0 {
		limit = rate.Every(r.cfg.StaggerDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, id := range users.IDs() {
		if _, ok := r.lookup(id); ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("login batch: %w", err)
		}
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("login batch: %w", err)
		}
		if err := r.login(ctx, id, password, domain.DeviceUnknown); err != nil {
			r.logger.Warn("login failed", "user", int64(id), "err", err)
		}
	}
	return nil
}

// LoginSingle always resolves a fresh endpoint and opens a fresh transport,
// superseding any existing one for the same user.
func (r *Registry) LoginSingle(ctx context.Context, id domain.UserID, password string, device domain.DeviceType) error {
	return r.login(ctx, id, password, device)
}

func (r *Registry) login(ctx context.Context, id domain.UserID, password string, device domain.DeviceType) error {
	gateway, err := r.discoverer.Discover(ctx, r.cfg.Service)
	if err != nil {
		if !errors.Is(err, domain.ErrDiscovery) {
			err = fmt.Errorf("%w: %w", domain.ErrDiscovery, err)
		}
		if s, ok := r.lookup(id); ok {
			s.log(domain.LogErr, fmt.Sprintf("Discovery failed: %v", err))
			r.notify()
		}
		return fmt.Errorf("login user %s: %w", id, err)
	}

	creds := r.credentials(id, password, device)
	handleID := r.ensure(id).connect(ctx, creds, gateway)
	if handleID == "" {
		return fmt.Errorf("login user %s: session shut down: %w", id, domain.ErrSessionNotFound)
	}
	r.logger.Debug("login started", "user", int64(id), "gateway", gateway, "handle", handleID)
	r.notify()
	return nil
}

func (r *Registry) DisconnectSingle(id domain.UserID) error {
	s, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("disconnect user %s: %w", id, domain.ErrSessionNotFound)
	}
	s.disconnect()
	r.notify()
	return nil
}

// DisconnectAll closes every transport and empties the registry.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.sessions[id])
	}
	r.sessions = make(map[domain.UserID]*Session)
	r.order = nil
	r.mu.Unlock()

	for _, s := range sessions {
		s.shutdown()
	}
	r.notify()
}

// Annotate appends a scenario note to the user's activity log.
func (r *Registry) Annotate(id domain.UserID, text string) {
	s, ok := r.lookup(id)
	if !ok {
		return
	}
	s.log(domain.LogSys, "[BOT] "+text)
	r.notify()
}

func (r *Registry) ensure(id domain.UserID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := newSession(id, r.cfg.Session, sessionDeps{
		transport: r.transport,
		metrics:   r.metrics,
		logger:    r.logger,
		clock:     r.clock,
		onChange:  r.notify,
	})
	r.sessions[id] = s
	r.order = append(r.order, id)
	return s
}

func (r *Registry) lookup(id domain.UserID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// notify hands the full ordered snapshot to every observer. Observers run
// one at a time and must not mutate the registry.
func (r *Registry) notify() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	snapshot := r.Snapshot()
	r.metrics.SessionsByStatus(domain.CountByStatus(snapshot))
	for _, o := range r.observers {
		o.Notify(snapshot)
	}
}

// credentials fills an empty password or unknown device from the per-user
// overrides, then from the registry defaults.
func (r *Registry) credentials(id domain.UserID, password string, device domain.DeviceType) domain.Credentials {
	override := r.cfg.Users[id]
	if password == "" {
		password = override.Password
	}
	if password == "" {
		password = DefaultPassword
	}
	if device == domain.DeviceUnknown {
		device = override.DeviceType
	}
	if device == domain.DeviceUnknown {
		device = r.cfg.DefaultDevice
	}
	return domain.Credentials{
		UserID:     id,
		Password:   password,
		DeviceID:   newDeviceID(device),
		DeviceType: device,
	}
}

func newDeviceID(device domain.DeviceType) string {
	return fmt.Sprintf("%s-%s", device, uuid.NewString()[:8])
}
