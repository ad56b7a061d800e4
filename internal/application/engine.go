package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/imsim/internal/domain"
)

// Operator is the slice of the Registry that scenarios drive.
type Operator interface {
	LoginSingle(ctx context.Context, id domain.UserID, password string, device domain.DeviceType) error
	DisconnectSingle(id domain.UserID) error
	Sync(id domain.UserID) bool
	SendMessage(from, to domain.UserID, content string) bool
	SendGroupMessage(from domain.UserID, groupID uint64, content string) bool
	ApplyFriend(from, to domain.UserID, reason string) bool
	HandleFriend(id, requester domain.UserID, accept bool) bool
	DeleteFriend(id, friend domain.UserID) bool
	MakeFriends(ctx context.Context, a, b domain.UserID) error
	CreateGroup(owner domain.UserID, name string) bool
	JoinGroup(id domain.UserID, groupID uint64) bool
	Annotate(id domain.UserID, text string)
	Session(id domain.UserID) (domain.SessionStatus, error)
	HasLog(id domain.UserID, pattern string) bool
}

type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

func (r DelayRange) pick(randN func(int64) int64) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(randN(int64(r.Max-r.Min)+1))
}

type ScenarioConfig struct {
	Password   string
	KickDevice domain.DeviceType

	Rounds          int
	StormUsers      int
	StormMessages   int
	BurstMessages   int
	BurstPauseEvery int

	TalkDelay  DelayRange
	StormDelay DelayRange
	JoinDelay  DelayRange

	LoginSpacing time.Duration
	BurstPause   time.Duration
	DeferredSync time.Duration
	Settle       time.Duration
	Cooldown     time.Duration

	PollInterval     time.Duration
	SyncPollInterval time.Duration
	OnlineTimeout    time.Duration
	ConfirmTimeout   time.Duration
	GroupTimeout     time.Duration
}

func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Password:         DefaultPassword,
		KickDevice:       domain.DevicePC,
		Rounds:           5,
		StormUsers:       5,
		StormMessages:    5,
		BurstMessages:    20,
		BurstPauseEvery:  5,
		TalkDelay:        DelayRange{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		StormDelay:       DelayRange{Min: 300 * time.Millisecond, Max: 1000 * time.Millisecond},
		JoinDelay:        DelayRange{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond},
		LoginSpacing:     100 * time.Millisecond,
		BurstPause:       100 * time.Millisecond,
		DeferredSync:     500 * time.Millisecond,
		Settle:           time.Second,
		Cooldown:         2 * time.Second,
		PollInterval:     100 * time.Millisecond,
		SyncPollInterval: 500 * time.Millisecond,
		OnlineTimeout:    5 * time.Second,
		ConfirmTimeout:   5 * time.Second,
		GroupTimeout:     5 * time.Second,
	}
}

type Report struct {
	Name       string          `json:"name"`
	Users      []domain.UserID `json:"users"`
	Operations int             `json:"operations"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"duration"`
	Aborted    bool            `json:"aborted"`
}

type scenarioFunc func(ctx context.Context, r *run, start domain.UserID) error

// Engine runs named scenarios against an Operator. Several runs may be in
// flight; Stop cancels all of them.
type Engine struct {
	ops       Operator
	cfg       ScenarioConfig
	logger    *slog.Logger
	randN     func(int64) int64
	scenarios map[string]scenarioFunc

	mu      sync.Mutex
	nextRun int
	cancels map[int]context.CancelFunc
}

func NewEngine(ops Operator, cfg ScenarioConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		ops:     ops,
		cfg:     cfg,
		logger:  logger,
		randN:   rand.Int64N,
		cancels: make(map[int]context.CancelFunc),
	}
	e.scenarios = map[string]scenarioFunc{
		ScenarioDeepConversation: deepConversation,
		ScenarioGroupStorm:       groupStorm,
		ScenarioOfflineBurst:     offlineBurst,
		ScenarioMultiDeviceKick:  multiDeviceKick,
	}
	return e
}

func (e *Engine) Names() []string {
	names := make([]string, 0, len(e.scenarios))
	for name := range e.scenarios {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes one scenario to completion. A run cancelled through ctx or
// Stop reports Aborted with a nil error; operations already sent stay sent.
func (e *Engine) Run(ctx context.Context, name string, start domain.UserID) (Report, error) {
	fn, ok := e.scenarios[name]
	if !ok {
		return Report{}, fmt.Errorf("run scenario %q: %w", name, domain.ErrUnknownScenario)
	}

	ctx, cancel := context.WithCancel(ctx)
	id := e.track(cancel)
	defer e.untrack(id)
	defer cancel()

	r := &run{engine: e, ops: e.ops, cfg: e.cfg, report: Report{Name: name, StartedAt: time.Now()}}
	e.logger.Info("scenario started", "scenario", name, "start", int64(start))

	err := fn(ctx, r, start)
	report := r.finish()

	switch {
	case err == nil:
		e.logger.Info("scenario finished", "scenario", name, "operations", report.Operations, "duration", report.Duration)
		return report, nil
	case errors.Is(err, domain.ErrScenarioAborted):
		report.Aborted = true
		e.logger.Info("scenario aborted", "scenario", name, "operations", report.Operations)
		return report, nil
	default:
		e.logger.Warn("scenario failed", "scenario", name, "err", err)
		return report, fmt.Errorf("run scenario %s: %w", name, err)
	}
}

// Stop cancels every run in flight. Runs started afterwards are unaffected.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.cancels))
	for _, cancel := range e.cancels {
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (e *Engine) track(cancel context.CancelFunc) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextRun++
	e.cancels[e.nextRun] = cancel
	return e.nextRun
}

func (e *Engine) untrack(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, id)
}

// run carries the state of one scenario execution.
type run struct {
	engine *Engine
	ops    Operator
	cfg    ScenarioConfig

	operations atomic.Int64
	mu         sync.Mutex
	report     Report
}

func (r *run) finish() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	report := r.report
	report.Users = slices.Clone(r.report.Users)
	report.Operations = int(r.operations.Load())
	report.Duration = time.Since(report.StartedAt)
	return report
}

func (r *run) users(ids ...domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Users = append(r.report.Users, ids...)
}

func (r *run) count(sent bool) {
	if sent {
		r.operations.Add(1)
	}
}

func aborted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", domain.ErrScenarioAborted, context.Cause(ctx))
}

func (r *run) sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return aborted(ctx)
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return aborted(ctx)
	case <-timer.C:
		return nil
	}
}

func (r *run) randomSleep(ctx context.Context, d DelayRange) error {
	return r.sleep(ctx, d.pick(r.engine.randN))
}

// poll calls check every interval until it reports done, ctx ends, or timeout
// elapses.
func (r *run) poll(ctx context.Context, interval, timeout time.Duration, check func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if ctx.Err() != nil {
			return aborted(ctx)
		}
		if check() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return domain.ErrScenarioTimeout
		}
		if err := r.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (r *run) waitForOnline(ctx context.Context, id domain.UserID, timeout time.Duration) error {
	err := r.poll(ctx, r.cfg.PollInterval, timeout, func() bool {
		st, err := r.ops.Session(id)
		return err == nil && st.Status == domain.StatusOnline
	})
	if errors.Is(err, domain.ErrScenarioTimeout) {
		return fmt.Errorf("wait for user %s online: %w", id, err)
	}
	return err
}

// waitForLogOrSync re-issues a sync on every tick so the check is driven by
// server state rather than push delivery.
func (r *run) waitForLogOrSync(ctx context.Context, id domain.UserID, pattern string, timeout time.Duration) error {
	err := r.poll(ctx, r.cfg.SyncPollInterval, timeout, func() bool {
		r.count(r.ops.Sync(id))
		return r.ops.HasLog(id, pattern)
	})
	if errors.Is(err, domain.ErrScenarioTimeout) {
		return fmt.Errorf("wait for log %q on user %s: %w", pattern, id, err)
	}
	return err
}

// waitForGroup waits until the owner records a group id other than previous.
func (r *run) waitForGroup(ctx context.Context, owner domain.UserID, previous uint64, timeout time.Duration) (uint64, error) {
	var groupID uint64
	err := r.poll(ctx, r.cfg.PollInterval, timeout, func() bool {
		st, err := r.ops.Session(owner)
		if err != nil || st.LastGroupID == 0 || st.LastGroupID == previous {
			return false
		}
		groupID = st.LastGroupID
		return true
	})
	if errors.Is(err, domain.ErrScenarioTimeout) {
		return 0, fmt.Errorf("wait for group created by %s: %w", owner, err)
	}
	return groupID, err
}

func (r *run) login(ctx context.Context, id domain.UserID, device domain.DeviceType) error {
	if ctx.Err() != nil {
		return aborted(ctx)
	}
	r.operations.Add(1)
	if err := r.ops.LoginSingle(ctx, id, r.cfg.Password, device); err != nil {
		if ctx.Err() != nil {
			return aborted(ctx)
		}
		return fmt.Errorf("login user %s: %w", id, err)
	}
	return nil
}

func (r *run) disconnect(ids ...domain.UserID) {
	for _, id := range ids {
		if err := r.ops.DisconnectSingle(id); err == nil {
			r.operations.Add(1)
		}
	}
}

// deferSync schedules a sync for id unless the run has ended by then.
func (r *run) deferSync(ctx context.Context, id domain.UserID) {
	time.AfterFunc(r.cfg.DeferredSync, func() {
		if ctx.Err() == nil {
			r.count(r.ops.Sync(id))
		}
	})
}

func (r *run) note(id domain.UserID, format string, args ...any) {
	r.ops.Annotate(id, fmt.Sprintf(format, args...))
}
