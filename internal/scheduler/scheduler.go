package scheduler

import (
	"context"
	"sync"
	"time"

	"tezfolio/internal/domain/entity"
	"tezfolio/internal/priority"

	"go.uber.org/zap"
)

const (
	// idleDelay schedules low-tier tasks after the session has settled down.
	idleDelay = time.Second
	// fallbackDelay is the longer fixed timeout used when no idle scheduler
	// is installed.
	fallbackDelay = 2 * time.Second
)

// Runner executes one capability fetch for the session's wallet. Errors are
// the runner's own concern; the session only tracks settlement.
type Runner func(ctx context.Context, cap priority.Capability)

// IdleScheduler schedules fn for an idle moment and returns a cancel func.
type IdleScheduler interface {
	Schedule(fn func()) (cancel func())
}

type timerIdle struct{ delay time.Duration }

func (t timerIdle) Schedule(fn func()) func() {
	timer := time.AfterFunc(t.delay, fn)
	return func() { timer.Stop() }
}

// Session drives the progressive loading of one wallet in one viewing
// context. Critical tasks run unconditionally on start; high and medium tasks
// run immediately unless the context defers them, in which case they wait for
// the first user interaction; low tasks run only when background loading is
// enabled, after an idle delay. Progress counts settled tasks; a failed task
// still advances it.
type Session struct {
	logger  *zap.Logger
	viewCtx priority.Context
	runner  Runner
	idle    IdleScheduler

	mu         sync.Mutex
	tasks      []priority.Task
	requested  map[priority.Capability]bool
	completed  int
	interacted bool
	closed     bool
	cancelIdle func()

	background bool
}

// Option tweaks session construction.
type Option func(*Session)

// WithIdleScheduler replaces the idle mechanism used for low-tier tasks.
// Without one, low-tier tasks fall back to a longer fixed timeout.
func WithIdleScheduler(idle IdleScheduler) Option {
	return func(s *Session) { s.idle = idle }
}

// WithBackgroundLoading toggles low-tier loading for this session.
func WithBackgroundLoading(enabled bool) Option {
	return func(s *Session) { s.background = enabled }
}

// NewSession enumerates the wallet's tasks from the priority policy, sorted
// critical-first. Call Start to begin loading and Close on unmount.
func NewSession(chain entity.ChainType, viewCtx priority.Context, runner Runner, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		logger:     logger.Named("LoadSession"),
		viewCtx:    viewCtx,
		runner:     runner,
		idle:       timerIdle{delay: idleDelay},
		tasks:      priority.TasksFor(chain),
		requested:  make(map[priority.Capability]bool),
		background: viewCtx == priority.ContextBackground || viewCtx == priority.ContextDetail,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the immediate tiers and schedules the deferred ones.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var launch []priority.Task
	var hasLow bool
	for _, t := range s.tasks {
		switch {
		case t.Priority == priority.Low:
			hasLow = true
		case !priority.ShouldDefer(t.Priority, s.viewCtx):
			if !s.requested[t.Capability] {
				s.requested[t.Capability] = true
				launch = append(launch, t)
			}
		}
	}
	if hasLow && s.background {
		idle := s.idle
		if idle == nil {
			// No idle mechanism installed; fall back to a longer fixed
			// timeout.
			idle = timerIdle{delay: fallbackDelay}
		}
		s.cancelIdle = idle.Schedule(func() { s.runLow(ctx) })
	}
	s.mu.Unlock()

	for _, t := range launch {
		s.launch(ctx, t)
	}
}

// Interact marks the first user interaction (hover, open-detail, expand) and
// enables all high and medium tasks. Idempotent: a task already requested is
// never re-requested.
func (s *Session) Interact(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.interacted = true
	var launch []priority.Task
	for _, t := range s.tasks {
		if t.Priority != priority.High && t.Priority != priority.Medium {
			continue
		}
		if !s.requested[t.Capability] {
			s.requested[t.Capability] = true
			launch = append(launch, t)
		}
	}
	s.mu.Unlock()

	for _, t := range launch {
		s.launch(ctx, t)
	}
}

func (s *Session) runLow(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var launch []priority.Task
	for _, t := range s.tasks {
		if t.Priority == priority.Low && !s.requested[t.Capability] {
			s.requested[t.Capability] = true
			launch = append(launch, t)
		}
	}
	s.mu.Unlock()

	for _, t := range launch {
		s.launch(ctx, t)
	}
}

func (s *Session) launch(ctx context.Context, t priority.Task) {
	go func() {
		s.runner(ctx, t.Capability)
		s.mu.Lock()
		s.completed++
		s.mu.Unlock()
	}()
}

// Progress reports settled tasks over total tasks across all four tiers.
func (s *Session) Progress() (completed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, len(s.tasks)
}

// Close cancels any pending idle-scheduled low-tier tasks. In-flight fetches
// are allowed to complete; their results still land in the cache.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancelIdle != nil {
		s.cancelIdle()
		s.cancelIdle = nil
	}
}
