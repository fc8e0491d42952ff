package scheduler

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"tezfolio/internal/domain/entity"
	"tezfolio/internal/priority"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder collects the capabilities a session actually ran.
type recorder struct {
	mu   sync.Mutex
	caps []priority.Capability
}

func (r *recorder) runner(_ context.Context, c priority.Capability) {
	r.mu.Lock()
	r.caps = append(r.caps, c)
	r.mu.Unlock()
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.caps))
	for i, c := range r.caps {
		out[i] = string(c)
	}
	sort.Strings(out)
	return out
}

// manualIdle holds the callback until the test releases it.
type manualIdle struct {
	fn        func()
	cancelled bool
}

func (m *manualIdle) Schedule(fn func()) func() {
	m.fn = fn
	return func() { m.cancelled = true }
}

func waitProgress(t *testing.T, s *Session, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if done, _ := s.Progress(); done >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	done, total := s.Progress()
	t.Fatalf("progress stalled at %d/%d, wanted %d", done, total, want)
}

func TestListContextRunsOnlyCriticalUntilInteraction(t *testing.T) {
	rec := &recorder{}
	s := NewSession(entity.ChainTezos, priority.ContextList, rec.runner, zap.NewNop())
	defer s.Close()

	s.Start(context.Background())
	waitProgress(t, s, 2)

	assert.ElementsMatch(t, []string{"balance", "delegation"}, rec.sorted())

	s.Interact(context.Background())
	waitProgress(t, s, 6)
	assert.ElementsMatch(t,
		[]string{"balance", "delegation", "domain", "history", "tokens", "transactions"},
		rec.sorted())
}

func TestDetailContextRunsHighImmediately(t *testing.T) {
	rec := &recorder{}
	idle := &manualIdle{}
	s := NewSession(entity.ChainTezos, priority.ContextDetail, rec.runner, zap.NewNop(),
		WithIdleScheduler(idle))
	defer s.Close()

	s.Start(context.Background())
	waitProgress(t, s, 4)
	assert.ElementsMatch(t, []string{"balance", "delegation", "domain", "tokens"}, rec.sorted())

	// Detail context enables background loading, so the low tier is parked
	// on the idle scheduler.
	require.NotNil(t, idle.fn)
	idle.fn()
	waitProgress(t, s, 6)
	assert.Contains(t, rec.sorted(), "rewards")
	assert.Contains(t, rec.sorted(), "delegation-details")
}

func TestBackgroundContextRunsEverything(t *testing.T) {
	rec := &recorder{}
	idle := &manualIdle{}
	s := NewSession(entity.ChainTezos, priority.ContextBackground, rec.runner, zap.NewNop(),
		WithIdleScheduler(idle))
	defer s.Close()

	s.Start(context.Background())
	require.NotNil(t, idle.fn)
	idle.fn()
	waitProgress(t, s, 8)

	_, total := s.Progress()
	assert.Equal(t, 8, total)
}

func TestInteractIsIdempotent(t *testing.T) {
	rec := &recorder{}
	s := NewSession(entity.ChainTezos, priority.ContextList, rec.runner, zap.NewNop())
	defer s.Close()

	s.Start(context.Background())
	s.Interact(context.Background())
	s.Interact(context.Background())
	s.Interact(context.Background())
	waitProgress(t, s, 6)

	// Three interactions must not triple-run the deferred tiers.
	time.Sleep(50 * time.Millisecond)
	done, _ := s.Progress()
	assert.Equal(t, 6, done)
}

func TestListContextNeverRunsLowTier(t *testing.T) {
	rec := &recorder{}
	idle := &manualIdle{}
	s := NewSession(entity.ChainTezos, priority.ContextList, rec.runner, zap.NewNop(),
		WithIdleScheduler(idle))
	defer s.Close()

	s.Start(context.Background())
	waitProgress(t, s, 2)

	// List context does not enable background loading, so nothing was parked
	// on the idle scheduler.
	assert.Nil(t, idle.fn)
}

func TestCloseCancelsPendingIdleWork(t *testing.T) {
	rec := &recorder{}
	idle := &manualIdle{}
	s := NewSession(entity.ChainTezos, priority.ContextDetail, rec.runner, zap.NewNop(),
		WithIdleScheduler(idle))

	s.Start(context.Background())
	require.NotNil(t, idle.fn)

	s.Close()
	assert.True(t, idle.cancelled)

	// A closed session ignores late idle callbacks and interactions.
	idle.fn()
	s.Interact(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, rec.sorted(), "rewards")
}

func TestEtherlinkSessionHasFiveTasks(t *testing.T) {
	rec := &recorder{}
	s := NewSession(entity.ChainEtherlink, priority.ContextBackground, rec.runner, zap.NewNop())
	defer s.Close()

	s.Start(context.Background())
	waitProgress(t, s, 5)
	assert.ElementsMatch(t,
		[]string{"balance", "counters", "history", "tokens", "transactions"},
		rec.sorted())
}

func TestFailedTaskStillAdvancesProgress(t *testing.T) {
	// The runner owns errors; the session only counts settlement. A runner
	// that does nothing (as after an upstream failure) still settles.
	s := NewSession(entity.ChainEtherlink, priority.ContextBackground,
		func(context.Context, priority.Capability) {}, zap.NewNop())
	defer s.Close()

	s.Start(context.Background())
	waitProgress(t, s, 5)
}
