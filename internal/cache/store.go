package cache

import (
	"sort"
	"sync"
	"time"

	"tezfolio/internal/metrics"
	"tezfolio/internal/priority"

	"go.uber.org/zap"
)

// Key identifies one cached fetch result.
type Key struct {
	Capability priority.Capability
	Address    string
	Params     string
}

type entry struct {
	value         any
	dataUpdatedAt time.Time
	staleTime     time.Duration
	gcTime        time.Duration
	observers     int
}

const (
	// gcFactor derives the garbage-collection horizon from the staleness
	// horizon when none is given explicitly.
	gcFactor = 3

	defaultSoftCap = 100
	defaultTrimTo  = 80

	defaultAbsoluteCeiling = 24 * time.Hour
	ceilingSweepInterval   = time.Hour
	sizeSweepInterval      = 10 * time.Minute
	warmingDelay           = 2 * time.Second
)

// Store is the process-wide cache of fetch results. Entries carry a staleness
// horizon (reads older than it are treated as misses) and a gc horizon
// (unobserved entries older than it are reaped by the sweeps).
type Store struct {
	logger *zap.Logger
	now    func() time.Time

	softCap         int
	trimTo          int
	absoluteCeiling time.Duration

	mu      sync.Mutex
	entries map[Key]*entry

	stopOnce sync.Once
	stop     chan struct{}
}

// Option tweaks Store construction.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSizeCap overrides the soft cap and trim target.
func WithSizeCap(softCap, trimTo int) Option {
	return func(s *Store) {
		s.softCap = softCap
		s.trimTo = trimTo
	}
}

// NewStore creates an empty cache store. Call StartSweeps to enable the
// background reapers.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		logger:          logger.Named("CacheStore"),
		now:             time.Now,
		softCap:         defaultSoftCap,
		trimTo:          defaultTrimTo,
		absoluteCeiling: defaultAbsoluteCeiling,
		entries:         make(map[Key]*entry),
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached value for key if one exists and is still fresh.
// A stale or absent entry counts as a miss.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.now().Sub(e.dataUpdatedAt) >= e.staleTime {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return e.value, true
}

// Peek returns the cached value regardless of freshness, with its update time.
func (s *Store) Peek(key Key) (any, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return e.value, e.dataUpdatedAt, true
}

// Set stores a successful fetch result. The gc horizon defaults to three
// times the staleness horizon. Observer count survives overwrites.
func (s *Store) Set(key Key, value any, staleTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	observers := 0
	if prev, ok := s.entries[key]; ok {
		observers = prev.observers
	}
	s.entries[key] = &entry{
		value:         value,
		dataUpdatedAt: s.now(),
		staleTime:     staleTime,
		gcTime:        staleTime * gcFactor,
		observers:     observers,
	}
}

// Observe marks key as actively watched, shielding it from the size sweep.
func (s *Store) Observe(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.observers++
		return
	}
	// Observing an absent key pins the slot so the entry written by the
	// in-flight fetch is not immediately sweep-eligible.
	s.entries[key] = &entry{observers: 1, dataUpdatedAt: s.now()}
}

// Release drops one observer from key.
func (s *Store) Release(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.observers > 0 {
		e.observers--
	}
}

// Invalidate marks every entry matching pred as stale without discarding its
// value, forcing the next Get to miss and refetch. Used by the reconnect
// listener to invalidate whole namespaces.
func (s *Store) Invalidate(pred func(Key) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if pred(k) {
			e.dataUpdatedAt = time.Time{}
			n++
		}
	}
	return n
}

// Len reports the current entry count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeps launches the two background reapers: an hourly sweep enforcing
// the absolute age ceiling and a ten-minute sweep enforcing the size cap and
// the per-entry gc horizon. Stop with Close.
func (s *Store) StartSweeps() {
	go s.loop(ceilingSweepInterval, func() { s.sweepCeiling(s.now()) })
	go s.loop(sizeSweepInterval, func() { s.sweepSize(s.now()) })
}

func (s *Store) loop(interval time.Duration, sweep func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-s.stop:
			return
		}
	}
}

// sweepCeiling removes any entry older than the absolute ceiling regardless
// of observer count. Safety net against unbounded growth.
func (s *Store) sweepCeiling(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if now.Sub(e.dataUpdatedAt) > s.absoluteCeiling {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues("ceiling").Add(float64(removed))
		s.logger.Debug("ceiling sweep removed entries", zap.Int("removed", removed))
	}
}

// sweepSize reaps unobserved entries past their gc horizon and, when the
// entry count exceeds the soft cap, trims unobserved entries oldest-first
// down to the target. Observed entries are never trimmed.
func (s *Store) sweepSize(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.observers == 0 && e.gcTime > 0 && now.Sub(e.dataUpdatedAt) > e.gcTime {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues("gc").Add(float64(removed))
	}

	if len(s.entries) <= s.softCap {
		return
	}

	type candidate struct {
		key Key
		at  time.Time
	}
	candidates := make([]candidate, 0, len(s.entries))
	for k, e := range s.entries {
		if e.observers == 0 {
			candidates = append(candidates, candidate{key: k, at: e.dataUpdatedAt})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].at.Before(candidates[j].at)
	})

	trimmed := 0
	for _, c := range candidates {
		if len(s.entries) <= s.trimTo {
			break
		}
		delete(s.entries, c.key)
		trimmed++
	}
	if trimmed > 0 {
		metrics.CacheEvictions.WithLabelValues("size").Add(float64(trimmed))
		s.logger.Debug("size sweep trimmed entries",
			zap.Int("trimmed", trimmed),
			zap.Int("remaining", len(s.entries)))
	}
}

// Warm schedules warm after a short startup delay, typically to pre-fetch the
// primary chain asset's fiat price and avoid a cold-start flash. Failures are
// swallowed.
func (s *Store) Warm(warm func() error) *time.Timer {
	return time.AfterFunc(warmingDelay, func() {
		if err := warm(); err != nil {
			s.logger.Debug("cache warming failed", zap.Error(err))
		}
	})
}

// Close stops the background sweeps.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}
