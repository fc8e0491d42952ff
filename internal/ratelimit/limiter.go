package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tezfolio/internal/metrics"
)

// Queue identifies one upstream provider queue. Calls sharing a queue execute
// strictly serially with a minimum spacing between starts; different queues
// proceed independently.
type Queue string

const (
	// QueueTzkt serializes calls to the Tezos explorer API. Conservative
	// single-request-per-second posture.
	QueueTzkt Queue = "tzkt"
	// QueueEtherlink serializes calls to the Etherlink RPC and explorer.
	QueueEtherlink Queue = "etherlink"
	// QueuePricing serializes calls to the fiat spot-price provider.
	QueuePricing Queue = "pricing"
)

// DefaultDelays holds the per-provider minimum inter-call spacing.
var DefaultDelays = map[Queue]time.Duration{
	QueueTzkt:      1000 * time.Millisecond,
	QueueEtherlink: 200 * time.Millisecond,
	QueuePricing:   500 * time.Millisecond,
}

const submitBuffer = 256

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

type providerQueue struct {
	jobs    chan job
	limiter *rate.Limiter
}

// Limiter owns one serialized call queue per upstream provider. It is a
// long-lived service constructed once at process start and injected into
// every fetcher.
type Limiter struct {
	logger *zap.Logger

	mu     sync.Mutex
	queues map[Queue]*providerQueue
	closed bool

	// submitters counts Do calls between the closed check and their enqueue;
	// Close waits for it before closing the job channels.
	submitters sync.WaitGroup
	wg         sync.WaitGroup
}

// NewLimiter creates a Limiter with one worker per configured queue.
func NewLimiter(delays map[Queue]time.Duration, logger *zap.Logger) *Limiter {
	l := &Limiter{
		logger: logger.Named("RateLimiter"),
		queues: make(map[Queue]*providerQueue, len(delays)),
	}
	for q, delay := range delays {
		pq := &providerQueue{
			jobs:    make(chan job, submitBuffer),
			limiter: rate.NewLimiter(rate.Every(delay), 1),
		}
		l.queues[q] = pq
		l.wg.Add(1)
		go l.run(q, pq)
	}
	return l
}

func (l *Limiter) run(name Queue, pq *providerQueue) {
	defer l.wg.Done()
	for j := range pq.jobs {
		metrics.LimiterQueueDepth.WithLabelValues(string(name)).Dec()
		if err := pq.limiter.Wait(j.ctx); err != nil {
			j.done <- err
			continue
		}
		// The call runs synchronously so a slow or failed call still
		// occupies its turn in the queue.
		j.done <- j.fn(j.ctx)
	}
	l.logger.Debug("provider queue drained", zap.String("queue", string(name)))
}

// Do submits fn to the named queue and blocks until it has executed in turn.
// Any error from fn propagates unchanged; the limiter itself only fails when
// the queue is unknown, the limiter is closed, or ctx expires while waiting.
func (l *Limiter) Do(ctx context.Context, q Queue, fn func(context.Context) error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("rate limiter is closed")
	}
	pq, ok := l.queues[q]
	if ok {
		l.submitters.Add(1)
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown provider queue %q", q)
	}

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case pq.jobs <- j:
		metrics.LimiterQueueDepth.WithLabelValues(string(q)).Inc()
		l.submitters.Done()
	case <-ctx.Done():
		l.submitters.Done()
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The job may still execute; its slot is burned either way.
		return ctx.Err()
	}
}

// Close stops accepting new calls and waits for queued calls to drain. It
// waits out in-flight submissions before closing the job channels so a Do
// racing Close never sends on a closed channel.
func (l *Limiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.submitters.Wait()
	for _, pq := range l.queues {
		close(pq.jobs)
	}
	l.wg.Wait()
}
