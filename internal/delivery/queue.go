package delivery

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// Status is the lifecycle state of a queued message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// QueuedMessage is one pending redelivery unit: an event bound to a single
// target connection. The queue is its only writer after enqueue.
type QueuedMessage struct {
	ID           string
	Event        *domain.Event
	ConnectionID string
	EnqueuedAt   time.Time
	Attempts     int
	MaxAttempts  int
	NextRetryAt  time.Time
	Status       Status
}

// DeliverFunc attempts one transport delivery to a connection.
type DeliverFunc func(connID string, event *domain.Event) error

// Stats are cumulative queue outcome counters.
type Stats struct {
	Delivered int64
	Failed    int64
	Expired   int64
	Retried   int64
}

// Queue retries undelivered per-connection messages with backoff until max
// attempts or TTL expiry. Entries are held in a min-heap on NextRetryAt so
// the dispatch loop sleeps until the next due entry instead of polling.
type Queue struct {
	mu      sync.Mutex
	entries msgHeap
	stats   Stats
	stopped bool

	policy  Policy
	ttl     time.Duration
	deliver DeliverFunc

	wake   chan struct{}
	cancel context.CancelFunc
}

func NewQueue(policy Policy, ttl time.Duration, deliver DeliverFunc) *Queue {
	return &Queue{
		policy:  policy,
		ttl:     ttl,
		deliver: deliver,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue schedules a failed delivery for retry. The first retry waits the
// policy's base delay; the direct attempt already failed.
func (q *Queue) Enqueue(event *domain.Event, connID string) error {
	now := time.Now()
	msg := &QueuedMessage{
		ID:           uuid.New().String(),
		Event:        event,
		ConnectionID: connID,
		EnqueuedAt:   now,
		MaxAttempts:  q.policy.MaxAttempts,
		NextRetryAt:  now.Add(q.policy.Delay(0)),
		Status:       StatusPending,
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return domain.ErrQueueStopped
	}
	heap.Push(&q.entries, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	l := log.L()
	l.Debug().
		Str(log.FieldEventID, event.ID).
		Str(log.FieldConnectionID, connID).
		Time("next_retry_at", msg.NextRetryAt).
		Msg("delivery queued for retry")
	return nil
}

// Len returns the number of messages awaiting redelivery.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Snapshot returns the cumulative outcome counters.
func (q *Queue) Snapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Start launches the background dispatch loop.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	go q.run(ctx)
}

// Stop halts the dispatch loop and rejects further enqueues.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		next, ok := q.nextDue()
		var timer *time.Timer
		var timerC <-chan time.Time
		if ok {
			wait := time.Until(next)
			if wait <= 0 {
				q.dispatchDue(time.Now())
				continue
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (q *Queue) nextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries.Len() == 0 {
		return time.Time{}, false
	}
	return q.entries[0].NextRetryAt, true
}

// dispatchDue pops every entry whose retry time has elapsed and attempts
// redelivery. Transport calls happen outside the queue lock.
func (q *Queue) dispatchDue(now time.Time) {
	q.mu.Lock()
	var due []*QueuedMessage
	for q.entries.Len() > 0 && !q.entries[0].NextRetryAt.After(now) {
		msg := heap.Pop(&q.entries).(*QueuedMessage)
		msg.Status = StatusProcessing
		due = append(due, msg)
	}
	q.mu.Unlock()

	for _, msg := range due {
		q.attempt(msg, now)
	}
}

func (q *Queue) attempt(msg *QueuedMessage, now time.Time) {
	l := log.L()

	// Stale real-time events are not worth redelivering.
	if q.ttl > 0 && now.Sub(msg.EnqueuedAt) > q.ttl {
		msg.Status = StatusExpired
		q.count(func(s *Stats) { s.Expired++ })
		l.Debug().
			Str(log.FieldEventID, msg.Event.ID).
			Str(log.FieldConnectionID, msg.ConnectionID).
			Msg("queued delivery expired")
		return
	}

	err := q.deliver(msg.ConnectionID, msg.Event)
	if err == nil {
		msg.Status = StatusDelivered
		q.count(func(s *Stats) { s.Delivered++ })
		l.Debug().
			Str(log.FieldEventID, msg.Event.ID).
			Str(log.FieldConnectionID, msg.ConnectionID).
			Int(log.FieldAttempt, msg.Attempts+1).
			Msg("redelivery succeeded")
		return
	}

	msg.Attempts++
	msg.Event.RetryCount = msg.Attempts

	if q.policy.Exhausted(msg.Attempts) {
		msg.Status = StatusFailed
		q.count(func(s *Stats) { s.Failed++ })
		l.Warn().
			Str(log.FieldEventID, msg.Event.ID).
			Str(log.FieldConnectionID, msg.ConnectionID).
			Int(log.FieldAttempt, msg.Attempts).
			Err(err).
			Msg("delivery exhausted")
		return
	}

	msg.Status = StatusPending
	msg.NextRetryAt = now.Add(q.policy.Delay(msg.Attempts))
	q.count(func(s *Stats) { s.Retried++ })

	q.mu.Lock()
	if !q.stopped {
		heap.Push(&q.entries, msg)
	}
	q.mu.Unlock()
}

func (q *Queue) count(apply func(*Stats)) {
	q.mu.Lock()
	apply(&q.stats)
	q.mu.Unlock()
}

// msgHeap is a min-heap ordered by NextRetryAt.
type msgHeap []*QueuedMessage

func (h msgHeap) Len() int            { return len(h) }
func (h msgHeap) Less(i, j int) bool  { return h[i].NextRetryAt.Before(h[j].NextRetryAt) }
func (h msgHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *msgHeap) Push(x interface{}) { *h = append(*h, x.(*QueuedMessage)) }
func (h *msgHeap) Pop() interface{} {
	old := *h
	n := len(old)
	msg := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return msg
}
