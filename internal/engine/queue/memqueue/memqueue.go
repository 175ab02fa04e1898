// Package memqueue is an in-process Queue implementation backed by a
// time-ordered heap, used for unit tests and single-process deployments
// that don't need a shared broker. It has no domain dependency to wire —
// see DESIGN.md for why this one transport stays stdlib-only.
package memqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue"
)

// entry is one item in the visibility-ordered heap.
type entry struct {
	visibleAt time.Time
	msg       message.Message
	token     string
	index     int
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].visibleAt.Before(h[j].visibleAt) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue implements queue.Queue in-process.
type Queue struct {
	mu              sync.Mutex
	pending         entryHeap
	inflight        map[string]*entry
	visibilityTimeo time.Duration
	closed          bool
}

// New returns a Queue with the given visibility timeout applied to every
// polled-but-not-yet-acked message.
func New(visibilityTimeout time.Duration) *Queue {
	return &Queue{
		inflight:        map[string]*entry{},
		visibilityTimeo: visibilityTimeout,
	}
}

func (q *Queue) Push(ctx context.Context, msg message.Message) error {
	return q.PushDelay(ctx, msg, 0)
}

func (q *Queue) PushDelay(ctx context.Context, msg message.Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return engineerr.ErrQueueClosed
	}
	heap.Push(&q.pending, &entry{visibleAt: time.Now().Add(delay), msg: msg, token: uuid.NewString()})
	return nil
}

func (q *Queue) Poll(ctx context.Context) (queue.Delivery, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.Delivery{}, false, engineerr.ErrQueueClosed
	}
	if q.pending.Len() == 0 {
		return queue.Delivery{}, false, nil
	}
	if q.pending[0].visibleAt.After(time.Now()) {
		return queue.Delivery{}, false, nil
	}
	e := heap.Pop(&q.pending).(*entry)
	q.inflight[e.token] = e
	if q.visibilityTimeo > 0 {
		token := e.token
		time.AfterFunc(q.visibilityTimeo, func() {
			q.requeueIfStillInflight(token)
		})
	}
	return queue.Delivery{Message: e.msg, Token: e.token}, true, nil
}

func (q *Queue) requeueIfStillInflight(token string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.inflight[token]
	if !ok {
		return
	}
	delete(q.inflight, token)
	e.visibleAt = time.Now()
	heap.Push(&q.pending, e)
}

func (q *Queue) Ack(ctx context.Context, token queue.AckToken) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, _ := token.(string)
	delete(q.inflight, t)
	return nil
}

func (q *Queue) Nack(ctx context.Context, token queue.AckToken) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, _ := token.(string)
	e, ok := q.inflight[t]
	if !ok {
		return nil
	}
	delete(q.inflight, t)
	e.visibleAt = time.Now()
	heap.Push(&q.pending, e)
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
