/*
Package worker runs the queue-backed handler dispatch loop: poll ->
dispatch -> ack/nack. N goroutines each run an independent poll loop with
a per-message heartbeat goroutine, and panic recovery converts a
recovered panic into a failure instead of crashing the process. The
queue's own visibility timeout — not a database row lock — is what
prevents two workers from processing the same message at once.

Idea: the pool is infrastructure. It knows nothing of stage/task
semantics; all of that lives in the Dispatcher it calls into, which only
interacts through the store, registry, and events sink.
*/
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue"
	"github.com/neurobridge-backend/orcaengine/internal/platform/elog"
)

// Dispatcher resolves a Message to its handler and runs it. Implemented by
// internal/engine/handlers.Engine; kept as an interface here so the pool
// has no import-time dependency on the handler set.
type Dispatcher interface {
	Handle(ctx context.Context, msg message.Message) error
}

// Options configures a Pool.
type Options struct {
	Concurrency     int
	MinPollInterval time.Duration
	MaxPollInterval time.Duration
	HeartbeatEvery  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.MinPollInterval <= 0 {
		o.MinPollInterval = 50 * time.Millisecond
	}
	if o.MaxPollInterval <= 0 {
		o.MaxPollInterval = 2 * time.Second
	}
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = 10 * time.Second
	}
	return o
}

// Pool runs Options.Concurrency worker goroutines against q, each
// dispatching polled messages to d.
type Pool struct {
	q    queue.Queue
	d    Dispatcher
	log  *elog.Logger
	opts Options
}

// New constructs a Pool. log may be nil, in which case pool events are
// dropped rather than logged.
func New(q queue.Queue, d Dispatcher, log *elog.Logger, opts Options) *Pool {
	return &Pool{q: q, d: d, log: log, opts: opts.withDefaults()}
}

/*
Run launches the worker pool and blocks until ctx is canceled. Worker
goroutines log a queue.Poll failure and retry after a pause instead of
returning it, so Run returns nil.
Concurrency is a pure configuration knob: correctness must not depend on
its value being 1, since every handler is required to be idempotent
under at-least-once redelivery.
*/
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Concurrency; i++ {
		workerID := i
		g.Go(func() error {
			p.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	backoff := p.opts.MinPollInterval
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d, ok, err := p.q.Poll(ctx)
		if err != nil {
			p.logf("warn", "poll failed", "worker_id", workerID, "error", err)
			sleep(ctx, backoff)
			continue
		}
		if !ok {
			sleep(ctx, backoff)
			backoff = nextBackoff(backoff, p.opts.MaxPollInterval)
			continue
		}
		backoff = p.opts.MinPollInterval

		p.handle(ctx, workerID, d)
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, d queue.Delivery) {
	stopHB := p.startHeartbeat(ctx, d)
	defer stopHB()

	var handlerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.logf("error", "handler panic",
					"worker_id", workerID, "kind", d.Message.Kind, "panic", r)
				handlerErr = errFromRecover(r)
			}
		}()
		handlerErr = p.d.Handle(ctx, d.Message)
	}()

	if handlerErr != nil {
		p.logf("warn", "handler returned error, nacking for redelivery",
			"worker_id", workerID, "kind", d.Message.Kind, "error", handlerErr)
		_ = p.q.Nack(ctx, d.Token)
		return
	}
	_ = p.q.Ack(ctx, d.Token)
}

// startHeartbeat is a no-op ticker for transports (like sqsqueue) whose
// visibility timeout could otherwise expire mid-dispatch; handlers are
// expected to be short, so today this only logs a liveness line for
// observability rather than extending any lease.
func (p *Pool) startHeartbeat(ctx context.Context, d queue.Delivery) func() {
	if p.opts.HeartbeatEvery <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(p.opts.HeartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				p.logf("debug", "still processing", "kind", d.Message.Kind, "execution_id", d.Message.ExecutionID)
			}
		}
	}()
	return func() { close(done) }
}

func (p *Pool) logf(level, msg string, kv ...interface{}) {
	if p.log == nil {
		return
	}
	switch level {
	case "error":
		p.log.Error(msg, kv...)
	case "warn":
		p.log.Warn(msg, kv...)
	case "debug":
		p.log.Debug(msg, kv...)
	default:
		p.log.Info(msg, kv...)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

type panicError struct{ val any }

func (e *panicError) Error() string { return "panic: unexpected error" }

func errFromRecover(v any) error { return &panicError{val: v} }
