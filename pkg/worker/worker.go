// Package worker runs many interview sessions in one process.
//
// A Worker bounds concurrency and tracks running sessions for graceful
// drain. Assignments arrive from a Dispatcher (worker mode) or directly
// through RunOne (single-job mode). An ops HTTP server exposes health,
// readiness and Prometheus metrics.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-interviewer/pkg/interview"
)

var (
	// ErrAtCapacity means every session slot is taken.
	ErrAtCapacity = errors.New("worker at capacity")
	// ErrDraining means Shutdown has begun and no new sessions start.
	ErrDraining = errors.New("worker is draining")
	// ErrDuplicateJob means a session with the same job id is still running.
	ErrDuplicateJob = errors.New("job already running")
)

// Assignment asks the worker to interview in a room.
type Assignment struct {
	JobID string `json:"job_id"`
	Room  string `json:"room"`
}

// Result reports how an assigned session ended.
type Result struct {
	JobID     string
	Room      string
	Outcome   interview.Outcome
	Err       error
	StartedAt time.Time
}

// Runner runs one session to completion.
type Runner interface {
	Run(ctx context.Context, a Assignment) (interview.Outcome, error)
}

// RunFunc adapts a function to Runner.
type RunFunc func(ctx context.Context, a Assignment) (interview.Outcome, error)

func (f RunFunc) Run(ctx context.Context, a Assignment) (interview.Outcome, error) { return f(ctx, a) }

// Options configures a Worker.
type Options struct {
	// ID identifies the worker to the dispatcher. Generated when empty.
	ID string
	// MaxSessions bounds concurrent sessions. Defaults to 1.
	MaxSessions int
	Runner      Runner
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Worker runs up to Capacity sessions at once.
type Worker struct {
	id      string
	runner  Runner
	metrics *Metrics
	logger  *slog.Logger
	tracker *Tracker

	// mu orders admission against Shutdown: a session admitted under mu is
	// always visible to the Shutdown that follows.
	mu       sync.Mutex
	slots    chan struct{}
	draining atomic.Bool
	wg       sync.WaitGroup
}

// New returns an idle worker.
func New(opts Options) *Worker {
	if opts.ID == "" {
		opts.ID = "worker-" + uuid.NewString()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		id:      opts.ID,
		runner:  opts.Runner,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("worker_id", opts.ID),
		tracker: NewTracker(),
		slots:   make(chan struct{}, opts.MaxSessions),
	}
}

// ID returns the worker id reported to the dispatcher.
func (w *Worker) ID() string { return w.id }

// Capacity returns the maximum number of concurrent sessions.
func (w *Worker) Capacity() int { return cap(w.slots) }

// Active returns the number of sessions holding a slot.
func (w *Worker) Active() int { return len(w.slots) }

func (w *Worker) Draining() bool { return w.draining.Load() }

// Ready reports whether the worker would accept another assignment.
func (w *Worker) Ready() bool {
	return !w.Draining() && w.Active() < w.Capacity()
}

func (w *Worker) Sessions() []SessionInfo { return w.tracker.Snapshot() }

// Start runs a in the background and calls done with its result. It fails
// fast with ErrDraining, ErrDuplicateJob or ErrAtCapacity instead of
// queueing.
//
// The session does not inherit ctx cancellation; only Shutdown cancels it.
func (w *Worker) Start(ctx context.Context, a Assignment, done func(Result)) error {
	if a.JobID == "" {
		a.JobID = uuid.NewString()
	}
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	w.mu.Lock()
	unregister, err := w.admit(a, cancel)
	if err != nil {
		w.mu.Unlock()
		cancel()
		return err
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer func() { <-w.slots }()
		defer unregister()
		defer cancel()

		res := w.run(sessionCtx, a)
		if done != nil {
			done(res)
		}
	}()
	return nil
}

// RunOne runs a in the calling goroutine. It is used in single-job mode
// and still honors capacity and drain.
func (w *Worker) RunOne(ctx context.Context, a Assignment) (Result, error) {
	if a.JobID == "" {
		a.JobID = uuid.NewString()
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	unregister, err := w.admit(a, cancel)
	w.mu.Unlock()
	if err != nil {
		return Result{}, err
	}
	defer func() { <-w.slots }()
	defer unregister()

	res := w.run(sessionCtx, a)
	return res, res.Err
}

// admit takes a slot and tracks a. Callers hold w.mu.
func (w *Worker) admit(a Assignment, cancel func()) (unregister func(), err error) {
	if w.Draining() {
		w.metrics.RecordAssignment("draining")
		return nil, ErrDraining
	}
	if w.tracker.Has(a.JobID) {
		w.metrics.RecordAssignment("duplicate")
		return nil, ErrDuplicateJob
	}
	select {
	case w.slots <- struct{}{}:
	default:
		w.metrics.RecordAssignment("at_capacity")
		return nil, ErrAtCapacity
	}
	unregister, ok := w.tracker.Register(a.JobID, Handle{Room: a.Room, Cancel: cancel})
	if !ok {
		<-w.slots
		w.metrics.RecordAssignment("duplicate")
		return nil, ErrDuplicateJob
	}
	w.metrics.RecordAssignment("accepted")
	return unregister, nil
}

func (w *Worker) run(ctx context.Context, a Assignment) Result {
	res := Result{JobID: a.JobID, Room: a.Room, StartedAt: time.Now()}
	logger := w.logger.With("job_id", a.JobID, "room", a.Room)

	if w.runner == nil {
		res.Err = errors.New("worker has no runner")
		logger.Error("session not started", "error", res.Err)
		return res
	}

	logger.Info("session assigned")
	w.metrics.RecordSessionStart()
	res.Outcome, res.Err = w.runner.Run(ctx, a)
	w.metrics.RecordSessionEnd(res.Outcome, res.Err)

	if res.Err != nil {
		logger.Warn("session failed", "end_reason", res.Outcome.EndReason, "error", res.Err)
	} else {
		logger.Info("session finished",
			"end_reason", res.Outcome.EndReason,
			"persisted", res.Outcome.Persisted,
			"duration", res.Outcome.Duration,
		)
	}
	return res
}

// Shutdown stops accepting work, cancels running sessions and waits for
// their teardown. It returns false if ctx ends first.
func (w *Worker) Shutdown(ctx context.Context) bool {
	w.mu.Lock()
	w.draining.Store(true)
	w.mu.Unlock()
	if n := w.tracker.CancelAll(); n > 0 {
		w.logger.Info("cancelling sessions for shutdown", "sessions", n)
	}
	if !w.tracker.Wait(ctx) {
		w.logger.Warn("shutdown grace period elapsed", "sessions", w.tracker.Count())
		return false
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
