package worker

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Handle controls one running interview.
type Handle struct {
	Room   string
	Cancel func()
}

// SessionInfo describes a tracked session.
type SessionInfo struct {
	JobID     string    `json:"job_id"`
	Room      string    `json:"room"`
	StartedAt time.Time `json:"started_at"`
}

// Tracker follows running sessions so shutdown can cancel them and wait
// for their teardown.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
	now      func() time.Time
}

type trackedSession struct {
	handle    Handle
	startedAt time.Time
	once      sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
		now:      time.Now,
	}
}

// Register tracks a session under jobID. It returns ok=false and leaves the
// running session alone when jobID is already tracked.
func (t *Tracker) Register(jobID string, h Handle) (unregister func(), ok bool) {
	if t == nil {
		return func() {}, true
	}

	entry := &trackedSession{handle: h, startedAt: t.now()}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	if _, dup := t.sessions[jobID]; dup {
		return func() {}, false
	}
	t.sessions[jobID] = entry
	t.wg.Add(1)

	return func() { t.unregister(jobID, entry) }, true
}

// Has reports whether jobID is tracked.
func (t *Tracker) Has(jobID string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[jobID]
	return ok
}

func (t *Tracker) unregister(jobID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[jobID] == entry {
			delete(t.sessions, jobID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot lists tracked sessions, oldest first.
func (t *Tracker) Snapshot() []SessionInfo {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	out := make([]SessionInfo, 0, len(t.sessions))
	for id, entry := range t.sessions {
		out = append(out, SessionInfo{JobID: id, Room: entry.handle.Room, StartedAt: entry.startedAt})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// CancelAll cancels every tracked session. Cancelled sessions still run
// their teardown; use Wait to block until they have.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered. It returns
// false if ctx ends first.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
