package job

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	ierrors "github.com/cub1z/msh/internal/errors"
)

// ErrFull indicates the Table has no free slots.
var ErrFull = ierrors.Wrap(errFull{})

type errFull struct{}

func (errFull) Error() string { return "job table full" }

// Table is a fixed-capacity registry of active jobs. It is the single
// synchronization point for job state: every mutation — from the REPL
// Driver, the Waiter/Reaper, the Signal Router, or the "bg" built-in — goes
// through one of its methods, which lock internally. Callers never get a
// *Job pointer to mutate directly; reads return a value copy (see At,
// SnapshotSortedByID) so they can't race with a concurrent mutation.
type Table struct {
	mu sync.Mutex

	slots  []*Job
	nextID int

	lastStoppedJobID int
	stoppedCount     int
	bgCount          int
}

// NewTable creates a Table with the given slot capacity.
func NewTable(capacity int) *Table {
	return &Table{
		slots:            make([]*Job, capacity),
		nextID:           1,
		lastStoppedJobID: -1,
	}
}

// Allocate reserves the first free slot for a new job, assigning it the next
// monotonic id. Returns ErrFull if no slot is free.
func (t *Table) Allocate(commandText string, background bool) (*Job, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.slots {
		if s != nil {
			continue
		}
		j := &Job{
			ID:          t.nextID,
			State:       Running,
			Background:  background,
			CommandText: commandText,
			token:       uuid.New(),
		}
		t.nextID++
		t.slots[i] = j
		cp := *j
		return &cp, i, nil
	}
	return nil, 0, ErrFull
}

// Free clears a slot, making it reusable. No-op if the slot is already free.
func (t *Table) Free(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[index]
	t.slots[index] = nil
	if s == nil || s.State != Stopped {
		return
	}
	t.stoppedCount--
	if t.lastStoppedJobID == s.ID {
		t.lastStoppedJobID = t.highestStoppedJobIDLocked()
	}
}

// At returns a value copy of the job in the given slot, or ok=false if the
// slot is free.
func (t *Table) At(index int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[index]
	if s == nil {
		return Job{}, false
	}
	return *s, true
}

// FindByID returns a value copy of the live job with the given id.
func (t *Table) FindByID(id int) (Job, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s != nil && s.ID == id {
			return *s, i, true
		}
	}
	return Job{}, 0, false
}

// ForegroundRunning returns the unique job that is Running and not
// Background, if one exists. Invariant 3 (§3) guarantees there is at most
// one.
func (t *Table) ForegroundRunning() (Job, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s != nil && s.State == Running && !s.Background {
			return *s, i, true
		}
	}
	return Job{}, 0, false
}

// SnapshotSortedByID returns a value-copy snapshot of all live jobs, sorted
// by ascending id, with free slots filtered out. Used for display (e.g. the
// "jobs" built-in), which has no need for slot indices.
func (t *Table) SnapshotSortedByID() []Job {
	live := t.LiveSortedByID()
	out := make([]Job, len(live))
	for i, ij := range live {
		out[i] = ij.Job
	}
	return out
}

// IndexedJob pairs a job with its table slot index, for callers (the
// Reaper) that need to address the slot the job came from.
type IndexedJob struct {
	Index int
	Job   Job
}

// LiveSortedByID returns every live job alongside its slot index, sorted by
// ascending id.
func (t *Table) LiveSortedByID() []IndexedJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]IndexedJob, 0, len(t.slots))
	for i, s := range t.slots {
		if s != nil {
			out = append(out, IndexedJob{Index: i, Job: *s})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Job.ID < out[b].Job.ID })
	return out
}

// AppendPID records a newly-forked child's pid into the job at index, in
// pipeline order, and marks it as not-yet-reaped. Per §5's ordering
// guarantee, this must be called before any wait begins for that pid.
func (t *Table) AppendPID(index int, pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[index]
	if s == nil {
		return
	}
	s.Pids = append(s.Pids, pid)
	s.remaining = append(s.remaining, pid)
}

// MarkReaped removes pid from the job's remaining (un-reaped) set. It
// returns the number of children still outstanding; once zero the job has
// no descriptors or children left (invariant 5) and the caller should free
// its slot.
func (t *Table) MarkReaped(index int, pid int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[index]
	if s == nil {
		return 0
	}
	for i, p := range s.remaining {
		if p == pid {
			s.remaining = append(s.remaining[:i], s.remaining[i+1:]...)
			break
		}
	}
	return len(s.remaining)
}

// TransitionToStopped marks the job Stopped and updates the stopped-job
// bookkeeping (§4.E). Idempotent: a job already Stopped is left untouched,
// so both the Signal Router (on SIGTSTP delivery) and the Waiter (on
// observing WUNTRACED) can call this without double-counting.
func (t *Table) TransitionToStopped(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[index]
	if s == nil || s.State == Stopped {
		return
	}
	s.State = Stopped
	t.lastStoppedJobID = s.ID
	t.stoppedCount++
}

// ResumeInBackground transitions a Stopped job to Running and promotes it to
// Background (used by the "bg" built-in). No-op if the job is not Stopped
// (callers should check State before calling, per the §9 decision to reject
// "bg" on a non-stopped job rather than silently decrementing counters).
func (t *Table) ResumeInBackground(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[index]
	if s == nil || s.State != Stopped {
		return
	}
	s.State = Running
	s.Background = true
	t.stoppedCount--
	t.bgCount++

	// Invariant 6 (§3): lastStoppedJobID must name a live Stopped job, or be
	// -1. The job we just resumed can no longer serve as that pointer.
	if t.lastStoppedJobID == s.ID {
		t.lastStoppedJobID = t.highestStoppedJobIDLocked()
	}
}

// highestStoppedJobIDLocked returns the id of the live job with the highest
// id that is currently Stopped, or -1 if none remain. Callers must hold mu.
func (t *Table) highestStoppedJobIDLocked() int {
	id := -1
	for _, s := range t.slots {
		if s != nil && s.State == Stopped && s.ID > id {
			id = s.ID
		}
	}
	return id
}

// StoppedCount returns the number of live jobs currently Stopped.
func (t *Table) StoppedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stoppedCount
}

// BgCount returns the number of jobs that have been backgrounded via "bg".
func (t *Table) BgCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bgCount
}

// LastStoppedJobID returns the id of the most recently stopped live job, or
// -1 if none (invariant 6).
func (t *Table) LastStoppedJobID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastStoppedJobID
}
