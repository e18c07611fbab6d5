// Package job provides the Job and Job Table types the shell core uses to
// track active pipelines: identity, status, process ids and the original
// command text, following the state-machine shape of
// tjper-teleport/internal/jobworker/job generalized from a single process to
// a pipeline sharing one process group.
package job

import (
	"github.com/google/uuid"
)

// Status is the state of a Job.
type Status string

const (
	// Running indicates the job's process group is executing (or, for a
	// background job, was last observed executing).
	Running Status = "Running"
	// Stopped indicates the job's process group has been suspended.
	Stopped Status = "Stopped"
	// Done indicates every process in the job has been reaped. The Waiter and
	// Reaper free a job's slot as soon as its last child is reaped, without
	// assigning this state, so no job in a Table is ever observed as Done.
	Done Status = "Done"
)

// Job represents a pipeline of one or more processes managed as a single
// unit of job control.
type Job struct {
	// ID is a monotonic positive integer, unique among live jobs, assigned by
	// Table.Allocate. It is the identity printed by "bg" and used to address
	// a job from "bg <id>".
	ID int
	// State is the job's current lifecycle state.
	State Status
	// Background indicates the job was launched (or later promoted via "bg")
	// to run without being the terminal's foreground job.
	Background bool
	// Pids holds the process ids of the job's children in pipeline order.
	// Pids[0] is the process-group leader.
	Pids []int
	// CommandText is the original input line, retained for "jobs" display.
	CommandText string

	// token is a correlation id used only in structured log lines, as a
	// second per-job identifier alongside ID for telling log output about
	// different jobs apart.
	token uuid.UUID

	// remaining holds the pids that have not yet been reaped, in pipeline
	// order. It starts equal to Pids and shrinks as children are waited on.
	remaining []int
}

// Token returns the Job's log-correlation id.
func (j Job) Token() uuid.UUID { return j.token }

// Remaining returns a copy of the pids not yet reaped, in pipeline order.
func (j Job) Remaining() []int {
	out := make([]int, len(j.remaining))
	copy(out, j.remaining)
	return out
}
