// Package reaper implements the Waiter/Reaper (spec §4.D): blocking
// foreground waits that honor stop notifications, and a non-blocking
// asynchronous sweep over background/stopped jobs driven by SIGCHLD.
package reaper

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cub1z/msh/internal/log"
	"github.com/cub1z/msh/internal/msh/job"
)

var logger = log.New(os.Stderr, "reaper")

// WaitForeground blocks on the job at index's children, in pipeline order,
// with unix.WUNTRACED so a stop is observed rather than missed. It returns
// as soon as the job is fully Done (every child reaped) or has stopped.
//
// This is the pipeline's only consumer of its pids' exit status: the
// asynchronous Reap below deliberately skips the foreground job, so there
// is no race between a blocking wait4 here and a non-blocking one there for
// the same pid.
func WaitForeground(w io.Writer, table *job.Table, index int) {
	j, ok := table.At(index)
	if !ok {
		return
	}

	for _, pid := range j.Remaining() {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, unix.WUNTRACED, nil)
		if err != nil {
			logger.Errorf("wait4 job=%s pid=%d: %s", j.Token(), pid, err)
			continue
		}

		if ws.Stopped() {
			table.TransitionToStopped(index)
			fmt.Fprintf(w, "[%d]+  Stopped    %s\n", j.ID, j.CommandText)
			return
		}

		if remaining := table.MarkReaped(index, pid); remaining == 0 {
			table.Free(index)
			fmt.Fprintf(w, "[%d]+  Done       %s\n", j.ID, j.CommandText)
		}
	}
}

// sweepResult is what a single job's non-blocking poll found.
type sweepResult struct {
	stopped bool
	done    bool
}

// Reap performs one non-blocking sweep over every live background or
// stopped job's children, reaping any that have exited, detecting any that
// have newly stopped, and freeing slots whose last child was just reaped.
// Polls run concurrently (one goroutine per live job); results are applied
// to the table in ascending job-id order for deterministic output (§4.D's
// tie-break rule).
func Reap(w io.Writer, table *job.Table) {
	live := table.LiveSortedByID()
	results := make([]sweepResult, len(live))

	g := new(errgroup.Group)
	for i, ij := range live {
		if isForeground(ij.Job) {
			continue // owned exclusively by WaitForeground; do not touch.
		}
		i, index, pids, token := i, ij.Index, ij.Job.Remaining(), ij.Job.Token()
		g.Go(func() error {
			results[i] = sweepPids(table, index, pids, token)
			return nil
		})
	}
	_ = g.Wait()

	for i, ij := range live {
		r := results[i]
		switch {
		case r.stopped:
			table.TransitionToStopped(ij.Index)
			fmt.Fprintf(w, "[%d]+  Stopped    %s\n", ij.Job.ID, ij.Job.CommandText)
		case r.done:
			table.Free(ij.Index)
			fmt.Fprintf(w, "[%d]+  Done       %s\n", ij.Job.ID, ij.Job.CommandText)
		}
	}
}

func isForeground(j job.Job) bool {
	return j.State == job.Running && !j.Background
}

// sweepPids non-blockingly checks every pid for a status change and applies
// exits to the table immediately (MarkReaped is safe to call concurrently —
// it locks internally); the stopped/done verdict is returned for the
// caller to print once results for every job have been collected, keeping
// notice ordering deterministic.
func sweepPids(table *job.Table, index int, pids []int, token uuid.UUID) sweepResult {
	var result sweepResult
	for _, pid := range pids {
		var ws unix.WaitStatus
		got, err := unix.Wait4(pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		if err != nil {
			logger.Warnf("wait4 job=%s pid=%d: %s", token, pid, err)
			continue
		}
		if got <= 0 {
			continue
		}
		if ws.Stopped() {
			result.stopped = true
			continue
		}
		if remaining := table.MarkReaped(index, pid); remaining == 0 {
			result.done = true
		}
	}
	return result
}
