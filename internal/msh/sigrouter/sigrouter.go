// Package sigrouter implements the Signal Router (spec §4.E): it intercepts
// the terminal-generated interrupt and suspend signals in the shell process
// and forwards them to the current foreground job's process group, and
// wakes the asynchronous Reaper on SIGCHLD.
//
// Shape grounded on tmc-macgo/signalforwarder.go's forward-to-child pattern:
// a single consumer goroutine reading from an os/signal.Notify channel. Go
// delivers signals to that channel from ordinary goroutine context (not a
// restricted async-signal-safe handler), so — unlike the spec's C
// original — this router may safely do the "richer" bookkeeping itself
// (mutating counters) rather than deferring everything to a main-loop
// checkpoint. It still leaves *printing* the Stopped notice to the Waiter
// (see internal/msh/reaper), which is the goroutine actually blocked
// waiting on that job and therefore knows exactly when to print it.
package sigrouter

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cub1z/msh/internal/log"
	"github.com/cub1z/msh/internal/msh/job"
	"github.com/cub1z/msh/internal/msh/reaper"
)

var logger = log.New(os.Stderr, "sigrouter")

// Router owns the signal-handling goroutine for one shell instance.
type Router struct {
	table *job.Table
	out   io.Writer

	ch   chan os.Signal
	stop chan struct{}
}

// New creates a Router and starts its consumer goroutine. out receives any
// notices the Reaper prints in response to a SIGCHLD wake-up (job Done /
// Stopped lines).
func New(table *job.Table, out io.Writer) *Router {
	r := &Router{
		table: table,
		out:   out,
		ch:    make(chan os.Signal, 8),
		stop:  make(chan struct{}),
	}
	signal.Notify(r.ch, syscall.SIGINT, syscall.SIGTSTP, syscall.SIGCHLD)
	go r.run()
	return r
}

// Close stops the Router's goroutine and releases the signal registration.
func (r *Router) Close() {
	signal.Stop(r.ch)
	close(r.stop)
}

func (r *Router) run() {
	for {
		select {
		case sig := <-r.ch:
			r.handle(sig)
		case <-r.stop:
			return
		}
	}
}

func (r *Router) handle(sig os.Signal) {
	switch sig {
	case syscall.SIGINT:
		r.forwardToForeground(syscall.SIGINT)
	case syscall.SIGTSTP:
		r.suspendForeground()
	case syscall.SIGCHLD:
		reaper.Reap(r.out, r.table)
	}
}

// forwardToForeground relays sig to the current foreground job's process
// group. A missing foreground job (Ctrl-C with nothing running) is a no-op,
// per §8's boundary behavior — the shell itself must never die from this.
func (r *Router) forwardToForeground(sig syscall.Signal) {
	j, _, ok := r.table.ForegroundRunning()
	if !ok {
		return
	}
	if len(j.Pids) == 0 {
		return
	}
	pgid := j.Pids[0]
	if err := unix.Kill(-pgid, sig); err != nil {
		logger.Errorf("killpg pgid=%d sig=%v: %s", pgid, sig, err)
	}
}

// suspendForeground relays SIGTSTP to the foreground job's process group
// and records the stop in the job table. It does not print the "Stopped"
// notice itself — the foreground Waiter's blocked wait4 call observes the
// same transition via WUNTRACED and prints it once control returns to the
// REPL, avoiding a race between two goroutines both wanting to print.
func (r *Router) suspendForeground() {
	j, index, ok := r.table.ForegroundRunning()
	if !ok {
		return
	}
	if len(j.Pids) == 0 {
		return
	}
	pgid := j.Pids[0]
	if err := unix.Kill(-pgid, syscall.SIGTSTP); err != nil {
		logger.Errorf("killpg pgid=%d sig=SIGTSTP: %s", pgid, err)
		return
	}
	r.table.TransitionToStopped(index)
}
