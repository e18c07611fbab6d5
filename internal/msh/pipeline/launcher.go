// Package pipeline implements the Pipeline Launcher (spec §4.B) and the
// Redirection Planner (§4.C): given a ParsedLine, it allocates a job slot,
// wires up pipes and file redirections, forks the pipeline's children, and
// records their pids — or fails fast with one of the taxonomy errors in §7.
package pipeline

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	ierrors "github.com/cub1z/msh/internal/errors"
	"github.com/cub1z/msh/internal/log"
	"github.com/cub1z/msh/internal/msh/job"
	"github.com/cub1z/msh/internal/msh/parseline"
)

var logger = log.New(os.Stderr, "pipeline")

// ErrEmptyLine indicates the ParsedLine has no commands (§7 — "silently
// continue").
var ErrEmptyLine = simpleError("empty line")

// ErrCommandNotFound indicates at least one command's PATH resolution
// failed upstream (§7 — "Command not found").
var ErrCommandNotFound = simpleError("command not found")

// ErrFatal wraps the two §7 "fatal" conditions (pipe creation, fork
// failure): the shell cannot restore its invariants mid-pipeline and must
// abort. Callers should log and os.Exit on this error, not retry.
type ErrFatal struct{ Err error }

func (e *ErrFatal) Error() string { return "fatal: " + e.Err.Error() }
func (e *ErrFatal) Unwrap() error { return e.Err }

type simpleError string

func (e simpleError) Error() string { return string(e) }

// result carries everything the caller (the REPL Driver, via the Waiter)
// needs after a successful launch.
type result struct {
	Job   job.Job
	Index int
}

// Launch implements the §4.B algorithm. On success it returns the launched
// job (a value copy — the live state lives in table) and its slot index.
func Launch(table *job.Table, line *parseline.ParsedLine, commandText string) (job.Job, int, error) {
	if line.Ncommands == 0 {
		return job.Job{}, 0, ErrEmptyLine
	}
	for _, c := range line.Commands {
		if c.Filename == "" {
			return job.Job{}, 0, ErrCommandNotFound
		}
	}

	_, index, err := table.Allocate(commandText, line.Background)
	if err != nil {
		return job.Job{}, 0, err
	}

	n := line.Ncommands
	pipes, err := makePipes(n - 1)
	if err != nil {
		// §7: pipe creation failure is fatal — the invariant that the
		// pipeline is always fully plumbed cannot be re-established
		// mid-flight.
		table.Free(index)
		return job.Job{}, 0, &ErrFatal{Err: err}
	}

	opened := newFileSet()
	leaderPID := 0

	for i, c := range line.Commands {
		cmd := exec.Command(c.Filename)
		cmd.Args = c.Argv

		if err := planRedirects(cmd, i, n, pipes, line, opened); err != nil {
			opened.closeAll()
			pipes.closeAll()
			killAndReapPartial(table, index, leaderPID)
			table.Free(index)
			return job.Job{}, 0, err
		}

		cmd.SysProcAttr = pgidAttr(i, leaderPID)

		if err := cmd.Start(); err != nil {
			// §7: fork failure is fatal — a partial pipeline cannot be
			// recovered.
			opened.closeAll()
			pipes.closeAll()
			killAndReapPartial(table, index, leaderPID)
			table.Free(index)
			return job.Job{}, 0, &ErrFatal{Err: ierrors.Wrapf(err, "start command %d (%s)", i, c.Argv[0])}
		}

		pid := cmd.Process.Pid
		if i == 0 {
			leaderPID = pid
		}
		// Go's exec already applies Setpgid/Pgid atomically inside the child
		// between fork and exec (see cmd.SysProcAttr above), which is the
		// race-free realization §9 asks for. This call is a defensive,
		// idempotent belt-and-suspenders pass from the parent side, covering
		// the narrow window before the child's own call lands.
		if err := unix.Setpgid(pid, leaderPID); err != nil && !isBenignSetpgidError(err) {
			logger.Warnf("setpgid pid=%d pgid=%d: %s", pid, leaderPID, err)
		}

		table.AppendPID(index, pid)
	}

	opened.closeAll()
	pipes.closeAll()

	j, _ := table.At(index)
	return j, index, nil
}

// pgidAttr builds the SysProcAttr that places child i into the pipeline's
// process group: the leader (i==0) starts its own group, every other child
// joins the group led by leaderPID (§4.B "process-group policy").
func pgidAttr(i, leaderPID int) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if i > 0 {
		attr.Pgid = leaderPID
	}
	return attr
}

// isBenignSetpgidError reports whether err is the expected outcome of a
// setpgid call that raced a child that had already exec'd or exited —
// neither indicates a real problem.
func isBenignSetpgidError(err error) bool {
	errno, ok := err.(unix.Errno)
	return ok && (errno == unix.EACCES || errno == unix.ESRCH)
}

// killAndReapPartial cleans up the stages of a pipeline that already forked
// before a later stage failed to start: it kills the whole process group
// and reaps every pid recorded so far, so a failed launch never leaves
// orphaned, untracked children running for the life of the shell session.
// A no-op if no stage had started yet (leaderPID == 0).
func killAndReapPartial(table *job.Table, index, leaderPID int) {
	if leaderPID == 0 {
		return
	}
	if err := unix.Kill(-leaderPID, syscall.SIGKILL); err != nil && !isBenignSetpgidError(err) {
		logger.Warnf("killpg pgid=%d sig=SIGKILL: %s", leaderPID, err)
	}

	j, ok := table.At(index)
	if !ok {
		return
	}
	for _, pid := range j.Remaining() {
		var ws unix.WaitStatus
		if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
			logger.Warnf("wait4 pid=%d during partial-launch cleanup: %s", pid, err)
		}
	}
}
