// Package builtin implements the Built-in Dispatcher (spec §4.F): the small
// set of commands the shell itself handles rather than forking a child for
// ("cd", "exit", "jobs", "umask", "bg"), plus the two-step exit latch that
// guards against an accidental shell close (§7, §9).
package builtin

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cub1z/msh/internal/msh/job"
	"github.com/cub1z/msh/internal/msh/parseline"
	"github.com/cub1z/msh/internal/validator"
)

// Latch tracks the exit-confirmation state machine (§7, §9): a bare "exit"
// with jobs still live warns and arms the latch; a second consecutive
// "exit" confirms it. Any other command resets the latch to Normal.
type Latch int

const (
	LatchNormal Latch = iota
	LatchExitPending
)

// Outcome reports what Dispatch did with a line.
type Outcome struct {
	// Handled is true if line named a built-in (whether or not it
	// succeeded) — the caller must not also try to launch a pipeline.
	Handled bool
	// Exit is true once the exit latch has fully confirmed a shutdown.
	Exit bool
}

// Dispatcher holds the state the built-ins need across calls: the job table
// they inspect/mutate and the exit latch.
type Dispatcher struct {
	table  *job.Table
	latch  Latch
	stdout io.Writer
	stderr io.Writer
}

// New creates a Dispatcher. stdout/stderr are where the built-ins write.
// Only "jobs" honors a line's output redirection ("jobs > file"); the other
// built-ins ignore the line's redirections and always write to these.
func New(table *job.Table, stdout, stderr io.Writer) *Dispatcher {
	return &Dispatcher{table: table, stdout: stdout, stderr: stderr}
}

// Dispatch inspects line's leading command and, if it names a built-in,
// executes it and returns Handled=true. Any command that isn't a built-in
// resets the exit latch and returns Handled=false so the caller proceeds to
// Launch it as an external pipeline.
func (d *Dispatcher) Dispatch(line *parseline.ParsedLine) Outcome {
	if line.Ncommands != 1 {
		d.resetLatch()
		return Outcome{}
	}

	cmd := line.Commands[0]
	if len(cmd.Argv) == 0 {
		return Outcome{}
	}

	switch cmd.Argv[0] {
	case "cd":
		d.resetLatch()
		d.cd(cmd.Argv)
		return Outcome{Handled: true}
	case "exit":
		return Outcome{Handled: true, Exit: d.exit()}
	case "jobs":
		d.resetLatch()
		d.jobs(line)
		return Outcome{Handled: true}
	case "umask":
		d.resetLatch()
		d.umask(cmd.Argv)
		return Outcome{Handled: true}
	case "bg":
		d.resetLatch()
		d.bg(cmd.Argv)
		return Outcome{Handled: true}
	default:
		d.resetLatch()
		return Outcome{}
	}
}

func (d *Dispatcher) resetLatch() {
	d.latch = LatchNormal
}

// cd changes the shell's working directory: no argument moves to $HOME,
// otherwise the given path. A failure prints "Directory not found" (§7)
// rather than the underlying errno text, matching the original's terse
// message.
func (d *Dispatcher) cd(argv []string) {
	target := os.Getenv("HOME")
	if len(argv) > 1 {
		target = argv[1]
	}
	if err := os.Chdir(target); err != nil {
		fmt.Fprintln(d.stderr, "Directory not found")
	}
}

// exit implements the two-step latch (§7, §9): the first "exit" while jobs
// remain live warns and arms the latch without quitting; the latch confirms
// only on an immediately following "exit" — resetLatch in Dispatch's other
// branches means any intervening command disarms it. With no live jobs,
// "exit" always quits immediately.
func (d *Dispatcher) exit() bool {
	if len(d.table.SnapshotSortedByID()) == 0 {
		return true
	}
	if d.latch == LatchExitPending {
		return true
	}
	d.latch = LatchExitPending
	fmt.Fprintln(d.stderr, "There are stopped or running jobs. Run \"exit\" again to confirm.")
	return false
}

// jobs lists every live job, one per line, renumbered 1..N for this call
// (§9 — display indexing is a presentation detail, not the stable id).
func (d *Dispatcher) jobs(line *parseline.ParsedLine) {
	out := d.stdout
	if line.RedirectOutput != "" {
		f, err := os.OpenFile(line.RedirectOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			fmt.Fprintf(d.stderr, "msh: %s: %s\n", line.RedirectOutput, err)
			return
		}
		defer f.Close()
		out = f
	}

	for i, j := range d.table.SnapshotSortedByID() {
		fmt.Fprintf(out, "[%d]  %-8s %s\n", i+1, j.State, j.CommandText)
	}
}

// umask with no argument prints the current mask (read by setting a
// throwaway mask, then immediately restoring it — unix.Umask has no
// read-only form); with an argument it parses an octal mode and installs it.
func (d *Dispatcher) umask(argv []string) {
	if len(argv) == 1 {
		cur := unix.Umask(0)
		unix.Umask(cur)
		fmt.Fprintf(d.stdout, "%04o\n", cur)
		return
	}

	v := validator.New()
	v.Assert(len(argv) == 2, "umask takes at most one argument")
	if err := v.Err(); err != nil {
		fmt.Fprintln(d.stderr, validator.Format(err.Error()))
		return
	}

	mode, err := strconv.ParseUint(argv[1], 8, 32)
	if err != nil {
		fmt.Fprintf(d.stderr, "umask: %s: invalid octal mode\n", argv[1])
		return
	}
	unix.Umask(int(mode))
}

// bg resumes a Stopped job in the background: SIGCONT to its process group,
// then promotes it in the table. With no argument it targets the most
// recently stopped job (§6); with an argument it targets that job id. A job
// that doesn't exist or isn't Stopped is rejected outright (§9) rather than
// silently treated as a no-op.
func (d *Dispatcher) bg(argv []string) {
	id, err := d.resolveBgTarget(argv)
	if err != nil {
		fmt.Fprintln(d.stderr, err.Error())
		return
	}

	j, index, ok := d.table.FindByID(id)
	if !ok {
		fmt.Fprintf(d.stderr, "bg: job %d not found\n", id)
		return
	}
	if j.State != job.Stopped {
		fmt.Fprintf(d.stderr, "bg: job %d is not stopped\n", id)
		return
	}
	if len(j.Pids) == 0 {
		fmt.Fprintf(d.stderr, "bg: job %d has no process group\n", id)
		return
	}

	pgid := j.Pids[0]
	if err := unix.Kill(-pgid, syscall.SIGCONT); err != nil {
		fmt.Fprintf(d.stderr, "bg: %s\n", err)
		return
	}
	d.table.ResumeInBackground(index)
	fmt.Fprintf(d.stdout, "[%d]+  %s &\n", j.ID, j.CommandText)
}

func (d *Dispatcher) resolveBgTarget(argv []string) (int, error) {
	if len(argv) == 1 {
		id := d.table.LastStoppedJobID()
		if id < 0 {
			return 0, fmt.Errorf("bg: no stopped jobs")
		}
		return id, nil
	}
	id, err := strconv.Atoi(argv[1])
	if err != nil {
		return 0, fmt.Errorf("bg: %s: numeric job id required", argv[1])
	}
	return id, nil
}
