// Package shell implements the REPL Driver (spec §4.G): the main loop tying
// the parser, the built-in dispatcher, the pipeline launcher, and the
// waiter/reaper together, plus the error-taxonomy mapping described in §7.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cub1z/msh/internal/log"
	"github.com/cub1z/msh/internal/msh/builtin"
	"github.com/cub1z/msh/internal/msh/job"
	"github.com/cub1z/msh/internal/msh/parseline"
	"github.com/cub1z/msh/internal/msh/pipeline"
	"github.com/cub1z/msh/internal/msh/reaper"
	"github.com/cub1z/msh/internal/msh/sigrouter"
)

var logger = log.New(os.Stderr, "shell")

// Shell is one REPL instance: an input source, its output streams, a job
// table, and the built-in dispatcher and signal router bound to it.
type Shell struct {
	in  *bufio.Scanner
	out io.Writer
	err io.Writer

	table    *job.Table
	builtins *builtin.Dispatcher
	router   *sigrouter.Router

	prompt string
}

// New constructs a Shell. tableCapacity bounds the number of concurrently
// live jobs (§3 invariant 1); exceeding it surfaces "Maximum number of
// commands reached" rather than silently dropping the newest job.
func New(stdin io.Reader, stdout, stderr io.Writer, tableCapacity int) *Shell {
	table := job.NewTable(tableCapacity)
	s := &Shell{
		in:       bufio.NewScanner(stdin),
		out:      stdout,
		err:      stderr,
		table:    table,
		builtins: builtin.New(table, stdout, stderr),
		prompt:   "msh$ ",
	}
	s.router = sigrouter.New(table, stdout)
	return s
}

// Close releases the Shell's signal registration. Callers should defer this
// after New.
func (s *Shell) Close() {
	s.router.Close()
}

// Run executes the read-eval-print loop until EOF on stdin or a confirmed
// "exit", returning the process exit code.
func (s *Shell) Run() int {
	for {
		fmt.Fprint(s.out, s.prompt)
		if !s.in.Scan() {
			return 0
		}

		line, err := parseline.Parse(s.in.Text())
		if err != nil {
			fmt.Fprintf(s.err, "msh: %s\n", err)
			continue
		}
		if line.Ncommands == 0 {
			continue
		}

		outcome := s.builtins.Dispatch(line)
		if outcome.Handled {
			if outcome.Exit {
				return 0
			}
			continue
		}

		s.runPipeline(line)

		// Checkpoint: pick up any background/stopped job transitions that
		// happened while we were blocked reading/launching, in addition to
		// whatever the async Signal Router already applied via SIGCHLD.
		reaper.Reap(s.out, s.table)
	}
}

// runPipeline launches one external pipeline and, unless backgrounded,
// blocks for it to finish or stop, applying the §7 error taxonomy to
// whatever Launch reports.
func (s *Shell) runPipeline(line *parseline.ParsedLine) {
	j, index, err := pipeline.Launch(s.table, line, s.in.Text())
	if err != nil {
		s.reportLaunchError(err)
		return
	}

	if line.Background {
		fmt.Fprintf(s.out, "[%d] %d\n", j.ID, firstPID(j))
		return
	}

	reaper.WaitForeground(s.out, s.table, index)
}

func firstPID(j job.Job) int {
	if len(j.Pids) == 0 {
		return 0
	}
	return j.Pids[0]
}

// reportLaunchError maps a pipeline.Launch error to the §7 taxonomy: fatal
// conditions log and terminate the process outright, everything else prints
// a one-line diagnostic and the loop continues.
func (s *Shell) reportLaunchError(err error) {
	var fatal *pipeline.ErrFatal
	var redir *pipeline.ErrRedirection

	switch {
	case errors.Is(err, pipeline.ErrEmptyLine):
		return
	case errors.Is(err, pipeline.ErrCommandNotFound):
		fmt.Fprintln(s.err, "Command not found")
	case errors.Is(err, job.ErrFull):
		fmt.Fprintln(s.err, "Maximum number of commands reached")
	case errors.As(err, &redir):
		fmt.Fprintln(s.err, redir.Error())
	case errors.As(err, &fatal):
		logger.Errorf("fatal: %s", fatal.Err)
		os.Exit(1)
	default:
		fmt.Fprintf(s.err, "msh: %s\n", err)
	}
}
