package pipeline

import (
	"os"
	"os/exec"

	ierrors "github.com/cub1z/msh/internal/errors"
	"github.com/cub1z/msh/internal/msh/parseline"
)

// pipePair is one anonymous pipe created for a pipeline, both ends tracked
// so the parent can close them once every child has inherited the end it
// needs (invariant 4).
type pipePair struct {
	r, w *os.File
}

type pipeSet []pipePair

// makePipes creates count anonymous pipes.
func makePipes(count int) (pipeSet, error) {
	pipes := make(pipeSet, 0, count)
	for i := 0; i < count; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			pipes.closeAll()
			return nil, ierrors.Wrapf(err, "create pipe %d", i)
		}
		pipes = append(pipes, pipePair{r: r, w: w})
	}
	return pipes, nil
}

func (p pipeSet) closeAll() {
	for _, pair := range p {
		pair.r.Close()
		pair.w.Close()
	}
}

// fileSet tracks *os.File handles opened for redirection targets, so they
// can all be closed in the parent once every child has started.
type fileSet struct {
	files []*os.File
}

func newFileSet() *fileSet { return &fileSet{} }

func (s *fileSet) track(f *os.File) *os.File {
	s.files = append(s.files, f)
	return f
}

func (s *fileSet) closeAll() {
	for _, f := range s.files {
		f.Close()
	}
}

// planRedirects implements the §4.C table for child i of an n-command
// pipeline: stdin/stdout come from the adjacent pipe or a file redirection
// at the pipeline's ends, stderr from a file redirection applied uniformly
// across every child, and anything unset is inherited from the shell.
//
// A single *os.File opened for a redirection target is reused across every
// child that needs it (stderr in particular, when every command in the
// pipeline shares one "2>file" target) — os/exec dups the fd into the child
// rather than sharing the literal number, so this is safe and gives the
// children a shared file offset, matching ordinary shell behavior.
func planRedirects(cmd *exec.Cmd, i, n int, pipes pipeSet, line *parseline.ParsedLine, opened *fileSet) error {
	switch {
	case i == 0 && line.RedirectInput != "":
		f, err := os.Open(line.RedirectInput)
		if err != nil {
			return redirectionError(line.RedirectInput, err)
		}
		cmd.Stdin = opened.track(f)
	case i > 0:
		cmd.Stdin = pipes[i-1].r
	default:
		cmd.Stdin = os.Stdin
	}

	switch {
	case i == n-1 && line.RedirectOutput != "":
		f, err := os.OpenFile(line.RedirectOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return redirectionError(line.RedirectOutput, err)
		}
		cmd.Stdout = opened.track(f)
	case i < n-1:
		cmd.Stdout = pipes[i].w
	default:
		cmd.Stdout = os.Stdout
	}

	if line.RedirectError != "" {
		f, err := openShared(opened, line.RedirectError)
		if err != nil {
			return redirectionError(line.RedirectError, err)
		}
		cmd.Stderr = f
	} else {
		cmd.Stderr = os.Stderr
	}

	return nil
}

// openShared returns the already-opened *os.File for path if a prior child
// in this pipeline opened it, otherwise opens and tracks a new one.
func openShared(opened *fileSet, path string) (*os.File, error) {
	for _, f := range opened.files {
		if f.Name() == path {
			return f, nil
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return opened.track(f), nil
}

// ErrRedirection indicates a redirection target could not be opened (§9 —
// "surfaced as an error, not silent corruption").
type ErrRedirection struct {
	Path string
	Err  error
}

func (e *ErrRedirection) Error() string { return "msh: " + e.Path + ": " + e.Err.Error() }
func (e *ErrRedirection) Unwrap() error { return e.Err }

func redirectionError(path string, err error) error {
	return &ErrRedirection{Path: path, Err: err}
}
