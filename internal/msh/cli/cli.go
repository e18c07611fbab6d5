// Package cli defines the msh command-line entrypoint.
package cli

import (
	"flag"
	"os"

	"github.com/cub1z/msh/internal/msh/shell"
)

var jobSlotsFlag = flag.Int("job-slots", 20, "maximum number of concurrently live jobs")

const (
	ecSuccess = iota
	// ecShell indicates the shell exited due to an unrecoverable condition.
	ecShell
)

// Run is the entrypoint of the msh executable.
func Run() int {
	flag.Parse()

	s := shell.New(os.Stdin, os.Stdout, os.Stderr, *jobSlotsFlag)
	defer s.Close()

	return s.Run()
}
