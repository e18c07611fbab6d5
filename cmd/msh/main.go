// Command msh is a minimal interactive UNIX-style shell with job control.
package main

import (
	"os"

	"github.com/cub1z/msh/internal/msh/cli"
)

func main() {
	os.Exit(cli.Run())
}
