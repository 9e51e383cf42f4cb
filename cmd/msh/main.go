// Command msh is a minimal POSIX-flavored command shell: it reads a
// line, runs it as a pipeline of external commands, reports each
// stage's exit status, and repeats.
package main

import (
	"fmt"
	"os"

	"github.com/nrhall/msh/internal/config"
	"github.com/nrhall/msh/internal/diag"
	"github.com/nrhall/msh/internal/pipe"
	"github.com/nrhall/msh/internal/shell"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "msh: loading config: %v\n", err)
		cfg = config.Default()
	}

	sink := diag.NewNop()
	if cfg.LogFile != "" {
		s, err := diag.NewFile(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "msh: opening log file: %v\n", err)
		} else {
			sink = s
			defer sink.Sync()
		}
	}

	var governor *pipe.Governor
	if cfg.Governor != nil {
		governor = pipe.NewGovernor(uint64(cfg.Governor.MemoryBytes), sink)
	}

	return shell.New(os.Stdin, os.Stdout, os.Stderr, sink, governor).Run()
}
