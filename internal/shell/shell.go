// Package shell implements msh's REPL: read a line, parse it, run it,
// report what happened, and do it again until exit or end of input.
package shell

import (
	"bufio"
	"fmt"
	"os"

	"github.com/nrhall/msh/internal/diag"
	"github.com/nrhall/msh/internal/lang"
	"github.com/nrhall/msh/internal/pipe"
)

const prompt = "> "

// Shell is msh's read-eval-print loop. It is driven by a plain
// bufio.Scanner rather than a line-editing library: the test harness
// this shell is built against drives it over a piped, non-tty stdin,
// and a readline-style library that assumes an interactive terminal
// would misbehave or block under that harness.
//
// in/out/errOut are *os.File, not io.Reader/io.Writer: a pipeline's
// boundary stages inherit them directly as file descriptors (see
// internal/pipe), so the REPL's own prompt and status lines share the
// exact descriptor that child processes write to, the same way a real
// terminal session does.
type Shell struct {
	in       *os.File
	scanner  *bufio.Scanner
	out      *os.File
	errOut   *os.File
	sink     *diag.Sink
	governor *pipe.Governor
}

// New builds a Shell reading from in and writing to out/errOut.
// sink and governor may be nil.
func New(in, out, errOut *os.File, sink *diag.Sink, governor *pipe.Governor) *Shell {
	return &Shell{
		in:       in,
		scanner:  bufio.NewScanner(in),
		out:      out,
		errOut:   errOut,
		sink:     sink,
		governor: governor,
	}
}

// Run executes the read-eval-print loop until the user types exit or
// the input stream ends, returning the process exit status.
func (s *Shell) Run() int {
	for {
		fmt.Fprint(s.out, prompt)

		if !s.scanner.Scan() {
			return 0
		}
		line := s.scanner.Text()

		tokens := lang.Tokenize(line)
		if len(tokens) == 0 {
			continue
		}
		if isExit(tokens) {
			return 0
		}

		pipeline, err := lang.Parse(tokens)
		if err != nil {
			fmt.Fprintln(s.errOut, "invalid command")
			continue
		}
		if pipeline == nil {
			continue
		}

		results, err := pipe.New(
			pipeline, s.sink, s.governor,
			pipe.WithStdin(s.in), pipe.WithStdout(s.out), pipe.WithStderr(s.errOut),
		).Run()
		if err != nil {
			fmt.Fprintln(s.errOut, err)
			continue
		}
		for _, r := range results {
			fmt.Fprintf(s.out, "%s exit status: %d\n", r.Label, r.Status)
		}
	}
}

// isExit reports whether the tokenized line is exactly the single
// word "exit": msh's only builtin.
func isExit(tokens []lang.Token) bool {
	return len(tokens) == 1 && tokens[0].Type == lang.Word && tokens[0].Value == "exit"
}
