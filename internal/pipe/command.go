// Package pipe runs a validated lang.Pipeline as connected OS
// processes.
//
// Every stage is an external command: msh has no builtin other than
// exit, which the shell package handles before a pipeline ever reaches
// here. Because there is exactly one kind of stage, a CommandStage can
// own its exec.Cmd directly instead of going through a Stage/Stage2
// abstraction meant to choose between several stage implementations.
//
// Who closes stdin and stdout? If a stage's stdin or stdout argument
// is an *os.File, exec.Cmd dups the descriptor into the child and
// keeps its own copy for as long as the child runs. The parent's copy
// can and should be closed as soon as every stage has started:
//
//	cmd.Stdin = f
//	cmd.Start()
//	// ... all stages started ...
//	f.Close() // the parent's copy; the child keeps its own
//	cmd.Wait()
//
// Because Go marks every file it opens close-on-exec by default, a
// child process never inherits pipe descriptors other than the ones
// explicitly assigned to its Stdin/Stdout/Stderr/ExtraFiles — the
// "close every other pipe fd in the child" step that a raw fork/exec
// implementation must do by hand happens for free here.
package pipe

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/nrhall/msh/internal/lang"
)

// CommandStage is one external command within a Pipeline.
type CommandStage struct {
	argv []string
	spec lang.Stage
	cmd  *exec.Cmd

	governorHandle *governorHandle
}

func newCommandStage(spec lang.Stage) *CommandStage {
	// Path is argv[0] exactly as typed: no PATH lookup, so the OS
	// program loader resolves it like any other file path.
	cmd := &exec.Cmd{Path: spec.Argv[0], Args: spec.Argv}
	return &CommandStage{argv: spec.Argv, spec: spec, cmd: cmd}
}

// Name is argv[0], used only to label results and diagnostics.
func (s *CommandStage) Name() string {
	return s.argv[0]
}

// start assigns stdin/stdout/stderr and starts the child. It does not
// wait for it.
func (s *CommandStage) start(stdin, stdout, stderr *os.File) error {
	s.cmd.Stdin = stdin
	s.cmd.Stdout = stdout
	s.cmd.Stderr = stderr

	return s.cmd.Start()
}

// wait blocks until the stage's process exits and translates its exit
// into an integer status. A non-nil error here is an error waiting on
// the process itself (vs. the process's exit code, which is never an
// error from wait's point of view).
func (s *CommandStage) wait() (int, error) {
	if s.governorHandle != nil {
		defer s.governorHandle.stop()
	}
	err := s.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 128 + int(ws.Signal()), nil
			}
			return ws.ExitStatus(), nil
		}
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
