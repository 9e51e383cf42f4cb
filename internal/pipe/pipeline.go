package pipe

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nrhall/msh/internal/diag"
	"github.com/nrhall/msh/internal/lang"
)

// Result is one stage's outcome: its label (argv[0]) and the exit
// status the REPL reports for it.
type Result struct {
	Label  string
	Status int
}

// Pipeline is a lang.Pipeline bound to runnable CommandStages.
type Pipeline struct {
	stages               []*CommandStage
	sink                  *diag.Sink
	governor              *Governor
	stdin, stdout, stderr *os.File
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithStdin sets what the first stage inherits when it carries no
// input redirection of its own. Defaults to os.Stdin.
func WithStdin(f *os.File) Option { return func(p *Pipeline) { p.stdin = f } }

// WithStdout sets what the last stage inherits when it carries no
// output redirection of its own. Defaults to os.Stdout.
func WithStdout(f *os.File) Option { return func(p *Pipeline) { p.stdout = f } }

// WithStderr sets what every stage's stderr is connected to. Defaults
// to os.Stderr.
func WithStderr(f *os.File) Option { return func(p *Pipeline) { p.stderr = f } }

// New builds a Pipeline from a parsed, validated lang.Pipeline. sink
// may be nil (equivalent to diag.NewNop()); governor may be nil to run
// with no resource ceiling.
func New(lp *lang.Pipeline, sink *diag.Sink, governor *Governor, opts ...Option) *Pipeline {
	stages := make([]*CommandStage, len(lp.Stages))
	for i, s := range lp.Stages {
		stages[i] = newCommandStage(s)
	}
	p := &Pipeline{
		stages:   stages,
		sink:     sink,
		governor: governor,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(p)
	}
	logRlimitOnce(sink)
	return p
}

var rlimitLogged sync.Once

// logRlimitOnce records the process's current RLIMIT_NOFILE once per
// run, purely for operational visibility into the fd budget spec.md §5
// describes — msh never acts on or enforces this value itself.
func logRlimitOnce(sink *diag.Sink) {
	rlimitLogged.Do(func() {
		var rlimit unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
			return
		}
		sink.Record(diag.Event{
			Msg:     "current RLIMIT_NOFILE",
			Context: map[string]any{"soft": rlimit.Cur, "hard": rlimit.Max},
		})
	})
}

type pipePair struct{ r, w *os.File }

// Run creates every inter-stage pipe before starting any stage, starts
// all stages in order, and only then closes the parent's copies of the
// descriptors it handed to its children. If any stage fails to start,
// already-started stages are reaped (their exit status discarded) and
// no Results are returned: a failed spawn produces one diagnostic, not
// a partial set of status lines.
//
// Redirections take priority only at a pipeline's two ends. A middle
// stage's stdout always flows into the next stage's stdin over a pipe,
// even if that stage's lang.Stage also carries a stdout redirection —
// only the first stage's stdin and the last stage's stdout redirection
// can ever apply.
func (p *Pipeline) Run() ([]Result, error) {
	n := len(p.stages)
	if n == 0 {
		return nil, nil
	}

	pipes := make([]pipePair, n-1)
	for i := range pipes {
		r, w, err := os.Pipe()
		if err != nil {
			for _, pp := range pipes[:i] {
				pp.r.Close()
				pp.w.Close()
			}
			p.sink.Record(diag.Event{Msg: "failed to create pipe", Err: err})
			return nil, fmt.Errorf("creating pipe: %w", err)
		}
		pipes[i] = pipePair{r, w}
	}

	var opened []*os.File
	closeAll := func() {
		for _, pp := range pipes {
			pp.r.Close()
			pp.w.Close()
		}
		for _, f := range opened {
			f.Close()
		}
	}

	started := 0
	for i, stage := range p.stages {
		stdin := p.stdin
		switch {
		case i > 0:
			stdin = pipes[i-1].r
		case stage.spec.HasStdin:
			f, err := os.Open(stage.spec.StdinPath)
			if err != nil {
				closeAll()
				p.reap(p.stages[:started])
				p.sink.Record(diag.Event{Command: stage.Name(), Msg: "failed to open input redirection", Err: err})
				return nil, fmt.Errorf("opening %q: %w", stage.spec.StdinPath, err)
			}
			opened = append(opened, f)
			stdin = f
		}

		stdout := p.stdout
		switch {
		case i < n-1:
			stdout = pipes[i].w
		case stage.spec.HasStdout:
			f, err := os.OpenFile(stage.spec.StdoutPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				closeAll()
				p.reap(p.stages[:started])
				p.sink.Record(diag.Event{Command: stage.Name(), Msg: "failed to open output redirection", Err: err})
				return nil, fmt.Errorf("opening %q: %w", stage.spec.StdoutPath, err)
			}
			opened = append(opened, f)
			stdout = f
		}

		if err := stage.start(stdin, stdout, p.stderr); err != nil {
			closeAll()
			p.reap(p.stages[:started])
			p.sink.Record(diag.Event{Command: stage.Name(), Msg: "failed to start pipeline stage", Err: err})
			return nil, fmt.Errorf("starting %q: %w", stage.Name(), err)
		}
		p.governor.attach(stage)
		started++
	}

	closeAll()

	results := make([]Result, n)
	for i, stage := range p.stages {
		status, err := stage.wait()
		if err != nil {
			p.sink.Record(diag.Event{Command: stage.Name(), Msg: "error waiting for pipeline stage", Err: err})
		}
		results[i] = Result{Label: stage.Name(), Status: status}
	}
	return results, nil
}

// reap waits for already-started stages without reporting their exit
// status: the pipeline is being aborted, so no status lines are owed.
func (p *Pipeline) reap(stages []*CommandStage) {
	for _, s := range stages {
		_, _ = s.wait()
	}
}
