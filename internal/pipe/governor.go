package pipe

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nrhall/msh/internal/diag"
)

// memoryPollInterval is how often a governed stage's RSS is sampled.
const memoryPollInterval = time.Second

// Governor is the optional per-stage memory ceiling described in
// SPEC_FULL.md §4.7. It is off unless a caller builds one from a
// config.GovernorConfig with a non-zero MemoryBytes; a nil *Governor
// disables it entirely and every method on it is a no-op on a nil
// receiver.
type Governor struct {
	memoryBytes  uint64
	sink         *diag.Sink
	panicHandler StagePanicHandler
}

// NewGovernor builds a Governor. byteLimit of 0 disables it entirely,
// in which case NewGovernor returns nil.
func NewGovernor(byteLimit uint64, sink *diag.Sink) *Governor {
	if byteLimit == 0 {
		return nil
	}
	g := &Governor{memoryBytes: byteLimit, sink: sink}
	g.panicHandler = func(p any) error {
		err := fmt.Errorf("memory watch panicked: %v", p)
		sink.Record(diag.Event{Msg: "recovered panic in memory watch", Err: err})
		return err
	}
	return g
}

// governorHandle tracks the per-stage watch goroutine started by
// Governor.attach, so wait() can tear it down.
type governorHandle struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

func (h *governorHandle) stop() {
	if h == nil {
		return
	}
	h.cancel()
	_ = h.group.Wait()
}

// attach starts a memory watch for a stage that has just been started.
// It records the resulting handle on the stage so wait() can clean it
// up.
func (g *Governor) attach(stage *CommandStage) {
	if g == nil || stage.cmd.Process == nil {
		return
	}
	pid := uint64(stage.cmd.Process.Pid)

	ctx, cancel := context.WithCancel(context.Background())
	var group errgroup.Group
	group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = g.panicHandler(r)
			}
		}()
		g.watch(ctx, stage, pid)
		return nil
	})

	stage.governorHandle = &governorHandle{cancel: cancel, group: &group}
}

func (g *Governor) watch(ctx context.Context, stage *CommandStage, pid uint64) {
	var consecutiveErrors int

	t := time.NewTicker(memoryPollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rss, err := getTreeRSS(int(pid))
			if err != nil {
				consecutiveErrors++
				if consecutiveErrors >= 2 {
					g.sink.Record(diag.Event{Command: stage.Name(), Msg: "error getting RSS", Err: err})
				}
				continue
			}
			consecutiveErrors = 0
			if rss < g.memoryBytes {
				continue
			}
			g.sink.Record(diag.Event{
				Command: stage.Name(),
				Msg:     "stage exceeded allowed memory use",
				Context: map[string]any{"limit": g.memoryBytes, "used": rss},
			})
			if stage.cmd.Process != nil {
				_ = stage.cmd.Process.Kill()
			}
			return
		}
	}
}
