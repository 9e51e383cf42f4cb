//go:build linux

package pipe

import "github.com/nrhall/msh/internal/ptree"

// getTreeRSS returns the combined resident anonymous memory of pid and
// its descendants. A stage's own pid isn't always where its memory
// ends up: argv[0] may itself be a shell or wrapper that forks further
// children, so the Governor watches the whole tree rather than just
// the one process it started.
func getTreeRSS(pid int) (uint64, error) {
	return ptree.GetProcessTreeRSSAnon(pid)
}
