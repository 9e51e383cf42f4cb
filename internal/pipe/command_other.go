//go:build !linux

package pipe

import "errors"

var errRSSUnsupported = errors.New("memory watch is only supported on linux")

func getTreeRSS(pid int) (uint64, error) {
	return 0, errRSSUnsupported
}
