//go:build linux

package cmd

import (
	"runtime"

	perf "github.com/hodgesds/perf-utils"
)

// countInstructions counts on the calling thread only, rank goroutines
// scheduled on other threads are not included.
func countInstructions(f func() error) (uint64, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	var ferr error
	pv, err := perf.CPUInstructions(func() error {
		ferr = f()
		return nil
	})
	if ferr != nil {
		return 0, ferr
	}
	if err != nil {
		return 0, err
	}
	return pv.Value, nil
}
