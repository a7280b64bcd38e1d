//go:build !linux

package cmd

import (
	"fmt"
	"runtime"
)

func countInstructions(f func() error) (uint64, error) {
	return 0, fmt.Errorf("--perf needs linux perf events, not available on %s", runtime.GOOS)
}
