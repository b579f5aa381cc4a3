//go:build !windows

package commands

import (
	"syscall"
	"time"
)

// checkProcessRunning probes pid with signal 0.
func checkProcessRunning(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// waitForProcessExit polls until pid is gone or timeout elapses.
func waitForProcessExit(pid int, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !checkProcessRunning(pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
