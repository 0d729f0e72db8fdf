//go:build linux

package topology

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinCurrentThread pins the calling OS thread to the given core.
// Callers must have already locked the goroutine to its OS thread
// with runtime.LockOSThread, since affinity is a thread property, not
// a goroutine property.
func pinCurrentThread(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("topology: set affinity to core %d: %w", core, err)
	}
	return nil
}
