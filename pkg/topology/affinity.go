package topology

import "runtime"

// Affinity advises the runtime to pin the calling goroutine's OS
// thread to a preferred CPU core. This is advisory only (spec.md
// §4.B): a failure to pin never aborts the run, only logs.
type Affinity struct {
	Cores int // cores on the preferred cache complex; 0 disables pinning
}

// PinWorker pins the current goroutine's OS thread to core
// (workerIndex mod Cores), matching spec.md §4.B's "worker i is
// pinned to i mod C". Locks the goroutine to its OS thread for the
// remainder of its lifetime, since affinity doesn't survive a thread
// switch. No-op if a.Cores <= 0.
func (a Affinity) PinWorker(workerIndex int) error {
	if a.Cores <= 0 {
		return nil
	}
	runtime.LockOSThread()
	return pinCurrentThread(workerIndex % a.Cores)
}

// PinSynchronizer pins the synchronizer to core (camCount mod
// Cores), per spec.md §4.B. No-op if a.Cores <= 0.
func (a Affinity) PinSynchronizer(camCount int) error {
	if a.Cores <= 0 {
		return nil
	}
	runtime.LockOSThread()
	return pinCurrentThread(camCount % a.Cores)
}
