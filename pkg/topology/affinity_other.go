//go:build !linux

package topology

// pinCurrentThread is a no-op outside Linux: CPU pinning is advisory
// per spec.md §4.B, not required for correctness, and degrades
// gracefully on platforms without SCHED_SETAFFINITY (cf. the
// teacher's runtime.GOOS=="linux" gating of OS-specific subcommands
// in api/cmd/helix/root.go).
func pinCurrentThread(core int) error {
	return nil
}
