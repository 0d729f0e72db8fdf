// Package telemetry configures the process-wide zerolog logger and
// tracks lightweight run statistics for the ingest core.
package telemetry

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger: level parsed from
// levelStr (falling back to info on a bad value), console-formatted
// output when pretty is true, JSON otherwise.
func Setup(levelStr string, pretty bool) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// Stats accumulates run-wide counters. Safe for concurrent use by the
// synchronizer and every ingest worker.
type Stats struct {
	alignedSets      atomic.Uint64
	buffersRecycled  atomic.Uint64
	decodeFailures   atomic.Uint64
	networkRetries   atomic.Uint64
	workersFailed    atomic.Uint64
}

// IncAlignedSets records one emitted AlignedSet.
func (s *Stats) IncAlignedSets() { s.alignedSets.Add(1) }

// IncBuffersRecycled records one buffer returned to an empty queue
// due to mismatch, rather than consumed as part of an aligned set.
func (s *Stats) IncBuffersRecycled() { s.buffersRecycled.Add(1) }

// IncDecodeFailures records one per-frame decode failure.
func (s *Stats) IncDecodeFailures() { s.decodeFailures.Add(1) }

// IncNetworkRetries records one transient network receive retry.
func (s *Stats) IncNetworkRetries() { s.networkRetries.Add(1) }

// IncWorkersFailed records one ingest worker giving up after a
// persistent network failure.
func (s *Stats) IncWorkersFailed() { s.workersFailed.Add(1) }

// Snapshot is an immutable point-in-time read of Stats, suitable for
// logging.
type Snapshot struct {
	AlignedSets     uint64
	BuffersRecycled uint64
	DecodeFailures  uint64
	NetworkRetries  uint64
	WorkersFailed   uint64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		AlignedSets:     s.alignedSets.Load(),
		BuffersRecycled: s.buffersRecycled.Load(),
		DecodeFailures:  s.decodeFailures.Load(),
		NetworkRetries:  s.networkRetries.Load(),
		WorkersFailed:   s.workersFailed.Load(),
	}
}

// LogFinal emits a single structured summary line at shutdown.
func (s *Stats) LogFinal() {
	snap := s.Snapshot()
	log.Info().
		Uint64("aligned_sets", snap.AlignedSets).
		Uint64("buffers_recycled", snap.BuffersRecycled).
		Uint64("decode_failures", snap.DecodeFailures).
		Uint64("network_retries", snap.NetworkRetries).
		Uint64("workers_failed", snap.WorkersFailed).
		Msg("run complete")
}
