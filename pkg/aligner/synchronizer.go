// Package aligner implements the cross-camera synchronizer: drains
// one filled buffer per camera, aligns by timestamp, recycles
// mismatched frames, and emits aligned sets. See spec.md §4.E.
package aligner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/ingesterr"
	"github.com/mocapnet/hostcore/pkg/telemetry"
)

// AlignedSet is a tuple of exactly N frames, one per camera, sharing
// a single capture timestamp.
type AlignedSet struct {
	Timestamp uint64
	Frames    []*framebuffer.Frame
}

// OnAlignedSet is the downstream consumer callback. Buffers are
// borrowed for the duration of the call and must not be retained
// beyond it (spec.md §6).
type OnAlignedSet func(set AlignedSet)

// Config configures a Synchronizer run.
type Config struct {
	// Pools is one buffer pool per camera, in the same order as the
	// roster the ingest workers were built from.
	Pools []*framebuffer.Pool

	OnAligned OnAlignedSet
	Stats     *telemetry.Stats

	// TargetAlignedSets stops the run after this many emitted sets.
	// 0 means run until ctx is cancelled (spec.md §9's "production
	// behavior" open question, resolved here as a parameter).
	TargetAlignedSets int

	// FirstFrameTimeout bounds how long the very first iteration
	// waits for every camera's first frame before declaring a
	// ProtocolError, addressing spec.md §9's "camera that never
	// publishes a first frame" gap. 0 disables the timeout.
	FirstFrameTimeout time.Duration

	// AlignmentEpsilonNS widens timestamp equality to a window
	// instead of strict bitwise equality (spec.md §9's tolerance
	// policy open question). 0 (default) means strict equality.
	AlignmentEpsilonNS uint64
}

// Synchronizer is the single-threaded (single-goroutine) cross-camera
// aligner.
type Synchronizer struct {
	cfg     Config
	current []*framebuffer.Frame
}

// New constructs a Synchronizer for the given config. len(cfg.Pools)
// is N, the camera count.
func New(cfg Config) *Synchronizer {
	return &Synchronizer{
		cfg:     cfg,
		current: make([]*framebuffer.Frame, len(cfg.Pools)),
	}
}

// Run executes the fill/align/commit loop until TargetAlignedSets is
// reached (if nonzero) or ctx is cancelled. On return, every buffer
// the synchronizer is holding has been released back to its pool's
// empty queue.
func (s *Synchronizer) Run(ctx context.Context) error {
	defer s.releaseAll()

	emitted := 0
	firstIteration := true

	for {
		if s.cfg.TargetAlignedSets > 0 && emitted >= s.cfg.TargetAlignedSets {
			return nil
		}

		if err := s.fillSlots(ctx, firstIteration); err != nil {
			return err
		}
		firstIteration = false

		if ctx.Err() != nil {
			return nil
		}

		tMax := s.maxTimestamp()

		cleared := s.recycleMismatched(tMax)
		if cleared {
			continue
		}

		set := AlignedSet{Timestamp: tMax, Frames: append([]*framebuffer.Frame(nil), s.current...)}
		if s.cfg.OnAligned != nil {
			s.cfg.OnAligned(set)
		}
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncAlignedSets()
		}
		s.releaseAligned()
		emitted++
	}
}

// fillSlots dequeues one filled buffer per empty slot, cooperatively
// busy-looping until every slot[i] is non-nil or ctx is cancelled.
// When firstIteration is set and cfg.FirstFrameTimeout is nonzero, it
// bounds the wait so a camera that never publishes a first frame
// fails fast instead of spinning forever (spec.md §9).
func (s *Synchronizer) fillSlots(ctx context.Context, firstIteration bool) error {
	var deadline time.Time
	if firstIteration && s.cfg.FirstFrameTimeout > 0 {
		deadline = time.Now().Add(s.cfg.FirstFrameTimeout)
	}

	for {
		allFilled := true
		for i, pool := range s.cfg.Pools {
			if s.current[i] != nil {
				continue
			}
			if f, ok := pool.Filled.Dequeue(); ok {
				s.current[i] = f
			} else {
				allFilled = false
			}
		}
		if allFilled {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return ingesterr.New(ingesterr.KindProtocol,
				fmt.Errorf("synchronizer: timed out waiting for first frame from all %d cameras", len(s.cfg.Pools)))
		}

		runtime.Gosched()
	}
}

// maxTimestamp returns the maximum timestamp across all filled
// slots. Preconditions: fillSlots has just returned with every slot
// non-nil (or ctx was cancelled, in which case the caller returns
// before reaching here).
func (s *Synchronizer) maxTimestamp() uint64 {
	var max uint64
	for _, f := range s.current {
		if f != nil && f.Timestamp > max {
			max = f.Timestamp
		}
	}
	return max
}

// recycleMismatched returns every slot whose timestamp falls below
// tMax (outside the configured epsilon window) back to its camera's
// empty queue and clears the slot, per spec.md §4.E step 3. Reports
// whether any slot was cleared, in which case the caller must loop
// back to fillSlots before re-checking alignment.
func (s *Synchronizer) recycleMismatched(tMax uint64) bool {
	cleared := false
	for i, f := range s.current {
		if f == nil {
			continue
		}
		if withinEpsilon(f.Timestamp, tMax, s.cfg.AlignmentEpsilonNS) {
			continue
		}
		s.cfg.Pools[i].Empty.Enqueue(f)
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncBuffersRecycled()
		}
		log.Debug().Int("camera_index", i).Uint64("timestamp", f.Timestamp).Uint64("t_max", tMax).
			Msg("recycling mismatched frame")
		s.current[i] = nil
		cleared = true
	}
	return cleared
}

func withinEpsilon(t, tMax, epsilon uint64) bool {
	if t == tMax {
		return true
	}
	if t > tMax {
		return t-tMax <= epsilon
	}
	return tMax-t <= epsilon
}

// releaseAligned returns every current slot to its empty queue and
// clears it, after a successful emit.
func (s *Synchronizer) releaseAligned() {
	for i, f := range s.current {
		if f == nil {
			continue
		}
		s.cfg.Pools[i].Empty.Enqueue(f)
		s.current[i] = nil
	}
}

// releaseAll is identical to releaseAligned; kept as a distinct,
// clearly-named call at Run's defer site for readability.
func (s *Synchronizer) releaseAll() {
	s.releaseAligned()
}
