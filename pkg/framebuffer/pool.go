// Package framebuffer implements the per-camera pool of fixed-size
// pixel buffers and the pair of SPSC queues (filled, empty) that
// transfer buffer ownership between an ingest worker and the
// synchronizer.
package framebuffer

import (
	"fmt"

	"github.com/mocapnet/hostcore/pkg/queue"
)

// Layout describes the fixed frame geometry for a run. All buffers in
// a run are the same size: planar YUV 4:2:0, W*H*3/2 bytes.
type Layout struct {
	Width  int
	Height int
}

// FrameBytes returns the size in bytes of one planar YUV 4:2:0 frame
// at this layout.
func (l Layout) FrameBytes() int {
	return l.Width * l.Height * 3 / 2
}

// Buffer is a fixed-size pixel region holding one decoded frame.
// Ownership is exclusive and transferred by queue operation: at any
// instant a *Frame referencing this Buffer belongs to exactly one of
// {ingest worker, filled queue, synchronizer, empty queue}.
type Buffer struct {
	bytes []byte
}

// Bytes returns the buffer's backing storage. Callers must not retain
// the slice beyond the point at which the buffer is returned to its
// empty queue — a later decode will overwrite it in place.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Frame pairs a capture timestamp with the buffer it was decoded
// into. The timestamp is written once by the ingest worker before
// publish and is read-only thereafter until the buffer re-enters the
// empty queue.
type Frame struct {
	Timestamp uint64
	Buf       *Buffer
}

// Pool is the fixed-capacity buffer pool for a single camera: K
// TimestampedFrame slots carved from one contiguous allocation, plus
// the filled/empty SPSC queue pair that moves them between the
// ingest worker and the synchronizer.
//
// Invariant (pool conservation): at every observable moment,
// |Filled| + |Empty| + in-flight-at-worker + in-flight-at-synchronizer
// equals Capacity.
type Pool struct {
	layout   Layout
	capacity int

	region []byte  // one contiguous K*FrameBytes() allocation
	slots  []Frame // K slots, each pointing into region

	Filled *queue.SPSC[Frame]
	Empty  *queue.SPSC[Frame]
}

// NewPool allocates a pool of capacity slots at the given layout,
// carves the backing region into per-slot buffers, and primes the
// empty queue with all of them. Filled starts empty. capacity must be
// a power of two (the SPSC queue requirement).
func NewPool(layout Layout, capacity int) (*Pool, error) {
	frameBytes := layout.FrameBytes()
	if frameBytes <= 0 {
		return nil, fmt.Errorf("framebuffer: invalid layout %+v", layout)
	}

	p := &Pool{
		layout:   layout,
		capacity: capacity,
		region:   make([]byte, capacity*frameBytes),
		slots:    make([]Frame, capacity),
		Filled:   queue.New[Frame](capacity),
		Empty:    queue.New[Frame](capacity),
	}

	for i := 0; i < capacity; i++ {
		start := i * frameBytes
		p.slots[i] = Frame{
			Buf: &Buffer{bytes: p.region[start : start+frameBytes : start+frameBytes]},
		}
		if ok := p.Empty.Enqueue(&p.slots[i]); !ok {
			// Unreachable: Empty was just constructed with this
			// exact capacity and nothing else has enqueued to it.
			return nil, fmt.Errorf("framebuffer: failed to prime empty queue, slot %d", i)
		}
	}

	return p, nil
}

// Capacity returns K, the fixed number of slots in this pool.
func (p *Pool) Capacity() int { return p.capacity }

// Layout returns the frame geometry this pool was built for.
func (p *Pool) Layout() Layout { return p.layout }
