package framebuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPoolPrimesEmptyQueue(t *testing.T) {
	p, err := NewPool(Layout{Width: 4, Height: 4}, 8)
	require.NoError(t, err)

	require.Equal(t, 8, p.Empty.Len())
	require.Equal(t, 0, p.Filled.Len())
	require.Equal(t, p.layout.FrameBytes(), len(p.slots[0].Buf.Bytes()))
}

func TestFrameBytesYUV420(t *testing.T) {
	l := Layout{Width: 640, Height: 480}
	require.Equal(t, 640*480*3/2, l.FrameBytes())
}

// TestPoolConservation exercises property 1 from the spec: for every
// observable moment, |Filled| + |Empty| + in-flight == Capacity.
func TestPoolConservation(t *testing.T) {
	const k = 16
	p, err := NewPool(Layout{Width: 8, Height: 8}, k)
	require.NoError(t, err)

	inFlight := 0
	for i := 0; i < k; i++ {
		_, ok := p.Empty.Dequeue()
		require.True(t, ok)
		inFlight++
		require.Equal(t, k, p.Filled.Len()+p.Empty.Len()+inFlight)
	}

	for i := 0; i < k; i++ {
		// Simulate publish: move a dequeued-from-empty slot into filled.
		f := &p.slots[i]
		require.True(t, p.Filled.Enqueue(f))
		inFlight--
		require.Equal(t, k, p.Filled.Len()+p.Empty.Len()+inFlight)
	}
}

func TestInvalidLayoutRejected(t *testing.T) {
	_, err := NewPool(Layout{Width: 0, Height: 0}, 4)
	require.Error(t, err)
}
