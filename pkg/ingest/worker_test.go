package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/decode"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/queue"
	"github.com/mocapnet/hostcore/pkg/telemetry"
	"github.com/mocapnet/hostcore/pkg/transport"
)

type chanDialer struct {
	src *transport.ChanFrameSource
}

func (d *chanDialer) Dial(_ context.Context, _ string) (transport.FrameSource, error) {
	return d.src, nil
}

type failingDecoder struct {
	failOn map[int]bool
	calls  int
	params decode.Params
}

func (f *failingDecoder) Decode(encoded []byte, out []byte) error {
	defer func() { f.calls++ }()
	if f.failOn[f.calls] {
		return errors.New("simulated decode failure")
	}
	return decode.NewRawDecoder(f.params).Decode(encoded, out)
}

func (f *failingDecoder) Close() error { return nil }

func newTestWorker(t *testing.T, src *transport.ChanFrameSource, dec decode.Decoder, pool *framebuffer.Pool) *Worker {
	t.Helper()
	return New(Config{
		Camera:            camera.Config{ID: "cam0", StreamAddr: "ignored"},
		Pool:              pool,
		Dialer:            &chanDialer{src: src},
		Decoder:           dec,
		Stats:             &telemetry.Stats{},
		MaxConnectRetries: 3,
		RetryBackoff:      time.Millisecond,
	})
}

func frameBytes(layout framebuffer.Layout, fill byte) []byte {
	b := make([]byte, layout.FrameBytes())
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestWorkerPublishesDecodedFrames(t *testing.T) {
	layout := framebuffer.Layout{Width: 2, Height: 2}
	pool, err := framebuffer.NewPool(layout, 4)
	require.NoError(t, err)

	src := transport.NewChanFrameSource(4)
	src.Push(transport.EncodedFrame{Timestamp: 100, Payload: frameBytes(layout, 1)})
	src.Push(transport.EncodedFrame{Timestamp: 200, Payload: frameBytes(layout, 2)})

	w := newTestWorker(t, src, decode.NewRawDecoder(decode.Params{Width: layout.Width, Height: layout.Height}), pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	f1 := mustDequeue(t, pool.Filled)
	require.Equal(t, uint64(100), f1.Timestamp)
	f2 := mustDequeue(t, pool.Filled)
	require.Equal(t, uint64(200), f2.Timestamp)

	cancel()
	require.NoError(t, <-done)
}

func TestWorkerRecyclesOnDecodeFailure(t *testing.T) {
	layout := framebuffer.Layout{Width: 2, Height: 2}
	pool, err := framebuffer.NewPool(layout, 4)
	require.NoError(t, err)

	src := transport.NewChanFrameSource(4)
	src.Push(transport.EncodedFrame{Timestamp: 100, Payload: frameBytes(layout, 1)})
	src.Push(transport.EncodedFrame{Timestamp: 200, Payload: frameBytes(layout, 2)})

	dec := &failingDecoder{failOn: map[int]bool{0: true}, params: decode.Params{Width: layout.Width, Height: layout.Height}}
	w := newTestWorker(t, src, dec, pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Only the second (successfully decoded) frame should ever reach Filled.
	f := mustDequeue(t, pool.Filled)
	require.Equal(t, uint64(200), f.Timestamp)

	cancel()
	require.NoError(t, <-done)
}

func TestWorkerBlocksOnEmptyBackpressure(t *testing.T) {
	layout := framebuffer.Layout{Width: 2, Height: 2}
	pool, err := framebuffer.NewPool(layout, 1) // capacity 1: second frame must block
	require.NoError(t, err)

	src := transport.NewChanFrameSource(4)
	src.Push(transport.EncodedFrame{Timestamp: 100, Payload: frameBytes(layout, 1)})
	src.Push(transport.EncodedFrame{Timestamp: 200, Payload: frameBytes(layout, 2)})

	w := newTestWorker(t, src, decode.NewRawDecoder(decode.Params{Width: layout.Width, Height: layout.Height}), pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	f1 := mustDequeue(t, pool.Filled)
	require.Equal(t, uint64(100), f1.Timestamp)

	// Worker should now be blocked acquiring the empty buffer for the
	// second frame, since we haven't returned f1 yet.
	time.Sleep(20 * time.Millisecond)
	_, ok := pool.Filled.Dequeue()
	require.False(t, ok, "second frame must not publish until a buffer is freed")

	pool.Empty.Enqueue(f1)
	f2 := mustDequeue(t, pool.Filled)
	require.Equal(t, uint64(200), f2.Timestamp)
}

func mustDequeue(t *testing.T, q *queue.SPSC[framebuffer.Frame]) *framebuffer.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := q.Dequeue(); ok {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for filled frame")
	return nil
}
