package topology

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mocapnet/hostcore/pkg/aligner"
	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/decode"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/telemetry"
	"github.com/mocapnet/hostcore/pkg/transport"
)

// chanDialer hands out one pre-wired ChanFrameSource per stream
// address, so the test can push frames onto the exact source an
// ingest worker will dial.
type chanDialer struct {
	mu      sync.Mutex
	sources map[string]*transport.ChanFrameSource
}

func newChanDialer() *chanDialer {
	return &chanDialer{sources: make(map[string]*transport.ChanFrameSource)}
}

func (d *chanDialer) sourceFor(addr string) *transport.ChanFrameSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.sources[addr]
	if !ok {
		src = transport.NewChanFrameSource(8)
		d.sources[addr] = src
	}
	return src
}

func (d *chanDialer) Dial(ctx context.Context, addr string) (transport.FrameSource, error) {
	return d.sourceFor(addr), nil
}

func testLayout() framebuffer.Layout { return framebuffer.Layout{Width: 4, Height: 4} }

func testRoster(n int) camera.Roster {
	roster := make(camera.Roster, n)
	for i := range roster {
		id := string(rune('A' + i))
		roster[i] = camera.Config{
			ID:          id,
			CommandAddr: "cmd://" + id,
			StreamAddr:  "stream://" + id,
			Codec:       camera.CodecParams{Name: "raw", Width: 4, Height: 4, FPS: 30},
		}
	}
	return roster
}

func TestTopologyRunsToTargetAndJoinsWorkers(t *testing.T) {
	roster := testRoster(2)
	dialer := newChanDialer()

	frameBytes := testLayout().FrameBytes()

	var aligned int
	var mu sync.Mutex
	onAligned := func(set aligner.AlignedSet) {
		mu.Lock()
		aligned++
		mu.Unlock()
	}

	topo, err := New(Config{
		Roster:             roster,
		Layout:             testLayout(),
		Sender:             transport.NewNoopCommandSender(),
		Dialer:             dialer,
		NewDecoder: func(cam camera.Config) (decode.Decoder, error) {
			return decode.NewRawDecoder(decode.Params{
				Codec: cam.Codec.Name, Width: cam.Codec.Width, Height: cam.Codec.Height,
			}), nil
		},
		OnAligned:          onAligned,
		Stats:              &telemetry.Stats{},
		BuffersPerCamera:   8,
		TargetAlignedSets:  3,
		FirstFrameTimeout:  2 * time.Second,
		MaxConnectRetries:  2,
		RetryBackoff:       5 * time.Millisecond,
	})
	require.NoError(t, err)

	// Feed 3 aligned frames to each camera at matching timestamps.
	go func() {
		for ts := uint64(1); ts <= 3; ts++ {
			for _, c := range roster {
				dialer.sourceFor(c.StreamAddr).Push(transport.EncodedFrame{
					Timestamp: ts,
					Payload:   make([]byte, frameBytes),
				})
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := topo.Run(ctx)
	require.NoError(t, runErr)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, aligned)
	require.Empty(t, topo.FailedCameras())
}
