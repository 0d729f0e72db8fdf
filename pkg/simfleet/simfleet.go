// Package simfleet drives an in-process fleet of simulated cameras
// over the NATS transport, so cmd/mocaphost's simulate subcommand and
// integration tests can exercise the core end to end without real
// camera hardware. Every simulated camera publishes on the same
// timestamp grid from the start anchor, with no lag and no dropped
// frames. Publishing cadence and roster
// generation are grounded on the teacher's lightweight worker-pool
// pattern in api/pkg/agent/agent.go.
package simfleet

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/transport"
)

// GenerateRoster builds an n-camera roster addressed by camera id, so
// NATSCommandSender/NATSFrameSourceDialer (which treat the
// command/stream address as the camera id) route correctly without a
// real network endpoint.
func GenerateRoster(n int) camera.Roster {
	roster := make(camera.Roster, n)
	for i := range roster {
		id := "sim-cam-" + strconv.Itoa(i)
		roster[i] = camera.Config{
			ID:          id,
			CommandAddr: id,
			StreamAddr:  id,
			Codec:       camera.CodecParams{Name: "raw", FPS: 30},
		}
	}
	return roster
}

// Fleet is a set of simulated cameras, each a goroutine that waits
// for the start anchor, then publishes synthetic frames at a fixed
// cadence until it observes STOP or its context is cancelled.
type Fleet struct {
	nats   *transport.EmbeddedNats
	roster camera.Roster
	layout framebuffer.Layout
	period time.Duration
	wg     conc.WaitGroup
}

// NewFleet constructs a Fleet publishing frames of layout's size at
// period intervals, once started.
func NewFleet(n *transport.EmbeddedNats, roster camera.Roster, layout framebuffer.Layout, period time.Duration) (*Fleet, error) {
	if period <= 0 {
		return nil, fmt.Errorf("simfleet: period must be positive")
	}
	return &Fleet{nats: n, roster: roster, layout: layout, period: period}, nil
}

// Run spawns one goroutine per camera and returns immediately. Call
// Wait to block until every camera goroutine has exited (after ctx is
// cancelled or STOP is observed).
func (f *Fleet) Run(ctx context.Context) {
	for _, cam := range f.roster {
		cam := cam
		f.wg.Go(func() {
			if err := f.runCamera(ctx, cam); err != nil {
				log.Warn().Str("camera_id", cam.ID).Err(err).Msg("simulated camera exited with error")
			}
		})
	}
}

// Wait blocks until every simulated camera goroutine has exited.
func (f *Fleet) Wait() {
	f.wg.Wait()
}

// runCamera waits for the start anchor on its own NATS connection,
// sleeps until the anchored instant, then publishes frames every
// period until STOP arrives or ctx is cancelled.
func (f *Fleet) runCamera(ctx context.Context, cam camera.Config) error {
	conn, err := nats.Connect(f.nats.URL())
	if err != nil {
		return fmt.Errorf("simfleet: connect: %w", err)
	}
	defer conn.Close()

	stopped := make(chan struct{})
	started := make(chan uint64, 1)

	sub, err := transport.SubscribeCommands(conn, cam.ID, func(msg []byte) {
		switch {
		case len(msg) == 8:
			select {
			case started <- binary.LittleEndian.Uint64(msg):
			default:
			}
		case string(msg) == "STOP":
			select {
			case <-stopped:
			default:
				close(stopped)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("simfleet: subscribe commands: %w", err)
	}
	defer sub.Unsubscribe()

	var anchorNS uint64
	select {
	case anchorNS = <-started:
	case <-stopped:
		return nil
	case <-ctx.Done():
		return nil
	}

	if wait := time.Until(time.Unix(0, int64(anchorNS))); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-stopped:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}

	payload := make([]byte, f.layout.FrameBytes())
	ticker := time.NewTicker(f.period)
	defer ticker.Stop()

	ts := anchorNS
	for {
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := transport.PublishFrame(conn, cam.ID, ts, payload); err != nil {
				return fmt.Errorf("simfleet: publish frame: %w", err)
			}
			ts += uint64(f.period.Nanoseconds())
		}
	}
}
