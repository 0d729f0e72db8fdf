// Package broadcast implements the time-anchored broadcast: sending
// a future wall-clock start anchor to every camera, and later the
// STOP sentinel. See spec.md §4.C.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/ingesterr"
	"github.com/mocapnet/hostcore/pkg/transport"
)

// StartDelta is the fixed lead time between sending the start anchor
// and the wall-clock instant it names, per spec.md §4.C.
const StartDelta = 1 * time.Second

// Broadcaster sends command-channel messages to every camera in a
// roster over a transport.CommandSender.
type Broadcaster struct {
	sender transport.CommandSender
	roster camera.Roster
}

// New constructs a Broadcaster for roster, delivering over sender.
func New(sender transport.CommandSender, roster camera.Roster) *Broadcaster {
	return &Broadcaster{sender: sender, roster: roster}
}

// BroadcastStartAnchor sends the 8-byte little-endian start anchor
// (now + StartDelta) to every camera's command endpoint. A failure to
// reach any camera is returned as a fatal ConfigError-adjacent
// ResourceError per spec.md §4.C: at startup this must abort the run.
func (b *Broadcaster) BroadcastStartAnchor(ctx context.Context, now time.Time) (anchor uint64, err error) {
	msg := transport.EncodeStartAnchor(now, StartDelta)
	anchor = uint64(now.Add(StartDelta).UnixNano())

	for _, cam := range b.roster {
		if sendErr := b.sender.Send(ctx, cam.CommandAddr, msg); sendErr != nil {
			return 0, ingesterr.NewForCamera(ingesterr.KindResource, cam.ID,
				fmt.Errorf("broadcast start anchor: %w", sendErr))
		}
		log.Debug().Str("camera_id", cam.ID).Uint64("anchor_ns", anchor).Msg("start anchor sent")
	}

	return anchor, nil
}

// BroadcastStop sends the ASCII STOP sentinel to every camera.
// Delivery is fire-and-forget at shutdown: a failure to reach one
// camera is logged, not returned, so that shutdown can still proceed
// for the rest of the fleet (spec.md §4.C).
func (b *Broadcaster) BroadcastStop(ctx context.Context) {
	for _, cam := range b.roster {
		if err := b.sender.Send(ctx, cam.CommandAddr, transport.StopSentinel); err != nil {
			log.Warn().Str("camera_id", cam.ID).Err(err).Msg("failed to deliver stop sentinel")
			continue
		}
		log.Debug().Str("camera_id", cam.ID).Msg("stop sentinel sent")
	}
}
