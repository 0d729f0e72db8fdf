package simfleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mocapnet/hostcore/pkg/broadcast"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/transport"
)

func TestGenerateRosterProducesUniqueAddressableCameras(t *testing.T) {
	roster := GenerateRoster(3)
	require.Len(t, roster, 3)

	seen := make(map[string]struct{})
	for _, cam := range roster {
		require.Equal(t, cam.ID, cam.CommandAddr)
		require.Equal(t, cam.ID, cam.StreamAddr)
		_, dup := seen[cam.ID]
		require.False(t, dup)
		seen[cam.ID] = struct{}{}
	}
}

func TestFleetPublishesAfterStartAnchor(t *testing.T) {
	n, err := transport.NewEmbeddedNats()
	require.NoError(t, err)
	defer n.Shutdown()

	roster := GenerateRoster(1)
	layout := framebuffer.Layout{Width: 4, Height: 4}

	fleet, err := NewFleet(n, roster, layout, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	fleet.Run(ctx)
	defer fleet.Wait()

	dialer := transport.NewNATSFrameSourceDialer(n.Conn())
	src, err := dialer.Dial(ctx, roster[0].StreamAddr)
	require.NoError(t, err)
	defer src.Close()

	broadcaster := broadcast.New(transport.NewNATSCommandSender(n.Conn()), roster)
	_, err = broadcaster.BroadcastStartAnchor(ctx, time.Now())
	require.NoError(t, err)

	src.SetDeadline(time.Now().Add(2 * time.Second))
	frame, err := src.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, frame.Payload, layout.FrameBytes())

	cancel()
}
