// Package transport provides the command-channel (broadcast) and
// frame-stream transports the core depends on at its network
// boundary. Two implementations exist: udp.go/tcp-based production
// transports dialing real camera endpoints, and nats.go, a NATS
// publish/subscribe transport used by the simulated
// camera fleet for local development and integration tests — the
// same decoupling the teacher applies via pkg/pubsub.PubSub.
package transport

import (
	"context"
	"time"
)

// CommandSender delivers the two command-channel message shapes the
// core ever sends: the 8-byte start anchor and the 4-byte ASCII STOP
// sentinel (spec.md §6).
type CommandSender interface {
	// Send delivers msg to the camera identified by addr. The
	// production implementation (UDPCommandSender) writes exactly one
	// UDP datagram per call; delivery is best-effort.
	Send(ctx context.Context, addr string, msg []byte) error

	Close() error
}

// EncodedFrame is one frame as received off the wire, before
// decoding: an encoded payload plus the capture timestamp carried
// alongside it in the transport framing (spec.md §6).
type EncodedFrame struct {
	Timestamp uint64
	Payload   []byte
}

// FrameSource is the per-camera frame-stream receive side. One
// FrameSource is created per camera by the ingest worker.
type FrameSource interface {
	// Receive blocks for the next frame, or returns an error on
	// connection failure. Must return promptly once ctx is
	// cancelled or a deadline set via SetDeadline elapses.
	Receive(ctx context.Context) (EncodedFrame, error)

	// SetDeadline installs a read deadline so a blocked Receive can
	// be unblocked at shutdown even without stream closure (spec.md
	// §5, "Cancellation & timeout").
	SetDeadline(t time.Time) error

	Close() error
}

// FrameSourceDialer establishes a FrameSource for one camera's
// stream endpoint.
type FrameSourceDialer interface {
	Dial(ctx context.Context, addr string) (FrameSource, error)
}
