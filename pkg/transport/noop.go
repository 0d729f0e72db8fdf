package transport

import (
	"context"
	"time"
)

// NoopCommandSender discards every Send, mirroring the teacher's
// NoopPubSub (api/pkg/pubsub/noop.go) used to satisfy the PubSub
// interface in unit tests that don't care about delivery.
type NoopCommandSender struct{}

// NewNoopCommandSender constructs a no-op command sender.
func NewNoopCommandSender() *NoopCommandSender { return &NoopCommandSender{} }

func (n *NoopCommandSender) Send(_ context.Context, _ string, _ []byte) error { return nil }
func (n *NoopCommandSender) Close() error                                    { return nil }

// ChanFrameSource is an in-process FrameSource backed by a Go
// channel, for ingest-worker unit tests that feed frames directly
// without a network hop.
type ChanFrameSource struct {
	frames   chan EncodedFrame
	deadline time.Time
}

// NewChanFrameSource constructs a channel-backed FrameSource with the
// given buffer depth.
func NewChanFrameSource(buffer int) *ChanFrameSource {
	return &ChanFrameSource{frames: make(chan EncodedFrame, buffer)}
}

// Push enqueues a frame for a subsequent Receive. Intended for test
// setup only.
func (c *ChanFrameSource) Push(f EncodedFrame) { c.frames <- f }

// CloseSend closes the underlying channel, causing subsequent
// Receive calls to return an end-of-stream error once drained.
func (c *ChanFrameSource) CloseSend() { close(c.frames) }

func (c *ChanFrameSource) Receive(ctx context.Context) (EncodedFrame, error) {
	var timeout <-chan time.Time
	if !c.deadline.IsZero() {
		timer := time.NewTimer(time.Until(c.deadline))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return EncodedFrame{}, ctx.Err()
	case <-timeout:
		return EncodedFrame{}, errDeadlineExceeded
	case f, ok := <-c.frames:
		if !ok {
			return EncodedFrame{}, errStreamClosed
		}
		return f, nil
	}
}

func (c *ChanFrameSource) SetDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

func (c *ChanFrameSource) Close() error { return nil }

var (
	errDeadlineExceeded = timeoutError("transport: receive deadline exceeded")
	errStreamClosed     = fmtError("transport: stream closed")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }

// timeoutError satisfies the net.Error-style Timeout() bool
// convention so callers (pkg/ingest's isTimeout) can tell a deadline
// tick apart from a real stream failure.
type timeoutError string

func (e timeoutError) Error() string   { return string(e) }
func (e timeoutError) Timeout() bool   { return true }
func (e timeoutError) Temporary() bool { return true }
