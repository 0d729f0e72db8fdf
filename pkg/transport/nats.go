package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NATS subjects used by the simulated fleet. One command subject and
// one frame-stream subject per camera id.
func commandSubject(cameraID string) string { return "mocap.cmd." + cameraID }
func frameSubject(cameraID string) string   { return "mocap.frames." + cameraID }

// EmbeddedNats runs an in-process NATS server for the simulate
// command and for integration tests, mirroring the teacher's
// NewInMemoryNats helper (api/pkg/pubsub/nats.go) used throughout its
// scheduler/runner test suite.
type EmbeddedNats struct {
	srv  *server.Server
	conn *nats.Conn
}

// NewEmbeddedNats starts an embedded NATS server bound to an
// ephemeral port and returns a client connection to it.
func NewEmbeddedNats() (*EmbeddedNats, error) {
	storeDir, err := os.MkdirTemp("", "mocaphost-nats")
	if err != nil {
		return nil, fmt.Errorf("transport: nats store dir: %w", err)
	}

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: false,
		StoreDir:  storeDir,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("transport: start embedded nats: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("transport: embedded nats did not become ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("transport: connect to embedded nats: %w", err)
	}

	return &EmbeddedNats{srv: ns, conn: nc}, nil
}

// URL returns the embedded server's client connection URL, for
// connecting independent simulated-camera processes/goroutines.
func (e *EmbeddedNats) URL() string { return e.srv.ClientURL() }

// Conn returns the shared client connection used by the core's own
// sender/dialer. Simulated camera publishers should open their own
// connection via URL() instead of sharing this one.
func (e *EmbeddedNats) Conn() *nats.Conn { return e.conn }

// Shutdown closes the client connection and stops the embedded
// server.
func (e *EmbeddedNats) Shutdown() {
	e.conn.Close()
	e.srv.Shutdown()
}

// NATSCommandSender sends command-channel messages as NATS publishes
// to a per-camera subject. Used by cmd/mocaphost simulate in place
// of real UDP so the whole core can be exercised without hardware.
type NATSCommandSender struct {
	conn *nats.Conn
}

// NewNATSCommandSender wraps an existing NATS connection.
func NewNATSCommandSender(conn *nats.Conn) *NATSCommandSender {
	return &NATSCommandSender{conn: conn}
}

// Send publishes msg to the camera's command subject. addr is
// interpreted as the camera id in simulate mode (no real network
// endpoint exists).
func (n *NATSCommandSender) Send(_ context.Context, addr string, msg []byte) error {
	return n.conn.Publish(commandSubject(addr), msg)
}

// Close flushes but does not close the shared connection; ownership
// stays with whoever created it via NewEmbeddedNats.
func (n *NATSCommandSender) Close() error {
	return n.conn.FlushTimeout(time.Second)
}

// NATSFrameSourceDialer resolves a camera id to a NATS subscription
// acting as that camera's frame stream.
type NATSFrameSourceDialer struct {
	conn *nats.Conn
}

// NewNATSFrameSourceDialer wraps an existing NATS connection.
func NewNATSFrameSourceDialer(conn *nats.Conn) *NATSFrameSourceDialer {
	return &NATSFrameSourceDialer{conn: conn}
}

// Dial subscribes to the camera id's frame subject. addr is the
// camera id in simulate mode.
func (d *NATSFrameSourceDialer) Dial(_ context.Context, addr string) (FrameSource, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := d.conn.ChanSubscribe(frameSubject(addr), msgs)
	if err != nil {
		return nil, fmt.Errorf("transport: subscribe %s: %w", addr, err)
	}
	return &natsFrameSource{sub: sub, msgs: msgs}, nil
}

type natsFrameSource struct {
	sub      *nats.Subscription
	msgs     chan *nats.Msg
	deadline time.Time
}

func (s *natsFrameSource) Receive(ctx context.Context) (EncodedFrame, error) {
	var timeout <-chan time.Time
	if !s.deadline.IsZero() {
		timer := time.NewTimer(time.Until(s.deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return EncodedFrame{}, ctx.Err()
	case <-timeout:
		return EncodedFrame{}, errDeadlineExceeded
	case msg, ok := <-s.msgs:
		if !ok {
			return EncodedFrame{}, fmt.Errorf("transport: frame subject closed")
		}
		return decodeFrameMessage(msg)
	}
}

func (s *natsFrameSource) SetDeadline(t time.Time) error {
	s.deadline = t
	return nil
}

func (s *natsFrameSource) Close() error {
	return s.sub.Unsubscribe()
}

// decodeFrameMessage reads the same 12-byte header tcpFrameSource
// uses (timestamp + length), keeping the wire format identical
// across transports so pkg/ingest doesn't need to branch on it.
func decodeFrameMessage(msg *nats.Msg) (EncodedFrame, error) {
	if len(msg.Data) < 12 {
		return EncodedFrame{}, fmt.Errorf("transport: short frame message")
	}
	ts := uint64(msg.Data[0]) | uint64(msg.Data[1])<<8 | uint64(msg.Data[2])<<16 | uint64(msg.Data[3])<<24 |
		uint64(msg.Data[4])<<32 | uint64(msg.Data[5])<<40 | uint64(msg.Data[6])<<48 | uint64(msg.Data[7])<<56
	length := uint32(msg.Data[8]) | uint32(msg.Data[9])<<8 | uint32(msg.Data[10])<<16 | uint32(msg.Data[11])<<24
	if len(msg.Data) < 12+int(length) {
		return EncodedFrame{}, fmt.Errorf("transport: truncated frame payload")
	}
	payload := make([]byte, length)
	copy(payload, msg.Data[12:12+length])
	return EncodedFrame{Timestamp: ts, Payload: payload}, nil
}

// EncodeFrameMessage is the inverse of decodeFrameMessage, used by
// the simulated camera publisher.
func EncodeFrameMessage(ts uint64, payload []byte) []byte {
	buf := make([]byte, 12+len(payload))
	for i := 0; i < 8; i++ {
		buf[i] = byte(ts >> (8 * i))
	}
	length := uint32(len(payload))
	for i := 0; i < 4; i++ {
		buf[8+i] = byte(length >> (8 * i))
	}
	copy(buf[12:], payload)
	return buf
}

// PublishFrame is a convenience used by the simulated fleet to push
// one frame onto a camera's subject.
func PublishFrame(conn *nats.Conn, cameraID string, ts uint64, payload []byte) error {
	return conn.Publish(frameSubject(cameraID), EncodeFrameMessage(ts, payload))
}

// SubscribeCommands lets a simulated camera observe the start
// anchor/STOP sentinel sent to it.
func SubscribeCommands(conn *nats.Conn, cameraID string, handler func(msg []byte)) (*nats.Subscription, error) {
	return conn.Subscribe(commandSubject(cameraID), func(m *nats.Msg) {
		handler(m.Data)
	})
}
