package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// UDPCommandSender sends command-channel messages as single UDP
// datagrams, one send per camera, matching spec.md §4.C's "reliable"
// (best-effort, connection-oriented-in-spirit) delivery contract.
type UDPCommandSender struct{}

// NewUDPCommandSender constructs a UDP-backed command sender.
func NewUDPCommandSender() *UDPCommandSender { return &UDPCommandSender{} }

// Send dials addr over UDP and writes msg as a single datagram.
func (u *UDPCommandSender) Send(ctx context.Context, addr string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}

	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return nil
}

// Close is a no-op; UDPCommandSender holds no persistent connection.
func (u *UDPCommandSender) Close() error { return nil }

// EncodeStartAnchor produces the 8-byte little-endian start anchor:
// now + delta, in nanoseconds since epoch.
func EncodeStartAnchor(now time.Time, delta time.Duration) []byte {
	anchor := uint64(now.Add(delta).UnixNano())
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, anchor)
	return buf
}

// StopSentinel is the 4-byte ASCII STOP message, no terminator.
var StopSentinel = []byte("STOP")

// TCPFrameSourceDialer dials a camera's stream endpoint over TCP.
// Each frame on the wire is framed as: 8-byte little-endian
// timestamp, 4-byte little-endian payload length, then the payload.
type TCPFrameSourceDialer struct{}

// NewTCPFrameSourceDialer constructs a TCP-backed frame source
// dialer.
func NewTCPFrameSourceDialer() *TCPFrameSourceDialer { return &TCPFrameSourceDialer{} }

// Dial connects to addr and returns a FrameSource reading the
// length-prefixed frame stream described above.
func (t *TCPFrameSourceDialer) Dial(ctx context.Context, addr string) (FrameSource, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &tcpFrameSource{conn: conn}, nil
}

type tcpFrameSource struct {
	conn net.Conn
}

func (s *tcpFrameSource) Receive(ctx context.Context) (EncodedFrame, error) {
	header := make([]byte, 12)
	if _, err := readFull(s.conn, header); err != nil {
		return EncodedFrame{}, err
	}
	ts := binary.LittleEndian.Uint64(header[0:8])
	length := binary.LittleEndian.Uint32(header[8:12])

	payload := make([]byte, length)
	if _, err := readFull(s.conn, payload); err != nil {
		return EncodedFrame{}, err
	}

	return EncodedFrame{Timestamp: ts, Payload: payload}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *tcpFrameSource) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

func (s *tcpFrameSource) Close() error {
	return s.conn.Close()
}
