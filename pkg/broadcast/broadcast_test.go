package broadcast

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mocapnet/hostcore/pkg/camera"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][][]byte
	fail map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][][]byte), fail: make(map[string]bool)}
}

func (r *recordingSender) Send(_ context.Context, addr string, msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[addr] {
		return errors.New("boom")
	}
	r.sent[addr] = append(r.sent[addr], msg)
	return nil
}

func (r *recordingSender) Close() error { return nil }

func testRoster() camera.Roster {
	return camera.Roster{
		{ID: "cam0", CommandAddr: "10.0.0.1:9000", StreamAddr: "10.0.0.1:9001"},
		{ID: "cam1", CommandAddr: "10.0.0.2:9000", StreamAddr: "10.0.0.2:9001"},
	}
}

func TestBroadcastStartAnchorSendsToEveryCamera(t *testing.T) {
	sender := newRecordingSender()
	b := New(sender, testRoster())

	now := time.Unix(1000, 0)
	anchor, err := b.BroadcastStartAnchor(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, uint64(now.Add(StartDelta).UnixNano()), anchor)

	for _, cam := range testRoster() {
		msgs := sender.sent[cam.CommandAddr]
		require.Len(t, msgs, 1)
		require.Len(t, msgs[0], 8)
		require.Equal(t, anchor, binary.LittleEndian.Uint64(msgs[0]))
	}
}

func TestBroadcastStartAnchorFailsFatally(t *testing.T) {
	sender := newRecordingSender()
	sender.fail["10.0.0.2:9000"] = true
	b := New(sender, testRoster())

	_, err := b.BroadcastStartAnchor(context.Background(), time.Now())
	require.Error(t, err)
}

func TestBroadcastStopIsFireAndForget(t *testing.T) {
	sender := newRecordingSender()
	sender.fail["10.0.0.1:9000"] = true
	b := New(sender, testRoster())

	// Must not panic or block even though cam0 fails.
	b.BroadcastStop(context.Background())

	require.Len(t, sender.sent["10.0.0.2:9000"], 1)
	require.Equal(t, []byte("STOP"), sender.sent["10.0.0.2:9000"][0])
}
