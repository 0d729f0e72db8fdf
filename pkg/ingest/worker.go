// Package ingest implements the per-camera ingest worker: network
// receive, decode, timestamp tag, and publish into the camera's
// buffer pool. See spec.md §4.D.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/decode"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/ingesterr"
	"github.com/mocapnet/hostcore/pkg/telemetry"
	"github.com/mocapnet/hostcore/pkg/transport"
)

// State is the ingest worker's state machine position, per spec.md
// §4.D. It is tracked only for observability (logging/tests); control
// flow does not switch on it directly.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config configures one ingest worker instance.
type Config struct {
	Camera  camera.Config
	Pool    *framebuffer.Pool
	Dialer  transport.FrameSourceDialer
	Decoder decode.Decoder
	// Stats is optional. A nil Stats simply disables run-statistics
	// counting for this worker, matching pkg/aligner.Config and
	// pkg/topology.Config's treatment of the same field.
	Stats *telemetry.Stats

	// MaxConnectRetries bounds the transient-failure retry loop on
	// initial connect and on a receive failure before the worker
	// marks itself failed (spec.md §7, NetworkError).
	MaxConnectRetries int
	// RetryBackoff is the base backoff between retries; actual delay
	// grows linearly with attempt number, capped at 10x base.
	RetryBackoff time.Duration
}

// Worker is one camera's ingest worker.
type Worker struct {
	cfg   Config
	state State
}

// New constructs an ingest worker. cfg.Decoder and cfg.Dialer must be
// non-nil.
func New(cfg Config) *Worker {
	if cfg.MaxConnectRetries <= 0 {
		cfg.MaxConnectRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	return &Worker{cfg: cfg, state: StateIdle}
}

// State returns the worker's current state-machine position.
func (w *Worker) State() State { return w.state }

// Run drives the worker's receive/decode/publish loop until ctx is
// cancelled or an unrecoverable error occurs. On return, any buffer
// the worker was holding in flight has been returned to the empty
// queue so the pool conservation invariant holds.
func (w *Worker) Run(ctx context.Context) error {
	cam := w.cfg.Camera
	logger := log.With().Str("camera_id", cam.ID).Logger()

	src, err := w.dialWithRetry(ctx, &logger)
	if err != nil {
		w.state = StateStopped
		return err
	}
	defer src.Close()
	w.state = StateConnected

	w.state = StateRunning
	var lastTimestamp uint64

	for {
		select {
		case <-ctx.Done():
			w.state = StateDraining
			w.state = StateStopped
			return nil
		default:
		}

		encoded, err := w.receiveWithRetry(ctx, src, &logger)
		if err != nil {
			if ctx.Err() != nil {
				w.state = StateDraining
				w.state = StateStopped
				return nil
			}
			w.publishFailureSentinel(&logger)
			w.incStat((*telemetry.Stats).IncWorkersFailed)
			w.state = StateStopped
			return ingesterr.NewForCamera(ingesterr.KindNetwork, cam.ID,
				fmt.Errorf("persistent receive failure: %w", err))
		}

		if encoded.Timestamp != 0 && encoded.Timestamp < lastTimestamp {
			return ingesterr.NewForCamera(ingesterr.KindProtocol, cam.ID,
				fmt.Errorf("timestamp regression: %d after %d", encoded.Timestamp, lastTimestamp))
		}

		frame := w.acquireEmptyBuffer(ctx)
		if frame == nil {
			// ctx cancelled while waiting for an empty buffer.
			w.state = StateStopped
			return nil
		}

		if err := w.cfg.Decoder.Decode(encoded.Payload, frame.Buf.Bytes()); err != nil {
			if errors.Is(err, decode.ErrSizeMismatch) {
				// The negotiated layout no longer matches what the
				// stream is sending; a per-frame recycle can't recover
				// from this, per spec.md §7's ProtocolError class.
				w.cfg.Pool.Empty.Enqueue(frame)
				w.state = StateStopped
				return ingesterr.NewForCamera(ingesterr.KindProtocol, cam.ID, err)
			}
			logger.Warn().Err(err).Msg("decode failed, recycling buffer")
			w.incStat((*telemetry.Stats).IncDecodeFailures)
			w.cfg.Pool.Empty.Enqueue(frame)
			continue
		}

		frame.Timestamp = encoded.Timestamp
		lastTimestamp = encoded.Timestamp

		if ok := w.cfg.Pool.Filled.Enqueue(frame); !ok {
			// Unreachable under the pool invariant: Filled can never
			// be full while this worker just dequeued a slot from
			// Empty, since |Filled|+|Empty|+in-flight == K always.
			logger.Error().Msg("filled queue unexpectedly full, dropping frame")
			w.cfg.Pool.Empty.Enqueue(frame)
		}
	}
}

// acquireEmptyBuffer spins with a brief yield until a buffer is
// available on the empty queue or ctx is cancelled. This is the
// backpressure point described in spec.md §4.D: if the synchronizer
// is slow, the empty queue drains and this call blocks the worker,
// which in turn backs up the encoded stream.
func (w *Worker) acquireEmptyBuffer(ctx context.Context) *framebuffer.Frame {
	for {
		if f, ok := w.cfg.Pool.Empty.Dequeue(); ok {
			return f
		}
		select {
		case <-ctx.Done():
			return nil
		default:
			runtime.Gosched()
		}
	}
}

// publishFailureSentinel marks this worker as failed by publishing a
// sentinel buffer with timestamp 0 so the synchronizer can observe
// and skip it, per spec.md §4.D.
func (w *Worker) publishFailureSentinel(logger *zerolog.Logger) {
	frame, ok := w.cfg.Pool.Empty.Dequeue()
	if !ok {
		logger.Error().Msg("no empty buffer available to publish failure sentinel")
		return
	}
	frame.Timestamp = 0
	w.cfg.Pool.Filled.Enqueue(frame)
}

// dialWithRetry connects to the camera's frame stream, retrying
// transient failures with a linear backoff via retry-go, the
// context-aware retry library the teacher uses for exactly this shape
// of outbound call (api/pkg/runner/ollama_model_controller.go,
// api/pkg/openai/openai_client.go).
func (w *Worker) dialWithRetry(ctx context.Context, logger *zerolog.Logger) (transport.FrameSource, error) {
	cam := w.cfg.Camera
	src, err := retry.DoWithData(
		func() (transport.FrameSource, error) {
			return w.cfg.Dialer.Dial(ctx, cam.StreamAddr)
		},
		retry.Context(ctx),
		retry.Attempts(uint(w.cfg.MaxConnectRetries)),
		retry.DelayType(linearBackoff(w.cfg.RetryBackoff)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Msg("connect failed, retrying")
		}),
	)
	if err != nil {
		return nil, ingesterr.NewForCamera(ingesterr.KindNetwork, cam.ID,
			fmt.Errorf("failed to connect after %d attempts: %w", w.cfg.MaxConnectRetries, err))
	}
	return src, nil
}

// receiveWithRetry receives the next encoded frame, applying the same
// retry-go backoff as dialWithRetry on transient failures. A deadline
// tick (no data yet, stream still healthy) is handled entirely inside
// receiveOnce and never reaches retry-go's attempt accounting.
func (w *Worker) receiveWithRetry(ctx context.Context, src transport.FrameSource, logger *zerolog.Logger) (transport.EncodedFrame, error) {
	return retry.DoWithData(
		func() (transport.EncodedFrame, error) {
			return w.receiveOnce(ctx, src)
		},
		retry.Context(ctx),
		retry.Attempts(uint(w.cfg.MaxConnectRetries)),
		retry.DelayType(linearBackoff(w.cfg.RetryBackoff)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			w.incStat((*telemetry.Stats).IncNetworkRetries)
			logger.Warn().Err(err).Uint("attempt", n+1).Msg("frame receive failed, retrying")
		}),
	)
}

// receiveOnce installs a short deadline so a stuck Receive unblocks
// promptly on shutdown even if the peer never closes the stream
// (spec.md §5, cancellation & timeout), looping on deadline ticks
// until either a frame arrives or a real error occurs.
func (w *Worker) receiveOnce(ctx context.Context, src transport.FrameSource) (transport.EncodedFrame, error) {
	for {
		if ctx.Err() != nil {
			return transport.EncodedFrame{}, ctx.Err()
		}

		_ = src.SetDeadline(time.Now().Add(200 * time.Millisecond))

		encoded, err := src.Receive(ctx)
		if err == nil {
			return encoded, nil
		}
		if ctx.Err() != nil {
			return transport.EncodedFrame{}, ctx.Err()
		}
		if isTimeout(err) {
			continue // deadline tick, not a real failure
		}
		return transport.EncodedFrame{}, err
	}
}

// linearBackoff grows the delay linearly with attempt number, capped
// at 10x base, matching the bound documented on Config.RetryBackoff.
func linearBackoff(base time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		delay := base * time.Duration(n+1)
		if cap := base * 10; delay > cap {
			delay = cap
		}
		return delay
	}
}

// incStat is a no-op when cfg.Stats is nil, so a Worker built without
// Stats degrades gracefully instead of panicking on the first retry
// or failure event (matching pkg/aligner.Synchronizer and
// pkg/topology.Topology's nil check on the same field).
func (w *Worker) incStat(inc func(*telemetry.Stats)) {
	if w.cfg.Stats != nil {
		inc(w.cfg.Stats)
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
