// Package topology implements the bootstrap/orchestrator: allocates
// buffers and queues, spawns ingest workers, and drives the
// start/stop sequence around the synchronizer's run. See spec.md
// §4.F.
package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/mocapnet/hostcore/pkg/aligner"
	"github.com/mocapnet/hostcore/pkg/broadcast"
	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/decode"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/ingest"
	"github.com/mocapnet/hostcore/pkg/ingesterr"
	"github.com/mocapnet/hostcore/pkg/telemetry"
	"github.com/mocapnet/hostcore/pkg/transport"
)

// DecoderFactory builds the decoder for one camera's stream. Called
// once per camera at bootstrap.
type DecoderFactory func(cam camera.Config) (decode.Decoder, error)

// Config configures a full run of the ingest core.
type Config struct {
	Roster camera.Roster
	Layout framebuffer.Layout

	Sender     transport.CommandSender
	Dialer     transport.FrameSourceDialer
	NewDecoder DecoderFactory

	OnAligned aligner.OnAlignedSet
	Stats     *telemetry.Stats

	BuffersPerCamera   int
	TargetAlignedSets  int
	FirstFrameTimeout  time.Duration
	AlignmentEpsilonNS uint64
	MaxConnectRetries  int
	RetryBackoff       time.Duration

	Affinity Affinity
}

// Topology is the constructed-but-not-yet-run orchestrator.
type Topology struct {
	cfg            Config
	runID          string
	pools          []*framebuffer.Pool
	workerFailures *xsync.MapOf[string, error]
}

// RunID returns the identifier generated for this run. Run logs it on
// its "starting run" line; worker and synchronizer log lines do not
// carry it.
func (t *Topology) RunID() string { return t.runID }

// New validates cfg and allocates per-camera buffer pools. Returns a
// ConfigError/ResourceError-classed error if the roster is empty or
// allocation fails — this must happen before any worker starts
// (spec.md §4.F, §7).
func New(cfg Config) (*Topology, error) {
	if len(cfg.Roster) == 0 {
		return nil, ingesterr.New(ingesterr.KindConfig, fmt.Errorf("topology: empty camera roster"))
	}
	if cfg.BuffersPerCamera <= 0 {
		cfg.BuffersPerCamera = 32
	}

	pools := make([]*framebuffer.Pool, len(cfg.Roster))
	for i, cam := range cfg.Roster {
		pool, err := framebuffer.NewPool(cfg.Layout, cfg.BuffersPerCamera)
		if err != nil {
			return nil, ingesterr.NewForCamera(ingesterr.KindResource, cam.ID,
				fmt.Errorf("topology: allocate buffer pool: %w", err))
		}
		pools[i] = pool
	}

	return &Topology{
		cfg:            cfg,
		runID:          uuid.NewString(),
		pools:          pools,
		workerFailures: xsync.NewMapOf[string, error](),
	}, nil
}

// Run executes the full linear startup/run/shutdown sequence
// described in spec.md §4.F: spawn workers, broadcast the start
// anchor, run the synchronizer until its target is hit or ctx is
// cancelled, broadcast STOP, join every worker. Any failure before
// the workers are joined still joins them before returning, so the
// buffer pools are never freed while a worker might still touch them.
func (t *Topology) Run(ctx context.Context) error {
	log.Info().Str("run_id", t.runID).Int("camera_count", len(t.cfg.Roster)).Msg("starting run")

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg conc.WaitGroup
	for i, cam := range t.cfg.Roster {
		i, cam := i, cam
		dec, err := t.cfg.NewDecoder(cam)
		if err != nil {
			cancelWorkers()
			wg.Wait()
			return ingesterr.NewForCamera(ingesterr.KindResource, cam.ID,
				fmt.Errorf("topology: build decoder: %w", err))
		}

		worker := ingest.New(ingest.Config{
			Camera:            cam,
			Pool:              t.pools[i],
			Dialer:            t.cfg.Dialer,
			Decoder:           dec,
			Stats:             t.cfg.Stats,
			MaxConnectRetries: t.cfg.MaxConnectRetries,
			RetryBackoff:      t.cfg.RetryBackoff,
		})

		wg.Go(func() {
			if pinErr := t.cfg.Affinity.PinWorker(i); pinErr != nil {
				log.Warn().Str("camera_id", cam.ID).Err(pinErr).Msg("failed to pin worker affinity")
			}
			if runErr := worker.Run(workerCtx); runErr != nil {
				t.workerFailures.Store(cam.ID, runErr)
				log.Error().Str("camera_id", cam.ID).Err(runErr).Msg("ingest worker exited with error")
			}
			dec.Close()
		})
	}

	broadcaster := broadcast.New(t.cfg.Sender, t.cfg.Roster)

	if _, err := broadcaster.BroadcastStartAnchor(ctx, time.Now()); err != nil {
		cancelWorkers()
		wg.Wait()
		return err
	}

	if pinErr := t.cfg.Affinity.PinSynchronizer(len(t.cfg.Roster)); pinErr != nil {
		log.Warn().Err(pinErr).Msg("failed to pin synchronizer affinity")
	}

	synchronizer := aligner.New(aligner.Config{
		Pools:              t.pools,
		OnAligned:          t.cfg.OnAligned,
		Stats:              t.cfg.Stats,
		TargetAlignedSets:  t.cfg.TargetAlignedSets,
		FirstFrameTimeout:  t.cfg.FirstFrameTimeout,
		AlignmentEpsilonNS: t.cfg.AlignmentEpsilonNS,
	})

	syncErr := synchronizer.Run(ctx)

	broadcaster.BroadcastStop(context.Background())
	cancelWorkers()
	wg.Wait()

	if t.cfg.Stats != nil {
		t.cfg.Stats.LogFinal()
	}

	return syncErr
}

// FailedCameras returns the ids of any ingest workers that exited
// with an error during the run.
func (t *Topology) FailedCameras() map[string]error {
	out := make(map[string]error)
	t.workerFailures.Range(func(id string, err error) bool {
		out[id] = err
		return true
	})
	return out
}
