package mocaphost

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/config"
	"github.com/mocapnet/hostcore/pkg/consumer"
	"github.com/mocapnet/hostcore/pkg/decode"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/simfleet"
	"github.com/mocapnet/hostcore/pkg/telemetry"
	"github.com/mocapnet/hostcore/pkg/topology"
	"github.com/mocapnet/hostcore/pkg/transport"
)

func newSimulateCmd() *cobra.Command {
	var cameraCount int
	var outDir string
	var targetSets int
	var fps int

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the ingest core against an in-process simulated camera fleet (no hardware required).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd.Context(), cameraCount, outDir, targetSets, fps)
		},
	}

	simulateCmd.Flags().IntVar(&cameraCount, "cameras", 4, "number of simulated cameras")
	simulateCmd.Flags().StringVar(&outDir, "out", "./mocaphost-sim-out", "directory the reference file-writing consumer persists aligned sets to")
	simulateCmd.Flags().IntVar(&targetSets, "target-sets", 100, "stop after this many aligned sets (0 = run until interrupted)")
	simulateCmd.Flags().IntVar(&fps, "fps", 30, "simulated capture rate per camera")

	return simulateCmd
}

func runSimulate(ctx context.Context, cameraCount int, outDir string, targetSets, fps int) error {
	runCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("mocaphost: load env config: %w", err)
	}
	telemetry.Setup(runCfg.LogLevel, runCfg.LogPretty)

	roster := simfleet.GenerateRoster(cameraCount)
	log.Info().Int("camera_count", len(roster)).Msg("generated simulated camera roster")

	nats, err := transport.NewEmbeddedNats()
	if err != nil {
		return fmt.Errorf("mocaphost: start embedded nats: %w", err)
	}
	defer nats.Shutdown()

	layout := framebuffer.Layout{Width: runCfg.FrameWidth, Height: runCfg.FrameHeight}

	fleet, err := simfleet.NewFleet(nats, roster, layout, time.Second/time.Duration(fps))
	if err != nil {
		return fmt.Errorf("mocaphost: start simulated fleet: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fleetCtx, stopFleet := context.WithCancel(ctx)
	defer stopFleet()
	fleet.Run(fleetCtx)
	defer fleet.Wait()

	writer, err := consumer.NewFileWriter(outDir)
	if err != nil {
		return fmt.Errorf("mocaphost: init file writer: %w", err)
	}

	stats := &telemetry.Stats{}

	topo, err := topology.New(topology.Config{
		Roster: roster,
		Layout: layout,

		Sender: transport.NewNATSCommandSender(nats.Conn()),
		Dialer: transport.NewNATSFrameSourceDialer(nats.Conn()),
		NewDecoder: func(cam camera.Config) (decode.Decoder, error) {
			// Simulated cameras carry no real codec negotiation, so
			// the decoder is sized from the run's layout rather than
			// per-camera codec fields (cf. simfleet.GenerateRoster).
			return decode.NewRawDecoder(decode.Params{
				Codec:  cam.Codec.Name,
				Width:  layout.Width,
				Height: layout.Height,
			}), nil
		},

		OnAligned: writer.OnAlignedSet,
		Stats:     stats,

		BuffersPerCamera:   runCfg.BuffersPerCamera,
		TargetAlignedSets:  targetSets,
		FirstFrameTimeout:  runCfg.FirstFrameTimeout,
		AlignmentEpsilonNS: runCfg.AlignmentEpsilonNS,
		MaxConnectRetries:  runCfg.MaxConnectRetries,
		RetryBackoff:       runCfg.RetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("mocaphost: build topology: %w", err)
	}

	return logRunOutcome(topo.Run(ctx))
}
