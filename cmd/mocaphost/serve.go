package mocaphost

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mocapnet/hostcore/pkg/camera"
	"github.com/mocapnet/hostcore/pkg/config"
	"github.com/mocapnet/hostcore/pkg/consumer"
	"github.com/mocapnet/hostcore/pkg/decode"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
	"github.com/mocapnet/hostcore/pkg/ingesterr"
	"github.com/mocapnet/hostcore/pkg/telemetry"
	"github.com/mocapnet/hostcore/pkg/topology"
	"github.com/mocapnet/hostcore/pkg/transport"
)

func newServeCmd() *cobra.Command {
	var rosterPath string
	var outDir string
	var targetSets int
	var affinityCores int

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Ingest real camera streams over UDP/TCP and emit aligned sets.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rosterPath, outDir, targetSets, affinityCores)
		},
	}

	serveCmd.Flags().StringVar(&rosterPath, "roster", "", "path to the camera roster YAML file (required)")
	serveCmd.Flags().StringVar(&outDir, "out", "./mocaphost-out", "directory the reference file-writing consumer persists aligned sets to")
	serveCmd.Flags().IntVar(&targetSets, "target-sets", 0, "stop after this many aligned sets (0 = run until interrupted)")
	serveCmd.Flags().IntVar(&affinityCores, "affinity-cores", 0, "pin workers/synchronizer across this many CPU cores (0 = disabled)")
	_ = serveCmd.MarkFlagRequired("roster")

	return serveCmd
}

func runServe(ctx context.Context, rosterPath, outDir string, targetSets, affinityCores int) error {
	runCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("mocaphost: load env config: %w", err)
	}
	telemetry.Setup(runCfg.LogLevel, runCfg.LogPretty)

	roster, err := camera.Load(rosterPath)
	if err != nil {
		return fmt.Errorf("mocaphost: load roster: %w", err)
	}
	log.Info().Int("camera_count", len(roster)).Str("roster", rosterPath).Msg("loaded camera roster")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer, err := consumer.NewFileWriter(outDir)
	if err != nil {
		return fmt.Errorf("mocaphost: init file writer: %w", err)
	}

	stats := &telemetry.Stats{}

	topo, err := topology.New(topology.Config{
		Roster: roster,
		Layout: framebuffer.Layout{Width: runCfg.FrameWidth, Height: runCfg.FrameHeight},

		Sender: transport.NewUDPCommandSender(),
		Dialer: transport.NewTCPFrameSourceDialer(),
		NewDecoder: func(cam camera.Config) (decode.Decoder, error) {
			return decode.NewGstDecoder(decode.Params{
				Codec:  cam.Codec.Name,
				Width:  cam.Codec.Width,
				Height: cam.Codec.Height,
			})
		},

		OnAligned: writer.OnAlignedSet,
		Stats:     stats,

		BuffersPerCamera:   runCfg.BuffersPerCamera,
		TargetAlignedSets:  targetSets,
		FirstFrameTimeout:  runCfg.FirstFrameTimeout,
		AlignmentEpsilonNS: runCfg.AlignmentEpsilonNS,
		MaxConnectRetries:  runCfg.MaxConnectRetries,
		RetryBackoff:       runCfg.RetryBackoff,

		Affinity: topology.Affinity{Cores: affinityCores},
	})
	if err != nil {
		return fmt.Errorf("mocaphost: build topology: %w", err)
	}

	return logRunOutcome(topo.Run(ctx))
}

// logRunOutcome classifies a topology run's terminal error, if any,
// so the exit log line carries the camera id and error kind instead
// of a flat message.
func logRunOutcome(err error) error {
	if err == nil {
		log.Info().Msg("run complete")
		return nil
	}
	var classified *ingesterr.Error
	if ingesterr.As(err, &classified) {
		log.Error().Str("kind", classified.Kind.String()).Str("camera_id", classified.CameraID).
			Bool("fatal", classified.Kind.Fatal()).Msg("run ended with error")
	}
	return err
}
