// Package mocaphost is the process entrypoint's command tree: serve
// runs against a real camera roster and real UDP/TCP transports,
// simulate drives the same core over an embedded NATS fleet for local
// development and integration testing, mirroring the teacher's
// split of cmd/helix into one package with per-concern subcommand
// files (root.go, serve.go, runner.go).
package mocaphost

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() { //nolint:gochecknoinits
	NewRootCmd()
}

// NewRootCmd builds the mocaphost command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mocaphost",
		Short: "mocaphost",
		Long:  "Multi-camera motion-capture ingest host core",
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSimulateCmd())

	return rootCmd
}

// Execute runs the root command, exiting the process with status 1
// on error.
func Execute() {
	rootCmd := NewRootCmd()
	rootCmd.SetContext(context.Background())
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("mocaphost exited with error")
	}
}
