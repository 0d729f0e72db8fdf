// Package config loads process-level configuration via environment
// variables, following the teacher's split of envconfig-bound structs
// for process knobs and file-based loaders (pkg/camera) for larger
// structured data like the camera roster.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RunConfig holds the environment-configurable knobs for a
// mocaphost run, bound on top of the roster path and aligned-set
// target which remain CLI flags (cf. api/pkg/config.RunnerConfig).
type RunConfig struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	FrameWidth  int `envconfig:"FRAME_WIDTH" default:"1280"`
	FrameHeight int `envconfig:"FRAME_HEIGHT" default:"720"`

	// BuffersPerCamera is K, the per-camera pool capacity. Must be a
	// power of two (pkg/queue's SPSC requirement).
	BuffersPerCamera int `envconfig:"BUFFERS_PER_CAMERA" default:"32"`

	MaxConnectRetries int           `envconfig:"MAX_CONNECT_RETRIES" default:"5"`
	RetryBackoff      time.Duration `envconfig:"RETRY_BACKOFF" default:"50ms"`

	FirstFrameTimeout  time.Duration `envconfig:"FIRST_FRAME_TIMEOUT" default:"10s"`
	AlignmentEpsilonNS uint64        `envconfig:"ALIGNMENT_EPSILON_NS" default:"0"`
}

// Load parses RunConfig from the process environment.
func Load() (RunConfig, error) {
	var cfg RunConfig
	if err := envconfig.Process("MOCAPHOST", &cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}
