// Package camera defines the camera roster: the ordered, immutable
// list of camera records loaded once at bootstrap and borrowed
// read-only by the broadcaster, ingest workers, and topology.
package camera

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mocapnet/hostcore/pkg/ingesterr"
)

// Config is one camera's static configuration. Immutable after load.
type Config struct {
	ID string `yaml:"id"`

	// CommandAddr is the host:port the time broadcaster sends the
	// start anchor and stop sentinel to.
	CommandAddr string `yaml:"command_addr"`

	// StreamAddr is the host:port the ingest worker dials to receive
	// this camera's encoded frame stream.
	StreamAddr string `yaml:"stream_addr"`

	Codec CodecParams `yaml:"codec"`
}

// CodecParams describes the stream's encoding, enough for the
// decoder black box to configure itself.
type CodecParams struct {
	Name   string `yaml:"name"` // e.g. "h264"
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// Roster is the ordered list of N camera records for a run.
type Roster []Config

// Load reads and parses a camera roster YAML file. Returns a
// ConfigError-classed error (see pkg/ingesterr) on a missing file,
// malformed YAML, an empty roster, or a duplicate camera id.
func Load(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ingesterr.New(ingesterr.KindConfig, fmt.Errorf("camera: read roster %q: %w", path, err))
	}

	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, ingesterr.New(ingesterr.KindConfig, fmt.Errorf("camera: parse roster %q: %w", path, err))
	}

	if err := roster.Validate(); err != nil {
		return nil, ingesterr.New(ingesterr.KindConfig, err)
	}

	return roster, nil
}

// Validate checks the structural invariants Load relies on: at least
// one camera, every id non-empty and unique, every endpoint present.
func (r Roster) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("camera: roster has zero cameras")
	}

	seen := make(map[string]struct{}, len(r))
	for i, c := range r {
		if c.ID == "" {
			return fmt.Errorf("camera: entry %d has empty id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("camera: duplicate camera id %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		if c.CommandAddr == "" {
			return fmt.Errorf("camera %q: missing command_addr", c.ID)
		}
		if c.StreamAddr == "" {
			return fmt.Errorf("camera %q: missing stream_addr", c.ID)
		}
	}
	return nil
}

// Count returns N, the number of cameras in the roster.
func (r Roster) Count() int { return len(r) }
