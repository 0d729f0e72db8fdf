// Package consumer provides a reference implementation of the
// downstream on_aligned_set callback (spec.md §6): a writer that
// persists each aligned set's frames to a run directory for offline
// inspection. The distilled spec scopes real downstream consumers
// (3D reconstruction, dataset writers) out; this is the minimal
// concrete implementation needed to exercise the callback contract
// end to end.
package consumer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/mocapnet/hostcore/pkg/aligner"
)

// FileWriter writes each aligned set's frames to
// <dir>/<timestamp>/cam<index>.yuv.
type FileWriter struct {
	dir string
}

// NewFileWriter constructs a FileWriter rooted at dir, creating it if
// necessary.
func NewFileWriter(dir string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("consumer: create run dir %q: %w", dir, err)
	}
	return &FileWriter{dir: dir}, nil
}

// OnAlignedSet implements aligner.OnAlignedSet.
func (w *FileWriter) OnAlignedSet(set aligner.AlignedSet) {
	setDir := filepath.Join(w.dir, fmt.Sprintf("%d", set.Timestamp))
	if err := os.MkdirAll(setDir, 0o755); err != nil {
		log.Error().Err(err).Uint64("timestamp", set.Timestamp).Msg("failed to create aligned set directory")
		return
	}

	for i, f := range set.Frames {
		path := filepath.Join(setDir, fmt.Sprintf("cam%d.yuv", i))
		if err := os.WriteFile(path, f.Buf.Bytes(), 0o644); err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to write frame")
		}
	}
}
