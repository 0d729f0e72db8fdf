package consumer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mocapnet/hostcore/pkg/aligner"
	"github.com/mocapnet/hostcore/pkg/framebuffer"
)

func TestFileWriterPersistsFrames(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir)
	require.NoError(t, err)

	buf := &framebuffer.Buffer{}
	frame := &framebuffer.Frame{Timestamp: 500, Buf: buf}
	set := aligner.AlignedSet{Timestamp: 500, Frames: []*framebuffer.Frame{frame}}

	w.OnAlignedSet(set)

	path := filepath.Join(dir, "500", "cam0.yuv")
	_, err = os.Stat(path)
	require.NoError(t, err)
}
