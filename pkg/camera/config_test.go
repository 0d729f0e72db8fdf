package camera

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidRoster(t *testing.T) {
	path := writeRoster(t, `
- id: cam0
  command_addr: 10.0.0.1:9000
  stream_addr: 10.0.0.1:9001
  codec: {name: h264, width: 1280, height: 720, fps: 60}
- id: cam1
  command_addr: 10.0.0.2:9000
  stream_addr: 10.0.0.2:9001
  codec: {name: h264, width: 1280, height: 720, fps: 60}
`)

	roster, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, roster.Count())
	require.Equal(t, "cam0", roster[0].ID)
	require.Equal(t, 1280, roster[1].Codec.Width)
}

func TestLoadRejectsEmptyRoster(t *testing.T) {
	path := writeRoster(t, `[]`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	path := writeRoster(t, `
- id: cam0
  command_addr: a:1
  stream_addr: a:2
- id: cam0
  command_addr: b:1
  stream_addr: b:2
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/roster.yaml")
	require.Error(t, err)
}

func TestLoadRejectsMissingEndpoint(t *testing.T) {
	path := writeRoster(t, `
- id: cam0
  stream_addr: a:2
`)
	_, err := Load(path)
	require.Error(t, err)
}
