// Package testing provides shared fixtures for sectorfs tests: scratch
// volumes booted against temporary backing files, and raw-image access for
// comparing whole device states.
package testing

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/dsalter/sectorfs/blockdev"
	"github.com/dsalter/sectorfs/geometry"
	"github.com/dsalter/sectorfs/volume"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// CompactGeometry returns the small "compact" profile geometry, sized so
// exhaustion scenarios (full inode table, full disk) stay fast.
func CompactGeometry(t *testing.T) geometry.Geometry {
	profile, err := geometry.GetProfile("compact")
	require.NoError(t, err, "compact profile must exist")
	return profile.Geometry()
}

// BootScratchVolume formats and boots a fresh volume on a backing file in a
// test temp directory, and returns the volume plus the backing path so the
// test can re-boot the same image.
func BootScratchVolume(t *testing.T, geom geometry.Geometry) (*volume.Volume, string) {
	backing := filepath.Join(t.TempDir(), "volume.img")
	vol, err := volume.Boot(backing, geom, volume.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err, "booting a fresh volume must succeed")
	return vol, backing
}

// RebootVolume mounts an existing backing file.
func RebootVolume(t *testing.T, backing string, geom geometry.Geometry) *volume.Volume {
	vol, err := volume.Boot(backing, geom, volume.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err, "re-booting %s must succeed", backing)
	return vol
}

// ImageBytes snapshots the whole device image.
func ImageBytes(t *testing.T, dev *blockdev.Device) []byte {
	stream := dev.Stream()
	_, err := stream.Seek(0, io.SeekStart)
	require.NoError(t, err)

	contents, err := io.ReadAll(stream)
	require.NoError(t, err, "reading the device image must succeed")
	return contents
}
