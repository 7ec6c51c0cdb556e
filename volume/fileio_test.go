package volume_test

import (
	"path/filepath"
	"testing"

	"github.com/dsalter/sectorfs"
	"github.com/dsalter/sectorfs/geometry"
	sectorfstesting "github.com/dsalter/sectorfs/testing"
	"github.com/dsalter/sectorfs/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openScratchFile(t *testing.T) (*volume.Volume, int) {
	t.Helper()
	vol, _ := sectorfstesting.BootScratchVolume(t, sectorfstesting.CompactGeometry(t))
	require.NoError(t, vol.CreateFile("/scratch"))
	fd, err := vol.OpenFile("/scratch")
	require.NoError(t, err)
	return vol, fd
}

func patternBytes(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

func TestWriteReadRoundTripAcrossSectors(t *testing.T) {
	vol, fd := openScratchFile(t)

	// 1300 bytes spans three 512-byte sectors.
	payload := patternBytes(1300)
	n, err := vol.Write(fd, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	_, err = vol.Seek(fd, 0)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	n, err = vol.Read(fd, got)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)
}

func TestReadInMisalignedChunks(t *testing.T) {
	vol, fd := openScratchFile(t)
	payload := patternBytes(1100)
	_, err := vol.Write(fd, payload)
	require.NoError(t, err)
	_, err = vol.Seek(fd, 0)
	require.NoError(t, err)

	var got []byte
	chunk := make([]byte, 77)
	for {
		n, err := vol.Read(fd, chunk)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, chunk[:n]...)
	}
	assert.Equal(t, payload, got)
}

func TestReadClampsToFileSize(t *testing.T) {
	vol, fd := openScratchFile(t)
	_, err := vol.Write(fd, []byte("short"))
	require.NoError(t, err)
	_, err = vol.Seek(fd, 0)
	require.NoError(t, err)

	big := make([]byte, 100)
	n, err := vol.Read(fd, big)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// At end of file a read returns 0 without error.
	n, err = vol.Read(fd, big)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInteriorOverwriteKeepsSize(t *testing.T) {
	vol, fd := openScratchFile(t)
	payload := patternBytes(900)
	_, err := vol.Write(fd, payload)
	require.NoError(t, err)

	_, err = vol.Seek(fd, 100)
	require.NoError(t, err)
	n, err := vol.Write(fd, []byte("patch"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	// The overwrite must not truncate the file to the cursor.
	end, err := vol.Seek(fd, len(payload))
	require.NoError(t, err)
	assert.Equal(t, len(payload), end)

	_, err = vol.Seek(fd, 0)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = vol.Read(fd, got)
	require.NoError(t, err)

	want := append([]byte{}, payload...)
	copy(want[100:], "patch")
	assert.Equal(t, want, got)
}

func TestZeroLengthTransfers(t *testing.T) {
	vol, fd := openScratchFile(t)

	n, err := vol.Write(fd, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = vol.Read(fd, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeekBounds(t *testing.T) {
	vol, fd := openScratchFile(t)
	_, err := vol.Write(fd, patternBytes(10))
	require.NoError(t, err)

	// Seeking exactly to the size is legal; one past is not.
	pos, err := vol.Seek(fd, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, pos)

	_, err = vol.Seek(fd, 11)
	assert.ErrorIs(t, err, sectorfs.ErrArgumentOutOfRange)
	_, err = vol.Seek(fd, -1)
	assert.ErrorIs(t, err, sectorfs.ErrArgumentOutOfRange)
}

func TestWritePastMaxFileSize(t *testing.T) {
	vol, fd := openScratchFile(t)
	limit := int(vol.Geometry().MaxFileSize())

	n, err := vol.Write(fd, patternBytes(limit))
	require.NoError(t, err)
	require.Equal(t, limit, n)

	// The cursor sits at the limit; any further byte must be refused, and
	// the refusal must not disturb the file.
	n, err = vol.Write(fd, []byte{1})
	assert.ErrorIs(t, err, sectorfs.ErrFileTooLarge)
	assert.Zero(t, n)

	end, err := vol.Seek(fd, limit)
	require.NoError(t, err)
	assert.Equal(t, limit, end)
}

func TestWriteRejectsOversizeUpfront(t *testing.T) {
	vol, fd := openScratchFile(t)
	limit := int(vol.Geometry().MaxFileSize())

	// The whole transfer is refused before any byte lands.
	n, err := vol.Write(fd, patternBytes(limit+1))
	assert.ErrorIs(t, err, sectorfs.ErrFileTooLarge)
	assert.Zero(t, n)

	got := make([]byte, 1)
	n, err = vol.Read(fd, got)
	require.NoError(t, err)
	assert.Zero(t, n, "the file must still be empty")
}

func TestIndependentCursorsPerDescriptor(t *testing.T) {
	vol, fd := openScratchFile(t)
	payload := patternBytes(600)
	_, err := vol.Write(fd, payload)
	require.NoError(t, err)

	other, err := vol.OpenFile("/scratch")
	require.NoError(t, err)
	require.NotEqual(t, fd, other)

	// The second descriptor starts at 0 regardless of the first's cursor.
	got := make([]byte, len(payload))
	n, err := vol.Read(other, got)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)

	n, err = vol.Read(fd, got)
	require.NoError(t, err)
	assert.Zero(t, n, "the first descriptor is still at end of file")
}

func TestIOOnBadDescriptor(t *testing.T) {
	vol, _ := sectorfstesting.BootScratchVolume(t, sectorfstesting.CompactGeometry(t))

	buf := make([]byte, 8)
	_, err := vol.Read(7, buf)
	assert.ErrorIs(t, err, sectorfs.ErrInvalidFileDescriptor)
	_, err = vol.Write(7, buf)
	assert.ErrorIs(t, err, sectorfs.ErrInvalidFileDescriptor)
	_, err = vol.Seek(7, 0)
	assert.ErrorIs(t, err, sectorfs.ErrInvalidFileDescriptor)
}

func TestWriteOutOfDiskSpace(t *testing.T) {
	// 16 sectors total, 4 of metadata: 12 data sectors. The root's dirent
	// sector takes one, the first file fills eight, so the second file can
	// only get three of the eight sectors it asks for.
	geom := geometry.Geometry{
		SectorSize:        512,
		TotalSectors:      16,
		MaxFiles:          8,
		MaxSectorsPerFile: 8,
		MaxOpenFiles:      4,
	}
	backing := filepath.Join(t.TempDir(), "tiny.img")
	vol, err := volume.Boot(backing, geom, volume.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	require.NoError(t, vol.CreateFile("/hog"))
	require.NoError(t, vol.CreateFile("/victim"))

	fd, err := vol.OpenFile("/hog")
	require.NoError(t, err)
	n, err := vol.Write(fd, patternBytes(int(geom.MaxFileSize())))
	require.NoError(t, err)
	require.Equal(t, int(geom.MaxFileSize()), n)
	require.NoError(t, vol.CloseFile(fd))

	fd, err = vol.OpenFile("/victim")
	require.NoError(t, err)
	n, err = vol.Write(fd, patternBytes(int(geom.MaxFileSize())))
	assert.ErrorIs(t, err, sectorfs.ErrNoSpaceOnDevice)
	assert.Equal(t, 3*int(geom.SectorSize), n, "three sectors fit before the disk filled")

	// The failed write leaves size and cursor untouched.
	_, err = vol.Seek(fd, 1)
	assert.ErrorIs(t, err, sectorfs.ErrArgumentOutOfRange)

	got := make([]byte, 1)
	n, err = vol.Read(fd, got)
	require.NoError(t, err)
	assert.Zero(t, n)
}
