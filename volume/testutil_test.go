package volume

import (
	"path/filepath"
	"testing"

	"github.com/dsalter/sectorfs/geometry"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testGeometry is small enough that exhaustion scenarios stay cheap:
// 1024 sectors, 64 inodes, 8 sectors per file.
func testGeometry() geometry.Geometry {
	return geometry.Geometry{
		SectorSize:        512,
		TotalSectors:      1024,
		MaxFiles:          64,
		MaxSectorsPerFile: 8,
		MaxOpenFiles:      32,
	}
}

func bootTestVolume(t *testing.T) *Volume {
	t.Helper()
	backing := filepath.Join(t.TempDir(), "test.img")
	v, err := Boot(backing, testGeometry(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return v
}
