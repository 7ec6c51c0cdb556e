package geometry_test

import (
	"testing"

	"github.com/dsalter/sectorfs/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGeometryIsValid(t *testing.T) {
	geom := geometry.Default()
	require.NoError(t, geom.Validate())

	assert.EqualValues(t, 128, geom.InodeRecordSize())
	assert.EqualValues(t, 20, geom.DirentRecordSize())
	assert.EqualValues(t, 30*512, geom.MaxFileSize())
}

func TestValidateRejectsZeroFields(t *testing.T) {
	geom := geometry.Default()
	geom.TotalSectors = 0
	assert.Error(t, geom.Validate())
}

func TestValidateRejectsOversizedRecords(t *testing.T) {
	geom := geometry.Default()
	// 200 direct slots need an 808-byte inode record, which cannot fit in a
	// 512-byte sector.
	geom.MaxSectorsPerFile = 200
	assert.Error(t, geom.Validate())
}

func TestClassicProfileMatchesDefault(t *testing.T) {
	profile, err := geometry.GetProfile("classic")
	require.NoError(t, err)
	assert.Equal(t, geometry.Default(), profile.Geometry())
}

func TestAllProfilesAreValid(t *testing.T) {
	slugs := geometry.Slugs()
	require.NotEmpty(t, slugs)

	for _, slug := range slugs {
		profile, err := geometry.GetProfile(slug)
		require.NoError(t, err)
		assert.NoError(t, profile.Geometry().Validate(), "profile %q", slug)
	}
}

func TestGetProfileUnknownSlug(t *testing.T) {
	_, err := geometry.GetProfile("does-not-exist")
	assert.Error(t, err)
}
