package volume

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func direntNames(entries []DirEntry) []string {
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	return names
}

func TestAppendDirentCrossesGroupBoundary(t *testing.T) {
	v := bootTestVolume(t)
	perSector := int(v.layout.DirentsPerSector)

	// One entry more than a single group sector holds.
	for i := 0; i <= perSector; i++ {
		require.NoError(t, v.appendDirent(rootInode, fmt.Sprintf("f%02d", i), i+1))
	}

	root, err := v.readInode(rootInode)
	require.NoError(t, err)
	assert.EqualValues(t, perSector+1, root.Size)
	assert.NotZero(t, root.Data[0])
	assert.NotZero(t, root.Data[1])
	assert.NotEqual(t, root.Data[0], root.Data[1])

	entries, err := v.readDirents(root)
	require.NoError(t, err)
	assert.Len(t, entries, perSector+1)
	assert.Equal(t, "f00", entries[0].Name)
	assert.Equal(t, fmt.Sprintf("f%02d", perSector), entries[perSector].Name)
}

func TestRemoveDirentSwapsWithLast(t *testing.T) {
	v := bootTestVolume(t)
	require.NoError(t, v.appendDirent(rootInode, "a", 1))
	require.NoError(t, v.appendDirent(rootInode, "b", 2))
	require.NoError(t, v.appendDirent(rootInode, "c", 3))

	require.NoError(t, v.removeDirent(rootInode, 1))

	root, err := v.readInode(rootInode)
	require.NoError(t, err)
	entries, err := v.readDirents(root)
	require.NoError(t, err)

	// "c" was the last entry and now occupies the vacated first slot.
	assert.Equal(t, []string{"c", "b"}, direntNames(entries))
}

func TestRemoveDirentLastEntryNeedsNoSwap(t *testing.T) {
	v := bootTestVolume(t)
	require.NoError(t, v.appendDirent(rootInode, "a", 1))
	require.NoError(t, v.appendDirent(rootInode, "b", 2))

	require.NoError(t, v.removeDirent(rootInode, 2))

	root, err := v.readInode(rootInode)
	require.NoError(t, err)
	entries, err := v.readDirents(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, direntNames(entries))
}

func TestRemoveDirentFreesEmptiedGroupSector(t *testing.T) {
	v := bootTestVolume(t)
	perSector := int(v.layout.DirentsPerSector)

	for i := 0; i <= perSector; i++ {
		require.NoError(t, v.appendDirent(rootInode, fmt.Sprintf("f%02d", i), i+1))
	}

	root, err := v.readInode(rootInode)
	require.NoError(t, err)
	overflow := uint(root.Data[1])

	// Removing any single entry drains the one-entry second group, so its
	// sector must go back to the bitmap and out of the inode.
	require.NoError(t, v.removeDirent(rootInode, 1))

	root, err = v.readInode(rootInode)
	require.NoError(t, err)
	assert.EqualValues(t, perSector, root.Size)
	assert.Zero(t, root.Data[1])

	set, err := v.sectorAllocator().isSet(overflow)
	require.NoError(t, err)
	assert.False(t, set, "emptied group sector %d must be freed", overflow)
}

func TestRemoveDirentAcrossGroups(t *testing.T) {
	v := bootTestVolume(t)
	perSector := int(v.layout.DirentsPerSector)

	// Two entries in the second group, so removing from the first group
	// swaps across sectors without emptying anything.
	for i := 0; i < perSector+2; i++ {
		require.NoError(t, v.appendDirent(rootInode, fmt.Sprintf("f%02d", i), i+1))
	}

	require.NoError(t, v.removeDirent(rootInode, 3))

	root, err := v.readInode(rootInode)
	require.NoError(t, err)
	assert.EqualValues(t, perSector+1, root.Size)
	assert.NotZero(t, root.Data[1])

	entries, err := v.readDirents(root)
	require.NoError(t, err)
	names := direntNames(entries)
	assert.Len(t, names, perSector+1)
	assert.Equal(t, fmt.Sprintf("f%02d", perSector+1), names[2])
	assert.NotContains(t, names, "f02")
}

func TestRemoveDirentMissingEntry(t *testing.T) {
	v := bootTestVolume(t)
	require.NoError(t, v.appendDirent(rootInode, "a", 1))

	err := v.removeDirent(rootInode, 42)
	assert.Error(t, err)
}

func TestDirentRoundTrip(t *testing.T) {
	v := bootTestVolume(t)
	buf := make([]byte, v.geom.SectorSize)

	in := DirEntry{Name: "archive.tar", Inode: 17}
	encodeDirent(buf, v.geom.DirentRecordSize(), in)
	out := decodeDirent(buf, v.geom.DirentRecordSize())
	assert.Equal(t, in, out)
}
