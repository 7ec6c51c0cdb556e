// Package volume implements the file system core: the on-disk layout, the
// inode and sector allocators, directory entries, path resolution, the open
// file table, and the cursor-based file I/O engine.
//
// The disk is partitioned into five fixed, contiguous, sector-aligned
// regions, in this order:
//
//	superblock | inode bitmap | sector bitmap | inode table | data sectors
//
// Every boundary is a pure function of the volume geometry, so the layout
// computed at format time is guaranteed to match the one computed at mount.
package volume

import (
	"github.com/dsalter/sectorfs/geometry"
)

// Layout holds the derived sector ranges of the metadata regions.
type Layout struct {
	SuperblockSector uint

	InodeBitmapStart   uint
	InodeBitmapSectors uint

	SectorBitmapStart   uint
	SectorBitmapSectors uint

	InodeTableStart   uint
	InodeTableSectors uint

	// FirstDataSector is the first sector available for file and directory
	// content; everything below it is reserved metadata.
	FirstDataSector uint

	InodesPerSector  uint
	DirentsPerSector uint
}

// bitmapSectors returns the number of sectors needed to store one bit per
// unit for `bits` units.
func bitmapSectors(bits, sectorSize uint) uint {
	bytes := (bits + 7) / 8
	return (bytes + sectorSize - 1) / sectorSize
}

// ComputeLayout derives the metadata region boundaries from the geometry.
func ComputeLayout(geom geometry.Geometry) Layout {
	layout := Layout{
		SuperblockSector:    0,
		InodeBitmapStart:    1,
		InodeBitmapSectors:  bitmapSectors(geom.MaxFiles, geom.SectorSize),
		SectorBitmapSectors: bitmapSectors(geom.TotalSectors, geom.SectorSize),
		InodesPerSector:     geom.SectorSize / geom.InodeRecordSize(),
		DirentsPerSector:    geom.SectorSize / geom.DirentRecordSize(),
	}

	layout.SectorBitmapStart = layout.InodeBitmapStart + layout.InodeBitmapSectors
	layout.InodeTableStart = layout.SectorBitmapStart + layout.SectorBitmapSectors
	layout.InodeTableSectors =
		(geom.MaxFiles + layout.InodesPerSector - 1) / layout.InodesPerSector
	layout.FirstDataSector = layout.InodeTableStart + layout.InodeTableSectors
	return layout
}

// inodeSector returns the inode-table sector holding inode number n.
func (l Layout) inodeSector(n int) uint {
	return l.InodeTableStart + uint(n)/l.InodesPerSector
}

// inodeOffset returns the byte offset of inode number n inside its sector.
func (l Layout) inodeOffset(n int, geom geometry.Geometry) uint {
	return (uint(n) % l.InodesPerSector) * geom.InodeRecordSize()
}
