// Package geometry describes the shape of a sectorfs volume: the sector size,
// the total sector count, and the fixed capacities (file count, sectors per
// file, open-file slots) that the on-disk layout is derived from. The same
// Geometry value must be supplied at format time and at every subsequent boot.
package geometry

import (
	"fmt"
)

// Geometry is the full set of constants a volume is built from. All on-disk
// region boundaries are pure functions of these five values.
type Geometry struct {
	// SectorSize is the size of one device sector, in bytes.
	SectorSize uint
	// TotalSectors is the fixed number of sectors on the device.
	TotalSectors uint
	// MaxFiles is the number of inode slots (files plus directories,
	// including the root).
	MaxFiles uint
	// MaxSectorsPerFile is the capacity of an inode's direct data-sector
	// array. There is no indirect addressing, so this bounds file size.
	MaxSectorsPerFile uint
	// MaxOpenFiles is the number of slots in the open-file table.
	MaxOpenFiles uint
}

// MaxNameLen is the size of the on-disk name field of a directory entry,
// including the terminating NUL. Names may be at most MaxNameLen-1 bytes.
const MaxNameLen = 16

// Default returns the classic volume shape: 512-byte sectors, 10000 sectors,
// 1000 inodes, 30 direct sectors per file, 256 open-file slots.
func Default() Geometry {
	return Geometry{
		SectorSize:        512,
		TotalSectors:      10000,
		MaxFiles:          1000,
		MaxSectorsPerFile: 30,
		MaxOpenFiles:      256,
	}
}

// InodeRecordSize gives the on-disk size of one inode record: a 32-bit size,
// a 32-bit type tag, and one 32-bit sector index per direct slot.
func (g Geometry) InodeRecordSize() uint {
	return 8 + 4*g.MaxSectorsPerFile
}

// DirentRecordSize gives the on-disk size of one directory entry record.
func (g Geometry) DirentRecordSize() uint {
	return MaxNameLen + 4
}

// MaxFileSize gives the largest byte length a single file can reach.
func (g Geometry) MaxFileSize() uint {
	return g.MaxSectorsPerFile * g.SectorSize
}

// Validate checks that the geometry can hold at least one whole inode record
// and one whole dirent record per sector (records never straddle sectors).
func (g Geometry) Validate() error {
	if g.SectorSize == 0 || g.TotalSectors == 0 || g.MaxFiles == 0 ||
		g.MaxSectorsPerFile == 0 || g.MaxOpenFiles == 0 {
		return fmt.Errorf("all geometry fields must be non-zero: %+v", g)
	}
	if g.InodeRecordSize() > g.SectorSize {
		return fmt.Errorf(
			"inode record (%dB) does not fit in a %dB sector",
			g.InodeRecordSize(), g.SectorSize)
	}
	if g.DirentRecordSize() > g.SectorSize {
		return fmt.Errorf(
			"dirent record (%dB) does not fit in a %dB sector",
			g.DirentRecordSize(), g.SectorSize)
	}
	return nil
}
