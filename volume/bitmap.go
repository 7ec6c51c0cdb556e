package volume

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dsalter/sectorfs"
)

// bitmapRegion is a first-fit bit allocator over a contiguous run of sectors.
// Bit i of the region maps 1:1 onto inode number i or absolute sector number
// i, depending on which bitmap this is; reserved prefixes are pre-marked at
// init so returned indices need no offset translation.
//
// Every mutation is persisted to the device before the call returns, one
// sector at a time.
type bitmapRegion struct {
	dev         sectorDevice
	startSector uint
	sectors     uint
	bits        uint
	sectorSize  uint
}

type sectorDevice interface {
	ReadSector(index uint, buf []byte) error
	WriteSector(index uint, buf []byte) error
}

func (r bitmapRegion) bitsPerSector() uint {
	return r.sectorSize * 8
}

// init zeroes every bit, then sets the first reservedPrefix bits. It writes
// every sector of the region.
func (r bitmapRegion) init(reservedPrefix uint) error {
	buf := make([]byte, r.sectorSize)
	bits := bitmap.Bitmap(buf)

	for sector := uint(0); sector < r.sectors; sector++ {
		for i := range buf {
			buf[i] = 0
		}

		base := sector * r.bitsPerSector()
		for i := uint(0); i < r.bitsPerSector() && base+i < reservedPrefix; i++ {
			bits.Set(int(i), true)
		}

		if err := r.dev.WriteSector(r.startSector+sector, buf); err != nil {
			return sectorfs.ErrIOFailed.Wrap(err)
		}
	}
	return nil
}

// firstUnused flips the lowest clear bit to 1 and returns its index. The
// flipped sector is persisted before returning. Returns ErrNoSpaceOnDevice
// if every bit is set.
func (r bitmapRegion) firstUnused() (uint, error) {
	buf := make([]byte, r.sectorSize)
	bits := bitmap.Bitmap(buf)

	for sector := uint(0); sector < r.sectors; sector++ {
		if err := r.dev.ReadSector(r.startSector+sector, buf); err != nil {
			return 0, sectorfs.ErrIOFailed.Wrap(err)
		}

		base := sector * r.bitsPerSector()
		limit := r.bitsPerSector()
		if base+limit > r.bits {
			limit = r.bits - base
		}

		for i := uint(0); i < limit; i++ {
			if bits.Get(int(i)) {
				continue
			}
			bits.Set(int(i), true)
			if err := r.dev.WriteSector(r.startSector+sector, buf); err != nil {
				return 0, sectorfs.ErrIOFailed.Wrap(err)
			}
			return base + i, nil
		}
	}
	return 0, sectorfs.ErrNoSpaceOnDevice
}

// clear resets one bit and persists its sector.
func (r bitmapRegion) clear(bit uint) error {
	if bit >= r.bits {
		return sectorfs.ErrArgumentOutOfRange.WithMessage(fmt.Sprintf(
			"bit %d not in range [0, %d)", bit, r.bits))
	}

	sector := bit / r.bitsPerSector()
	buf := make([]byte, r.sectorSize)
	if err := r.dev.ReadSector(r.startSector+sector, buf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}

	bitmap.Bitmap(buf).Set(int(bit%r.bitsPerSector()), false)

	if err := r.dev.WriteSector(r.startSector+sector, buf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// isSet reports whether one bit is currently set. Used by tests and
// consistency checks, not by the allocation paths.
func (r bitmapRegion) isSet(bit uint) (bool, error) {
	if bit >= r.bits {
		return false, sectorfs.ErrArgumentOutOfRange.WithMessage(fmt.Sprintf(
			"bit %d not in range [0, %d)", bit, r.bits))
	}

	sector := bit / r.bitsPerSector()
	buf := make([]byte, r.sectorSize)
	if err := r.dev.ReadSector(r.startSector+sector, buf); err != nil {
		return false, sectorfs.ErrIOFailed.Wrap(err)
	}
	return bitmap.Bitmap(buf).Get(int(bit % r.bitsPerSector())), nil
}
