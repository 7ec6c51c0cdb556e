// Package blockdev implements the sector device a volume is built on: a
// fixed-size in-memory image addressed by sector index, with whole-image
// load/save against a backing file.
//
// All sector indices begin at 0. Reads and writes transfer exactly one
// sector; there are no partial transfers.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/boljen/go-bitmap"
	"github.com/dsalter/sectorfs"
	"github.com/dsalter/sectorfs/geometry"
	"github.com/xaionaro-go/bytesextra"
)

// Device is a fixed-geometry block device held entirely in memory. Sectors
// written since the last Save are tracked in a dirty bitmap; Save always
// writes the whole image, the bitmap exists for diagnostics and tests.
type Device struct {
	geom  geometry.Geometry
	data  []byte
	dirty bitmap.Bitmap
}

// New creates a device with a zeroed image.
func New(geom geometry.Geometry) (*Device, error) {
	if err := geom.Validate(); err != nil {
		return nil, sectorfs.ErrArgumentOutOfRange.Wrap(err)
	}
	return &Device{
		geom:  geom,
		data:  make([]byte, geom.SectorSize*geom.TotalSectors),
		dirty: bitmap.NewSlice(int(geom.TotalSectors)),
	}, nil
}

// SectorSize returns the size of one sector, in bytes.
func (dev *Device) SectorSize() uint {
	return dev.geom.SectorSize
}

// TotalSectors returns the fixed number of sectors on the device.
func (dev *Device) TotalSectors() uint {
	return dev.geom.TotalSectors
}

// Geometry returns the geometry the device was created with.
func (dev *Device) Geometry() geometry.Geometry {
	return dev.geom
}

func (dev *Device) checkTransfer(index uint, buf []byte) error {
	if index >= dev.geom.TotalSectors {
		return sectorfs.ErrIOFailed.WithMessage(fmt.Sprintf(
			"sector %d not in range [0, %d)", index, dev.geom.TotalSectors))
	}
	if uint(len(buf)) != dev.geom.SectorSize {
		return sectorfs.ErrIOFailed.WithMessage(fmt.Sprintf(
			"transfer buffer must be exactly %dB, got %dB",
			dev.geom.SectorSize, len(buf)))
	}
	return nil
}

// ReadSector copies one sector into buf. buf must be exactly one sector long.
func (dev *Device) ReadSector(index uint, buf []byte) error {
	if err := dev.checkTransfer(index, buf); err != nil {
		return err
	}
	start := index * dev.geom.SectorSize
	copy(buf, dev.data[start:start+dev.geom.SectorSize])
	return nil
}

// WriteSector copies one sector from buf into the image and marks it dirty.
// buf must be exactly one sector long.
func (dev *Device) WriteSector(index uint, buf []byte) error {
	if err := dev.checkTransfer(index, buf); err != nil {
		return err
	}
	start := index * dev.geom.SectorSize
	copy(dev.data[start:start+dev.geom.SectorSize], buf)
	dev.dirty.Set(int(index), true)
	return nil
}

// DirtySectors counts the sectors written since the last successful Save.
func (dev *Device) DirtySectors() uint {
	count := uint(0)
	for i := 0; i < int(dev.geom.TotalSectors); i++ {
		if dev.dirty.Get(i) {
			count++
		}
	}
	return count
}

// Load replaces the whole image with the contents of the backing file. A
// missing backing file is reported as an error satisfying
// errors.Is(err, fs.ErrNotExist); the boot sequence branches on that to decide
// between mounting and formatting. A backing file whose size is not exactly
// TotalSectors * SectorSize fails with ErrDeviceSizeMismatch.
func (dev *Device) Load(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return sectorfs.ErrIOFailed.Wrap(err)
	}

	if uint(len(contents)) != dev.geom.SectorSize*dev.geom.TotalSectors {
		return sectorfs.ErrDeviceSizeMismatch.WithMessage(fmt.Sprintf(
			"backing store %q is %dB, volume needs exactly %dB",
			path, len(contents), dev.geom.SectorSize*dev.geom.TotalSectors))
	}

	copy(dev.data, contents)
	dev.dirty = bitmap.NewSlice(int(dev.geom.TotalSectors))
	return nil
}

// Save writes the whole image to the backing file and clears the dirty map.
func (dev *Device) Save(path string) error {
	if err := os.WriteFile(path, dev.data, 0o644); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	dev.dirty = bitmap.NewSlice(int(dev.geom.TotalSectors))
	return nil
}

// Stream returns a seekable view over the raw image. Writes through the
// stream mutate the image but bypass dirty tracking; it is meant for
// inspection and tests, not for regular sector I/O.
func (dev *Device) Stream() io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(dev.data)
}
