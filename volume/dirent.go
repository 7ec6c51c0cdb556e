package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dsalter/sectorfs"
	"github.com/dsalter/sectorfs/geometry"
	"github.com/noxer/bytewriter"
	"go.uber.org/zap"
)

// DirEntry is one (name, inode number) record inside a directory's data
// sectors. Entry order is only constrained by insertion and swap-with-last
// deletion; it is not sorted and not stable across deletions.
type DirEntry struct {
	Name  string
	Inode int
}

// decodeDirent unpacks one dirent record from a sector buffer at the given
// byte offset.
func decodeDirent(buf []byte, offset uint) DirEntry {
	nameField := buf[offset : offset+geometry.MaxNameLen]
	name := nameField
	if i := bytes.IndexByte(nameField, 0); i >= 0 {
		name = nameField[:i]
	}
	return DirEntry{
		Name:  string(name),
		Inode: int(int32(binary.LittleEndian.Uint32(buf[offset+geometry.MaxNameLen:]))),
	}
}

// encodeDirent packs one dirent record into a sector buffer at the given
// byte offset. The name field is NUL-padded.
func encodeDirent(buf []byte, offset uint, entry DirEntry) {
	var nameField [geometry.MaxNameLen]byte
	copy(nameField[:], entry.Name)

	writer := bytewriter.New(buf[offset:])
	writer.Write(nameField[:])
	binary.Write(writer, binary.LittleEndian, int32(entry.Inode))
}

// zeroDirent clears the record at the given byte offset.
func zeroDirent(buf []byte, offset uint, geom geometry.Geometry) {
	for i := offset; i < offset+geom.DirentRecordSize(); i++ {
		buf[i] = 0
	}
}

// appendDirent adds a (name, childIno) entry to the directory parentIno. If
// the current entry count is an exact multiple of the per-sector capacity, a
// fresh data sector is allocated and recorded in the parent's direct array;
// otherwise the entry lands in the existing last group sector. The parent
// inode (size, and possibly a new sector index) is persisted on success.
func (v *Volume) appendDirent(parentIno int, name string, childIno int) error {
	parent, err := v.readInode(parentIno)
	if err != nil {
		return err
	}
	if !parent.isDir() {
		return sectorfs.ErrNotADirectory.WithMessage(
			fmt.Sprintf("inode %d is not a directory", parentIno))
	}

	group := uint(parent.Size) / v.layout.DirentsPerSector
	if group >= v.geom.MaxSectorsPerFile {
		return sectorfs.ErrFileTooLarge.WithMessage(fmt.Sprintf(
			"directory inode %d is full (%d entries)", parentIno, parent.Size))
	}

	buf := make([]byte, v.geom.SectorSize)
	if uint(parent.Size)%v.layout.DirentsPerSector == 0 {
		sector, err := v.sectorAllocator().firstUnused()
		if err != nil {
			return err
		}
		parent.Data[group] = int32(sector)
		v.log.Debug("allocated dirent group sector",
			zap.Int("dir", parentIno),
			zap.Uint("group", group),
			zap.Uint("sector", sector))
	} else {
		if err := v.dev.ReadSector(uint(parent.Data[group]), buf); err != nil {
			return sectorfs.ErrIOFailed.Wrap(err)
		}
	}

	slot := uint(parent.Size) % v.layout.DirentsPerSector
	encodeDirent(buf, slot*v.geom.DirentRecordSize(), DirEntry{Name: name, Inode: childIno})
	if err := v.dev.WriteSector(uint(parent.Data[group]), buf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}

	parent.Size++
	if err := v.writeInode(parentIno, parent); err != nil {
		return err
	}

	v.log.Debug("appended dirent",
		zap.Int("dir", parentIno),
		zap.String("name", name),
		zap.Int("inode", childIno),
		zap.Int32("entries", parent.Size))
	return nil
}

// removeDirent deletes the entry referencing childIno from the directory
// parentIno by overwriting it with the current last entry and zeroing the
// vacated slot, so live entries always occupy logical slots [0, size). When
// the last group sector becomes empty it is returned to the sector bitmap.
func (v *Volume) removeDirent(parentIno, childIno int) error {
	parent, err := v.readInode(parentIno)
	if err != nil {
		return err
	}
	if !parent.isDir() {
		return sectorfs.ErrNotADirectory.WithMessage(
			fmt.Sprintf("inode %d is not a directory", parentIno))
	}
	if parent.Size == 0 {
		return sectorfs.ErrNotFound.WithMessage(fmt.Sprintf(
			"directory inode %d has no entry for inode %d", parentIno, childIno))
	}

	recordSize := v.geom.DirentRecordSize()
	lastGroup := (uint(parent.Size) - 1) / v.layout.DirentsPerSector
	lastSlot := (uint(parent.Size) - 1) % v.layout.DirentsPerSector

	lastBuf := make([]byte, v.geom.SectorSize)
	if err := v.dev.ReadSector(uint(parent.Data[lastGroup]), lastBuf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	lastEntry := decodeDirent(lastBuf, lastSlot*recordSize)

	// Locate the entry being removed.
	targetGroup, targetSlot, found := uint(0), uint(0), false
	buf := lastBuf
	for group := uint(0); group <= lastGroup && !found; group++ {
		if group != lastGroup {
			buf = make([]byte, v.geom.SectorSize)
			if err := v.dev.ReadSector(uint(parent.Data[group]), buf); err != nil {
				return sectorfs.ErrIOFailed.Wrap(err)
			}
		} else {
			buf = lastBuf
		}

		slots := v.layout.DirentsPerSector
		if group == lastGroup {
			slots = lastSlot + 1
		}
		for slot := uint(0); slot < slots; slot++ {
			if decodeDirent(buf, slot*recordSize).Inode == childIno {
				targetGroup, targetSlot, found = group, slot, true
				break
			}
		}
	}
	if !found {
		return sectorfs.ErrNotFound.WithMessage(fmt.Sprintf(
			"directory inode %d has no entry for inode %d", parentIno, childIno))
	}

	if targetGroup == lastGroup {
		// Swap within one sector (or no swap at all when the target is the
		// last entry): overwrite, zero the vacated slot, one write.
		if targetSlot != lastSlot {
			encodeDirent(lastBuf, targetSlot*recordSize, lastEntry)
		}
		zeroDirent(lastBuf, lastSlot*recordSize, v.geom)
		if err := v.dev.WriteSector(uint(parent.Data[lastGroup]), lastBuf); err != nil {
			return sectorfs.ErrIOFailed.Wrap(err)
		}
	} else {
		encodeDirent(buf, targetSlot*recordSize, lastEntry)
		if err := v.dev.WriteSector(uint(parent.Data[targetGroup]), buf); err != nil {
			return sectorfs.ErrIOFailed.Wrap(err)
		}
		zeroDirent(lastBuf, lastSlot*recordSize, v.geom)
		if err := v.dev.WriteSector(uint(parent.Data[lastGroup]), lastBuf); err != nil {
			return sectorfs.ErrIOFailed.Wrap(err)
		}
	}

	parent.Size--

	// Free the trailing group sector if the shrink emptied it, keeping the
	// sector bitmap in agreement with what the inode references.
	if lastSlot == 0 {
		freed := uint(parent.Data[lastGroup])
		parent.Data[lastGroup] = 0
		if err := v.sectorAllocator().clear(freed); err != nil {
			return err
		}
		v.log.Debug("freed dirent group sector",
			zap.Int("dir", parentIno),
			zap.Uint("group", lastGroup),
			zap.Uint("sector", freed))
	}

	if err := v.writeInode(parentIno, parent); err != nil {
		return err
	}

	v.log.Debug("removed dirent",
		zap.Int("dir", parentIno),
		zap.Int("inode", childIno),
		zap.Int32("entries", parent.Size))
	return nil
}

// readDirents returns the directory's live entries in storage order.
func (v *Volume) readDirents(dir inode) ([]DirEntry, error) {
	entries := make([]DirEntry, 0, dir.Size)
	buf := make([]byte, v.geom.SectorSize)

	for group := uint(0); len(entries) < int(dir.Size); group++ {
		if err := v.dev.ReadSector(uint(dir.Data[group]), buf); err != nil {
			return nil, sectorfs.ErrIOFailed.Wrap(err)
		}
		for slot := uint(0); slot < v.layout.DirentsPerSector && len(entries) < int(dir.Size); slot++ {
			entries = append(entries, decodeDirent(buf, slot*v.geom.DirentRecordSize()))
		}
	}
	return entries, nil
}
