package volume

import (
	"fmt"

	"github.com/dsalter/sectorfs"
	"go.uber.org/zap"
)

// Read copies up to len(buf) bytes from the file's cursor position into buf
// and advances the cursor by the number of bytes copied. Reads are clamped to
// the file's recorded size; a read at or past end of file returns a short
// count (possibly 0), never an error.
func (v *Volume) Read(fd int, buf []byte) (int, error) {
	entry, err := v.handle(fd)
	if err != nil {
		return 0, err
	}

	want := len(buf)
	if remaining := entry.size - entry.pos; want > remaining {
		want = remaining
	}
	if want <= 0 {
		return 0, nil
	}

	ino, err := v.readInode(entry.inode)
	if err != nil {
		return 0, err
	}

	sectorSize := int(v.geom.SectorSize)
	scratch := make([]byte, sectorSize)
	pos := entry.pos
	copied := 0

	for copied < want {
		index := pos / sectorSize
		inOff := pos % sectorSize
		count := sectorSize - inOff
		if count > want-copied {
			count = want - copied
		}

		if err := v.dev.ReadSector(uint(ino.Data[index]), scratch); err != nil {
			return copied, sectorfs.ErrIOFailed.Wrap(err)
		}
		copy(buf[copied:copied+count], scratch[inOff:inOff+count])

		pos += count
		copied += count
	}

	entry.pos = pos
	v.log.Debug("read file",
		zap.Int("fd", fd),
		zap.Int("bytes", copied),
		zap.Int("pos", entry.pos))
	return copied, nil
}

// Write copies len(buf) bytes from buf into the file at the cursor position,
// allocating data sectors on first touch. A write that would push the file
// past its maximum size is rejected outright with ErrFileTooLarge. If sector
// allocation fails mid-write the call aborts with ErrNoSpaceOnDevice:
// sectors already written in this call keep their new contents (and stay
// referenced by the inode), but the cursor and the recorded size are
// unchanged, so the file's state is authoritative only after a fully
// successful call. On success the cursor advances by len(buf), and the
// inode's size and any new sector indices are persisted exactly once.
func (v *Volume) Write(fd int, buf []byte) (int, error) {
	entry, err := v.handle(fd)
	if err != nil {
		return 0, err
	}

	if uint(entry.pos+len(buf)) > v.geom.MaxFileSize() {
		return 0, sectorfs.ErrFileTooLarge.WithMessage(fmt.Sprintf(
			"write of %dB at offset %d exceeds the %dB file size limit",
			len(buf), entry.pos, v.geom.MaxFileSize()))
	}
	if len(buf) == 0 {
		return 0, nil
	}

	ino, err := v.readInode(entry.inode)
	if err != nil {
		return 0, err
	}

	sectorSize := int(v.geom.SectorSize)
	scratch := make([]byte, sectorSize)
	pos := entry.pos
	copied := 0
	grewArray := false

	for copied < len(buf) {
		index := pos / sectorSize
		inOff := pos % sectorSize
		count := sectorSize - inOff
		if count > len(buf)-copied {
			count = len(buf) - copied
		}

		fresh := false
		if ino.Data[index] == 0 {
			sector, allocErr := v.sectorAllocator().firstUnused()
			if allocErr != nil {
				// Earlier sectors of this call are already on disk; persist
				// the array growth that references them, then surface the
				// failure with size and cursor untouched.
				if grewArray {
					if werr := v.writeInode(entry.inode, ino); werr != nil {
						return copied, werr
					}
				}
				return copied, allocErr
			}
			ino.Data[index] = int32(sector)
			fresh = true
			grewArray = true
		}

		if fresh {
			// A freshly allocated sector may hold stale bytes from a freed
			// file; start from zeroes instead of reading it.
			for i := range scratch {
				scratch[i] = 0
			}
		} else if err := v.dev.ReadSector(uint(ino.Data[index]), scratch); err != nil {
			return copied, sectorfs.ErrIOFailed.Wrap(err)
		}

		copy(scratch[inOff:inOff+count], buf[copied:copied+count])
		if err := v.dev.WriteSector(uint(ino.Data[index]), scratch); err != nil {
			return copied, sectorfs.ErrIOFailed.Wrap(err)
		}

		pos += count
		copied += count
	}

	entry.pos = pos
	if entry.pos > entry.size {
		entry.size = entry.pos
	}
	ino.Size = int32(entry.size)
	if err := v.writeInode(entry.inode, ino); err != nil {
		return copied, err
	}

	v.log.Debug("wrote file",
		zap.Int("fd", fd),
		zap.Int("bytes", copied),
		zap.Int("pos", entry.pos),
		zap.Int("size", entry.size))
	return copied, nil
}

// Seek moves the cursor to an absolute position in [0, size]. Seeking to the
// exact file size is legal and positions the cursor at end of file.
func (v *Volume) Seek(fd int, pos int) (int, error) {
	entry, err := v.handle(fd)
	if err != nil {
		return 0, err
	}
	if pos < 0 || pos > entry.size {
		return 0, sectorfs.ErrArgumentOutOfRange.WithMessage(fmt.Sprintf(
			"seek to %d outside [0, %d]", pos, entry.size))
	}
	entry.pos = pos
	return pos, nil
}
