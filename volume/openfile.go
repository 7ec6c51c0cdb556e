package volume

import (
	"fmt"

	"github.com/dsalter/sectorfs"
)

// openFile is one slot of the open-file table: the inode it refers to, the
// file size cached at open (and maintained by writes), and the read/write
// cursor. inode <= 0 marks a free slot; inode 0 is permanently the root
// directory and can never be opened as a file, so 0 is unambiguous.
type openFile struct {
	inode int
	size  int
	pos   int
}

// allocFD claims the first free slot and initializes it for the given inode.
func (v *Volume) allocFD(ino, size int) (int, error) {
	for fd := range v.openFiles {
		if v.openFiles[fd].inode <= 0 {
			v.openFiles[fd] = openFile{inode: ino, size: size}
			return fd, nil
		}
	}
	return -1, sectorfs.ErrTooManyOpenFiles
}

// handle validates a file descriptor and returns its open-file entry.
func (v *Volume) handle(fd int) (*openFile, error) {
	if fd < 0 || fd >= len(v.openFiles) || v.openFiles[fd].inode <= 0 {
		return nil, sectorfs.ErrInvalidFileDescriptor.WithMessage(
			fmt.Sprintf("fd %d", fd))
	}
	return &v.openFiles[fd], nil
}

// hasFreeSlot reports whether at least one descriptor slot is unclaimed.
func (v *Volume) hasFreeSlot() bool {
	for fd := range v.openFiles {
		if v.openFiles[fd].inode <= 0 {
			return true
		}
	}
	return false
}

// isOpen reports whether any table slot currently references the inode. It
// blocks unlinking a file that still has live descriptors.
func (v *Volume) isOpen(ino int) bool {
	for fd := range v.openFiles {
		if v.openFiles[fd].inode == ino {
			return true
		}
	}
	return false
}

// CloseFile releases a file descriptor. The same inode may remain open
// through other descriptors.
func (v *Volume) CloseFile(fd int) error {
	if _, err := v.handle(fd); err != nil {
		return err
	}
	v.openFiles[fd] = openFile{}
	return nil
}
