package volume

import (
	"encoding/binary"

	"github.com/dsalter/sectorfs"
	"github.com/noxer/bytewriter"
)

type inodeType int32

const (
	typeFile inodeType = 0
	typeDir  inodeType = 1
)

// rootInode is the permanent inode number of the root directory. It is
// created at format time and can never be removed or opened as a file.
const rootInode = 0

// inode is the in-memory form of one inode record. Size is a byte length for
// files and a live entry count for directories. Data is the bounded direct
// array of absolute data-sector indices; 0 means "no sector recorded here"
// (sector 0 is the superblock and can never hold file data).
type inode struct {
	Size int32
	Type inodeType
	Data []int32
}

func (ino inode) isDir() bool {
	return ino.Type == typeDir
}

func newInode(typ inodeType, maxSectors uint) inode {
	return inode{
		Type: typ,
		Data: make([]int32, maxSectors),
	}
}

// decodeInode unpacks one inode record from a sector buffer at the given
// byte offset.
func decodeInode(buf []byte, offset uint, maxSectors uint) inode {
	ino := inode{
		Size: int32(binary.LittleEndian.Uint32(buf[offset:])),
		Type: inodeType(binary.LittleEndian.Uint32(buf[offset+4:])),
		Data: make([]int32, maxSectors),
	}
	for i := uint(0); i < maxSectors; i++ {
		ino.Data[i] = int32(binary.LittleEndian.Uint32(buf[offset+8+4*i:]))
	}
	return ino
}

// encodeInode packs one inode record into a sector buffer at the given byte
// offset.
func encodeInode(buf []byte, offset uint, ino inode) {
	writer := bytewriter.New(buf[offset:])
	binary.Write(writer, binary.LittleEndian, ino.Size)
	binary.Write(writer, binary.LittleEndian, int32(ino.Type))
	binary.Write(writer, binary.LittleEndian, ino.Data)
}

// readInode fetches inode number n with a read of its inode-table sector.
// Inode numbers are not range-checked; callers hand in indices produced by
// the resolver or the inode allocator.
func (v *Volume) readInode(n int) (inode, error) {
	buf := make([]byte, v.geom.SectorSize)
	if err := v.dev.ReadSector(v.layout.inodeSector(n), buf); err != nil {
		return inode{}, sectorfs.ErrIOFailed.Wrap(err)
	}
	return decodeInode(buf, v.layout.inodeOffset(n, v.geom), v.geom.MaxSectorsPerFile), nil
}

// writeInode stores inode number n with a read-modify-write of its
// inode-table sector.
func (v *Volume) writeInode(n int, ino inode) error {
	sector := v.layout.inodeSector(n)
	buf := make([]byte, v.geom.SectorSize)
	if err := v.dev.ReadSector(sector, buf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}

	encodeInode(buf, v.layout.inodeOffset(n, v.geom), ino)

	if err := v.dev.WriteSector(sector, buf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	return nil
}
