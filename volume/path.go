package volume

import (
	"fmt"
	"strings"

	"github.com/dsalter/sectorfs"
	"github.com/dsalter/sectorfs/geometry"
	"go.uber.org/zap"
)

// legalName reports whether every byte of a path component is in the legal
// charset: letters, digits, dots, dashes, and underscores.
func legalName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// notFound is the child sentinel of a resolution whose final component does
// not exist in its parent directory.
const notFound = -1

// resolution is the outcome of walking an absolute path: the inode of the
// containing directory, the inode of the final component (or notFound), and
// the final component's literal name.
type resolution struct {
	parent int
	child  int
	last   string
}

// inodeScanner reads inodes through a one-sector cache so that consecutive
// lookups landing in the same inode-table sector cost a single device read.
// It is call-scoped state: each resolution builds its own scanner.
type inodeScanner struct {
	v            *Volume
	cachedSector uint
	buf          []byte
	valid        bool
}

func (s *inodeScanner) inodeAt(n int) (inode, error) {
	sector := s.v.layout.inodeSector(n)
	if !s.valid || sector != s.cachedSector {
		if s.buf == nil {
			s.buf = make([]byte, s.v.geom.SectorSize)
		}
		if err := s.v.dev.ReadSector(sector, s.buf); err != nil {
			return inode{}, sectorfs.ErrIOFailed.Wrap(err)
		}
		s.cachedSector = sector
		s.valid = true
	}
	return decodeInode(
		s.buf, s.v.layout.inodeOffset(n, s.v.geom), s.v.geom.MaxSectorsPerFile), nil
}

// findChild scans the directory parentIno for an entry named name and
// returns its inode number, or notFound without error if no entry matches.
func (v *Volume) findChild(scanner *inodeScanner, parentIno int, name string) (int, error) {
	parent, err := scanner.inodeAt(parentIno)
	if err != nil {
		return notFound, err
	}
	if !parent.isDir() {
		return notFound, sectorfs.ErrNotADirectory.WithMessage(
			fmt.Sprintf("inode %d is not a directory", parentIno))
	}

	buf := make([]byte, v.geom.SectorSize)
	remaining := int(parent.Size)
	for group := 0; remaining > 0; group++ {
		if err := v.dev.ReadSector(uint(parent.Data[group]), buf); err != nil {
			return notFound, sectorfs.ErrIOFailed.Wrap(err)
		}

		slots := v.layout.DirentsPerSector
		if uint(remaining) < slots {
			slots = uint(remaining)
		}
		for slot := uint(0); slot < slots; slot++ {
			entry := decodeDirent(buf, slot*v.geom.DirentRecordSize())
			if entry.Name == name {
				return entry.Inode, nil
			}
		}
		remaining -= int(slots)
	}
	return notFound, nil
}

// resolve walks an absolute path from the root inode. Doubled slashes are
// skipped; an illegal component fails with ErrInvalidPath, an over-long one
// with ErrNameTooLong. A component after a missing directory fails with
// ErrNotFound. The path "/" resolves to parent = child = root.
func (v *Volume) resolve(path string) (resolution, error) {
	if !strings.HasPrefix(path, "/") {
		return resolution{}, sectorfs.ErrInvalidPath.WithMessage(
			fmt.Sprintf("%q is not an absolute path", path))
	}

	scanner := &inodeScanner{v: v}
	res := resolution{parent: rootInode, child: rootInode}

	for _, component := range strings.Split(path[1:], "/") {
		if component == "" {
			continue
		}
		if !legalName(component) {
			return resolution{}, sectorfs.ErrInvalidPath.WithMessage(
				fmt.Sprintf("illegal name %q", component))
		}
		if len(component) > geometry.MaxNameLen-1 {
			return resolution{}, sectorfs.ErrNameTooLong.WithMessage(
				fmt.Sprintf("%q exceeds %d bytes", component, geometry.MaxNameLen-1))
		}
		if res.child == notFound {
			// The previous component did not exist, so this one cannot be
			// resolved through it.
			return resolution{}, sectorfs.ErrNotFound.WithMessage(
				fmt.Sprintf("cannot resolve %q through a missing directory", path))
		}

		res.parent = res.child
		child, err := v.findChild(scanner, res.parent, component)
		if err != nil {
			return resolution{}, err
		}
		res.child = child
		res.last = component
	}

	v.log.Debug("resolved path",
		zap.String("path", path),
		zap.Int("parent", res.parent),
		zap.Int("child", res.child))
	return res, nil
}
