package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dsalter/sectorfs"
	"github.com/dsalter/sectorfs/blockdev"
	"github.com/dsalter/sectorfs/geometry"
	"github.com/noxer/bytewriter"
	"go.uber.org/zap"
)

// Magic identifies a formatted volume. It is stored little-endian in the
// first four bytes of the superblock sector.
const Magic uint32 = 0xDEADBEEF

// Volume is a mounted file system session: the device, the derived layout,
// and the open-file table. All operations are synchronous and none of the
// state carries internal locking; callers sharing a Volume across goroutines
// must serialize every operation behind a single external lock.
type Volume struct {
	dev         *blockdev.Device
	geom        geometry.Geometry
	layout      Layout
	backingPath string
	openFiles   []openFile
	log         *zap.Logger
}

// Option customizes a Volume at boot.
type Option func(*Volume)

// WithLogger attaches a logger; debug-level lines trace every structural
// mutation. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(v *Volume) {
		v.log = log
	}
}

// Boot loads the backing store at backingPath, or formats a fresh volume if
// no backing store exists yet. A backing store of the wrong size fails with
// ErrDeviceSizeMismatch; one with a bad superblock magic fails with
// ErrInvalidFileSystem. The open-file table starts empty either way.
func Boot(backingPath string, geom geometry.Geometry, opts ...Option) (*Volume, error) {
	dev, err := blockdev.New(geom)
	if err != nil {
		return nil, err
	}

	v := &Volume{
		dev:         dev,
		geom:        geom,
		layout:      ComputeLayout(geom),
		backingPath: backingPath,
		openFiles:   make([]openFile, geom.MaxOpenFiles),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}

	loadErr := dev.Load(backingPath)
	switch {
	case loadErr == nil:
		if err := v.checkMagic(); err != nil {
			return nil, err
		}
		v.log.Debug("mounted existing volume", zap.String("backing", backingPath))

	case errors.Is(loadErr, fs.ErrNotExist):
		v.log.Debug("no backing store, formatting fresh volume",
			zap.String("backing", backingPath))
		if err := v.format(); err != nil {
			return nil, err
		}
		if err := dev.Save(backingPath); err != nil {
			return nil, err
		}

	default:
		return nil, loadErr
	}

	return v, nil
}

// Sync flushes the whole in-memory image to the backing store.
func (v *Volume) Sync() error {
	return v.dev.Save(v.backingPath)
}

// Device exposes the underlying device for inspection and tests.
func (v *Volume) Device() *blockdev.Device {
	return v.dev
}

// Geometry returns the geometry the volume was booted with.
func (v *Volume) Geometry() geometry.Geometry {
	return v.geom
}

// Layout returns the derived on-disk layout.
func (v *Volume) Layout() Layout {
	return v.layout
}

func (v *Volume) inodeAllocator() bitmapRegion {
	return bitmapRegion{
		dev:         v.dev,
		startSector: v.layout.InodeBitmapStart,
		sectors:     v.layout.InodeBitmapSectors,
		bits:        v.geom.MaxFiles,
		sectorSize:  v.geom.SectorSize,
	}
}

func (v *Volume) sectorAllocator() bitmapRegion {
	return bitmapRegion{
		dev:         v.dev,
		startSector: v.layout.SectorBitmapStart,
		sectors:     v.layout.SectorBitmapSectors,
		bits:        v.geom.TotalSectors,
		sectorSize:  v.geom.SectorSize,
	}
}

func (v *Volume) checkMagic() error {
	buf := make([]byte, v.geom.SectorSize)
	if err := v.dev.ReadSector(v.layout.SuperblockSector, buf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	if binary.LittleEndian.Uint32(buf) != Magic {
		return sectorfs.ErrInvalidFileSystem.WithMessage(fmt.Sprintf(
			"superblock magic is %#08x, want %#08x",
			binary.LittleEndian.Uint32(buf), Magic))
	}
	return nil
}

// format writes a fresh file system: the superblock magic, both bitmaps with
// their reserved prefixes (inode 0 for the root; every metadata sector), and
// a zeroed inode table whose first record is the empty root directory.
func (v *Volume) format() error {
	buf := make([]byte, v.geom.SectorSize)
	writer := bytewriter.New(buf)
	binary.Write(writer, binary.LittleEndian, Magic)
	if err := v.dev.WriteSector(v.layout.SuperblockSector, buf); err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	v.log.Debug("formatted superblock", zap.Uint("sector", v.layout.SuperblockSector))

	if err := v.inodeAllocator().init(1); err != nil {
		return err
	}
	v.log.Debug("formatted inode bitmap",
		zap.Uint("start", v.layout.InodeBitmapStart),
		zap.Uint("sectors", v.layout.InodeBitmapSectors))

	if err := v.sectorAllocator().init(v.layout.FirstDataSector); err != nil {
		return err
	}
	v.log.Debug("formatted sector bitmap",
		zap.Uint("start", v.layout.SectorBitmapStart),
		zap.Uint("sectors", v.layout.SectorBitmapSectors))

	for i := range buf {
		buf[i] = 0
	}
	for sector := uint(0); sector < v.layout.InodeTableSectors; sector++ {
		if sector == 0 {
			encodeInode(buf, 0, newInode(typeDir, v.geom.MaxSectorsPerFile))
		}
		if err := v.dev.WriteSector(v.layout.InodeTableStart+sector, buf); err != nil {
			return sectorfs.ErrIOFailed.Wrap(err)
		}
		if sector == 0 {
			for i := range buf {
				buf[i] = 0
			}
		}
	}
	v.log.Debug("formatted inode table",
		zap.Uint("start", v.layout.InodeTableStart),
		zap.Uint("sectors", v.layout.InodeTableSectors))
	return nil
}

// CreateFile creates an empty regular file at an absolute path whose parent
// directory already exists.
func (v *Volume) CreateFile(path string) error {
	return v.create(typeFile, path)
}

// Mkdir creates an empty directory at an absolute path whose parent
// directory already exists.
func (v *Volume) Mkdir(path string) error {
	return v.create(typeDir, path)
}

func (v *Volume) create(typ inodeType, path string) error {
	res, err := v.resolve(path)
	if err != nil {
		return err
	}
	if res.child != notFound {
		return sectorfs.ErrExists.WithMessage(path)
	}

	childIno, err := v.inodeAllocator().firstUnused()
	if err != nil {
		if errors.Is(err, sectorfs.ErrNoSpaceOnDevice) {
			return sectorfs.ErrNoSpaceOnDevice.WithMessage("inode table is full")
		}
		return err
	}

	if err := v.writeInode(int(childIno), newInode(typ, v.geom.MaxSectorsPerFile)); err != nil {
		return err
	}

	if err := v.appendDirent(res.parent, res.last, int(childIno)); err != nil {
		// Return the claimed inode so a failed create leaves nothing
		// allocated.
		if clearErr := v.inodeAllocator().clear(childIno); clearErr != nil {
			v.log.Warn("failed to release inode after create failure",
				zap.Uint("inode", childIno), zap.Error(clearErr))
		}
		return err
	}

	v.log.Debug("created object",
		zap.String("path", path),
		zap.Uint("inode", childIno),
		zap.Bool("dir", typ == typeDir))
	return nil
}

// Unlink removes a regular file: its data sectors and inode are returned to
// the bitmaps and its entry is removed from the parent directory. A file
// with live open descriptors cannot be unlinked.
func (v *Volume) Unlink(path string) error {
	res, err := v.resolve(path)
	if err != nil {
		return err
	}
	if res.child == notFound {
		return sectorfs.ErrNotFound.WithMessage(path)
	}
	if v.isOpen(res.child) {
		return sectorfs.ErrFileInUse.WithMessage(path)
	}

	child, err := v.readInode(res.child)
	if err != nil {
		return err
	}
	if child.isDir() {
		return sectorfs.ErrIsADirectory.WithMessage(path)
	}

	return v.removeObject(res, child)
}

// Rmdir removes an empty directory. The root directory can never be removed.
func (v *Volume) Rmdir(path string) error {
	res, err := v.resolve(path)
	if err != nil {
		return err
	}
	if res.child == notFound {
		return sectorfs.ErrNotFound.WithMessage(path)
	}
	if res.child == rootInode {
		return sectorfs.ErrInvalidPath.WithMessage("cannot remove the root directory")
	}

	child, err := v.readInode(res.child)
	if err != nil {
		return err
	}
	if !child.isDir() {
		return sectorfs.ErrNotADirectory.WithMessage(path)
	}
	if child.Size > 0 {
		return sectorfs.ErrDirectoryNotEmpty.WithMessage(path)
	}

	return v.removeObject(res, child)
}

// removeObject reclaims an inode and everything it references, then detaches
// it from its parent. Ordering matters in the absence of transactions: data
// sector bits first, then the zeroed inode, then its bitmap bit, then the
// dirent — an interruption can leak free bits but never leaves a dirent
// naming an inode whose storage was already handed back.
func (v *Volume) removeObject(res resolution, child inode) error {
	for _, sector := range child.Data {
		if sector > 0 {
			if err := v.sectorAllocator().clear(uint(sector)); err != nil {
				return err
			}
		}
	}

	if err := v.writeInode(res.child, newInode(typeFile, v.geom.MaxSectorsPerFile)); err != nil {
		return err
	}
	if err := v.inodeAllocator().clear(uint(res.child)); err != nil {
		return err
	}

	if err := v.removeDirent(res.parent, res.child); err != nil {
		return err
	}

	v.log.Debug("removed object", zap.String("last", res.last), zap.Int("inode", res.child))
	return nil
}

// OpenFile opens a regular file for reading and writing and returns a file
// descriptor with the cursor at 0. The same file may be open through several
// descriptors at once, each with an independent cursor.
func (v *Volume) OpenFile(path string) (int, error) {
	// Check for a free descriptor before resolving, so table exhaustion is
	// reported even for paths that do not exist.
	if !v.hasFreeSlot() {
		return -1, sectorfs.ErrTooManyOpenFiles
	}

	res, err := v.resolve(path)
	if err != nil {
		return -1, err
	}
	if res.child == notFound {
		return -1, sectorfs.ErrNotFound.WithMessage(path)
	}

	child, err := v.readInode(res.child)
	if err != nil {
		return -1, err
	}
	if child.isDir() {
		return -1, sectorfs.ErrIsADirectory.WithMessage(path)
	}

	fd, err := v.allocFD(res.child, int(child.Size))
	if err != nil {
		return -1, err
	}
	v.log.Debug("opened file",
		zap.String("path", path),
		zap.Int("fd", fd),
		zap.Int("inode", res.child),
		zap.Int32("size", child.Size))
	return fd, nil
}

// DirSize returns the byte size of a directory's live entries (entry count
// times the on-disk dirent record size).
func (v *Volume) DirSize(path string) (int, error) {
	dir, err := v.lookupDir(path)
	if err != nil {
		return 0, err
	}
	return int(dir.Size) * int(v.geom.DirentRecordSize()), nil
}

// ReadDir returns a directory's live entries. maxEntries bounds the result
// the way a caller-supplied buffer would: if the directory holds more than
// maxEntries entries the call fails with ErrBufferTooSmall. A negative
// maxEntries means no bound.
func (v *Volume) ReadDir(path string, maxEntries int) ([]DirEntry, error) {
	dir, err := v.lookupDir(path)
	if err != nil {
		return nil, err
	}
	if maxEntries >= 0 && int(dir.Size) > maxEntries {
		return nil, sectorfs.ErrBufferTooSmall.WithMessage(fmt.Sprintf(
			"%s holds %d entries, caller allows %d", path, dir.Size, maxEntries))
	}
	return v.readDirents(dir)
}

func (v *Volume) lookupDir(path string) (inode, error) {
	res, err := v.resolve(path)
	if err != nil {
		return inode{}, err
	}
	if res.child == notFound {
		return inode{}, sectorfs.ErrNotFound.WithMessage(path)
	}

	dir, err := v.readInode(res.child)
	if err != nil {
		return inode{}, err
	}
	if !dir.isDir() {
		return inode{}, sectorfs.ErrNotADirectory.WithMessage(path)
	}
	return dir, nil
}
