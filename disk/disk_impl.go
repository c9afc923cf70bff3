package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-filehdr/util"
)

var _ Disk = (*FileDisk)(nil)

// FileDisk stores sectors in a regular file or block device
type FileDisk struct {
	fd         int
	sectorSize uint64
	numSectors uint64
}

func NewFileDisk(path string, sectorSize uint64, numSectors uint64) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	sz := int64(numSectors * sectorSize)
	if (stat.Mode&unix.S_IFREG) != 0 && stat.Size != sz {
		err = unix.Ftruncate(fd, sz)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	util.DPrintf(1, "NewFileDisk: %s %d x %d\n", path, numSectors, sectorSize)
	return &FileDisk{fd: fd, sectorSize: sectorSize, numSectors: numSectors}, nil
}

func (d *FileDisk) SectorSize() uint64 {
	return d.sectorSize
}

func (d *FileDisk) ReadTo(a uint64, buf Sector) error {
	checkSize(buf, d.sectorSize)
	if a >= d.numSectors {
		return fmt.Errorf("%w: read at %v", ErrOutOfBounds, a)
	}
	_, err := unix.Pread(d.fd, buf, int64(a*d.sectorSize))
	if err != nil {
		return fmt.Errorf("read sector %d: %w", a, err)
	}
	util.DPrintf(20, "read: %v\n", a)
	return nil
}

func (d *FileDisk) Read(a uint64) (Sector, error) {
	buf := make([]byte, d.sectorSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *FileDisk) Write(a uint64, v Sector) error {
	checkSize(v, d.sectorSize)
	if a >= d.numSectors {
		return fmt.Errorf("%w: write at %v", ErrOutOfBounds, a)
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*d.sectorSize))
	if err != nil {
		return fmt.Errorf("write sector %d: %w", a, err)
	}
	util.DPrintf(20, "write: %v\n", a)
	return nil
}

func (d *FileDisk) Size() (uint64, error) {
	return d.numSectors, nil
}

func (d *FileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("file sync failed: %w", err)
	}
	util.DPrintf(20, "barrier\n")
	return nil
}

func (d *FileDisk) Close() error {
	return unix.Close(d.fd)
}

/////////////////////////

var _ Disk = (*MemDisk)(nil)

type MemDisk struct {
	l          *sync.RWMutex
	sectorSize uint64
	sectors    [][]byte
}

func NewMemDisk(sectorSize uint64, numSectors uint64) *MemDisk {
	sectors := make([][]byte, numSectors)
	for i := range sectors {
		sectors[i] = make([]byte, sectorSize)
	}
	return &MemDisk{l: new(sync.RWMutex), sectorSize: sectorSize, sectors: sectors}
}

func (d *MemDisk) SectorSize() uint64 {
	return d.sectorSize
}

func (d *MemDisk) ReadTo(a uint64, buf Sector) error {
	checkSize(buf, d.sectorSize)
	d.l.RLock()
	defer d.l.RUnlock()
	if a >= uint64(len(d.sectors)) {
		return fmt.Errorf("%w: read at %v", ErrOutOfBounds, a)
	}
	copy(buf, d.sectors[a])
	return nil
}

func (d *MemDisk) Read(a uint64) (Sector, error) {
	buf := make(Sector, d.sectorSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *MemDisk) Write(a uint64, v Sector) error {
	checkSize(v, d.sectorSize)
	d.l.Lock()
	defer d.l.Unlock()
	if a >= uint64(len(d.sectors)) {
		return fmt.Errorf("%w: write at %v", ErrOutOfBounds, a)
	}
	d.sectors[a] = util.CloneByteSlice(v)
	return nil
}

func (d *MemDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.sectors)), nil
}

func (d *MemDisk) Barrier() error { return nil }

func (d *MemDisk) Close() error { return nil }
