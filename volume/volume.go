// Package volume lays file headers out on a disk.
//
// A volume is a superblock, a free map, and files named by the sector that
// holds their header. Volume serializes what the filehdr package leaves to
// its callers: every operation on a file holds the lock for the file's
// header sector, and every claim from the free map happens under the volume
// mutex, so the free-space check and the claims that follow it are atomic.
package volume

import (
	"fmt"
	"io"
	"sync"

	"github.com/mit-pdos/go-filehdr/alloc"
	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/filehdr"
	"github.com/mit-pdos/go-filehdr/lockmap"
	"github.com/mit-pdos/go-filehdr/util"
)

type Volume struct {
	d     disk.Disk
	sb    *Super
	mu    *sync.Mutex // protects fm
	fm    *alloc.Alloc
	locks *lockmap.LockMap
}

func mkVolume(d disk.Disk, sb *Super, fm *alloc.Alloc) *Volume {
	return &Volume{
		d:     d,
		sb:    sb,
		mu:    new(sync.Mutex),
		fm:    fm,
		locks: lockmap.MkLockMap(),
	}
}

// Format initializes an empty volume on d.
func Format(d disk.Disk, geom common.Geometry) (*Volume, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if geom.SectorSize != d.SectorSize() {
		return nil, fmt.Errorf("%w: geometry sector size %d, disk %d",
			common.ErrBadGeometry, geom.SectorSize, d.SectorSize())
	}
	if geom.SectorSize < SUPERSZ {
		return nil, fmt.Errorf("%w: superblock needs %d bytes",
			common.ErrBadGeometry, SUPERSZ)
	}
	nsec, err := d.Size()
	if err != nil {
		return nil, err
	}
	sb := mkSuper(geom, nsec)
	if sb.DataStart() >= nsec {
		return nil, fmt.Errorf("%w: %d sectors leave no room for data",
			common.ErrBadGeometry, nsec)
	}
	fm := alloc.MkAlloc(sb.BitmapStart, nsec, geom.SectorSize)
	for s := uint64(0); s < sb.DataStart(); s++ {
		fm.MarkUsed(s)
	}
	if err := d.Write(uint64(SUPERSECTOR), sb.encode()); err != nil {
		return nil, err
	}
	if err := fm.Save(d); err != nil {
		return nil, err
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	util.DPrintf(1, "Format: %d sectors of %d, %d free\n",
		nsec, geom.SectorSize, fm.NumFree())
	return mkVolume(d, sb, fm), nil
}

// Open loads the volume stored on d.
func Open(d disk.Disk) (*Volume, error) {
	b, err := d.Read(uint64(SUPERSECTOR))
	if err != nil {
		return nil, err
	}
	sb, err := decodeSuper(b)
	if err != nil {
		return nil, err
	}
	fm := alloc.MkAlloc(sb.BitmapStart, sb.NumSectors, sb.Geom.SectorSize)
	if err := fm.Load(d); err != nil {
		return nil, err
	}
	util.DPrintf(1, "Open: %d sectors of %d, %d free\n",
		sb.NumSectors, sb.Geom.SectorSize, fm.NumFree())
	return mkVolume(d, sb, fm), nil
}

func (v *Volume) Super() Super {
	return *v.sb
}

func (v *Volume) NumFree() uint64 {
	return v.fm.NumFree()
}

// Close flushes the disk; the volume must not be used afterwards.
func (v *Volume) Close() error {
	if err := v.d.Barrier(); err != nil {
		return err
	}
	return v.d.Close()
}

func (v *Volume) load(hdr common.Snum) (*filehdr.FileHeader, error) {
	if uint64(hdr) < v.sb.DataStart() || uint64(hdr) >= v.sb.NumSectors {
		return nil, fmt.Errorf("%w: %d is not a file", disk.ErrOutOfBounds, hdr)
	}
	h := filehdr.MkFileHeader(v.sb.Geom)
	if err := h.FetchFrom(v.d, hdr); err != nil {
		return nil, err
	}
	return h, nil
}

// Create makes a file of size bytes and returns its header sector.
func (v *Volume) Create(size uint64) (common.Snum, error) {
	v.mu.Lock()
	hdr := v.fm.Find()
	v.mu.Unlock()
	if hdr == common.NULLSNUM {
		return common.NULLSNUM, filehdr.ErrNoSpace
	}

	// file lock before the volume mutex, as in every other operation
	v.locks.Acquire(hdr)
	defer v.locks.Release(hdr)
	v.mu.Lock()
	defer v.mu.Unlock()
	h := filehdr.MkFileHeader(v.sb.Geom)
	if err := h.Allocate(v.d, v.fm, size); err != nil {
		v.fm.Clear(hdr)
		return common.NULLSNUM, err
	}
	if err := h.WriteBack(v.d, hdr); err != nil {
		if derr := h.Deallocate(v.d, v.fm); derr != nil {
			return common.NULLSNUM, fmt.Errorf("%w (releasing sectors: %v)", err, derr)
		}
		v.fm.Clear(hdr)
		return common.NULLSNUM, err
	}
	if err := v.fm.Save(v.d); err != nil {
		return common.NULLSNUM, err
	}
	util.DPrintf(3, "Create: %d bytes at %d\n", size, hdr)
	return hdr, nil
}

// Remove releases the file's sectors and its header sector.
func (v *Volume) Remove(hdr common.Snum) error {
	v.locks.Acquire(hdr)
	defer v.locks.Release(hdr)
	h, err := v.load(hdr)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.fm.Test(hdr) {
		return fmt.Errorf("%w: header sector %d is free", filehdr.ErrInconsistent, hdr)
	}
	if err := h.Deallocate(v.d, v.fm); err != nil {
		return err
	}
	v.fm.Clear(hdr)
	util.DPrintf(3, "Remove: %d\n", hdr)
	return v.fm.Save(v.d)
}

// Extend grows the file by extra bytes.
func (v *Volume) Extend(hdr common.Snum, extra uint64) error {
	v.locks.Acquire(hdr)
	defer v.locks.Release(hdr)
	h, err := v.load(hdr)
	if err != nil {
		return err
	}
	return v.extend(h, hdr, extra)
}

func (v *Volume) extend(h *filehdr.FileHeader, hdr common.Snum, extra uint64) error {
	if !v.locks.Held(hdr) {
		panic(fmt.Errorf("extend: file %d is not locked", hdr))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return h.AddLength(v.d, v.fm, extra, hdr)
}

func (v *Volume) Length(hdr common.Snum) (uint64, error) {
	v.locks.Acquire(hdr)
	defer v.locks.Release(hdr)
	h, err := v.load(hdr)
	if err != nil {
		return 0, err
	}
	return h.FileLength(), nil
}

// Dump prints the file's header and contents to w.
func (v *Volume) Dump(hdr common.Snum, w io.Writer) error {
	v.locks.Acquire(hdr)
	defer v.locks.Release(hdr)
	h, err := v.load(hdr)
	if err != nil {
		return err
	}
	return h.Print(v.d, w)
}
