package common

import (
	"errors"
	"fmt"
)

// Snum is a sector number. Sector numbers are stored on disk as 32-bit
// integers.
type Snum = uint32

// NULLSNUM is never handed out by the allocator; it doubles as "no sector".
const NULLSNUM Snum = 0

const (
	SNUMSZ   uint64 = 4              // on-disk size of a sector number
	HDRMETA  uint64 = 3 * SNUMSZ     // total_bytes, sector_count, uses_index
	MAXBYTES uint64 = (1 << 32) - 1 // total_bytes is a u32
)

var ErrBadGeometry = errors.New("bad geometry")

// Geometry fixes the sizes of the on-disk structures of a volume.
//
// NumFirst is the number of sector slots in a file header and NumSecond the
// number of slots in an index node. Both records must fit in one sector, and
// a full direct slot table must fit in one index node.
type Geometry struct {
	SectorSize uint64
	NumFirst   uint64
	NumSecond  uint64
}

// DefaultGeometry packs as many slots into the header and index nodes as a
// sector of sectorSize bytes can hold.
func DefaultGeometry(sectorSize uint64) Geometry {
	return Geometry{
		SectorSize: sectorSize,
		NumFirst:   (sectorSize - HDRMETA) / SNUMSZ,
		NumSecond:  sectorSize / SNUMSZ,
	}
}

func (g Geometry) Validate() error {
	if g.SectorSize < HDRMETA+SNUMSZ {
		return fmt.Errorf("%w: sector size %d too small", ErrBadGeometry, g.SectorSize)
	}
	if g.NumFirst == 0 || g.NumSecond == 0 {
		return fmt.Errorf("%w: empty slot table", ErrBadGeometry)
	}
	if HDRMETA+g.NumFirst*SNUMSZ > g.SectorSize {
		return fmt.Errorf("%w: %d header slots do not fit in %d bytes",
			ErrBadGeometry, g.NumFirst, g.SectorSize)
	}
	if g.NumFirst > g.NumSecond {
		return fmt.Errorf("%w: %d header slots do not fit in one %d-slot index node",
			ErrBadGeometry, g.NumFirst, g.NumSecond)
	}
	if g.NumSecond*SNUMSZ > g.SectorSize {
		return fmt.Errorf("%w: %d index slots do not fit in %d bytes",
			ErrBadGeometry, g.NumSecond, g.SectorSize)
	}
	return nil
}

// MaxSectors is the largest sector count a file header can describe.
func (g Geometry) MaxSectors() uint64 {
	return g.NumFirst * g.NumSecond
}

// MaxBytes is the largest file length a header can record.
func (g Geometry) MaxBytes() uint64 {
	n := g.MaxSectors() * g.SectorSize
	if n > MAXBYTES {
		return MAXBYTES
	}
	return n
}
