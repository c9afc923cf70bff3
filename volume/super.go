package volume

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-filehdr/alloc"
	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
)

const (
	MAGIC   uint32 = 0x46484452 // "FHDR"
	VERSION uint32 = 1

	SUPERSECTOR common.Snum = 0
	SUPERSZ     uint64      = 8 * 4
)

var (
	ErrBadMagic   = errors.New("not a volume")
	ErrBadVersion = errors.New("unsupported volume version")
)

// Super describes a volume's layout. It lives in sector 0, followed by the
// free-map sectors; every later sector is allocatable.
type Super struct {
	Geom        common.Geometry
	NumSectors  uint64
	BitmapStart uint64
	BitmapLen   uint64
}

func mkSuper(geom common.Geometry, nsec uint64) *Super {
	return &Super{
		Geom:        geom,
		NumSectors:  nsec,
		BitmapStart: uint64(SUPERSECTOR) + 1,
		BitmapLen:   alloc.NumSectors(nsec, geom.SectorSize),
	}
}

// DataStart is the first sector not reserved for the superblock and the
// free map.
func (sb *Super) DataStart() uint64 {
	return sb.BitmapStart + sb.BitmapLen
}

func (sb *Super) encode() disk.Sector {
	enc := marshal.NewEnc(sb.Geom.SectorSize)
	enc.PutInt32(MAGIC)
	enc.PutInt32(VERSION)
	enc.PutInt32(uint32(sb.Geom.SectorSize))
	enc.PutInt32(uint32(sb.Geom.NumFirst))
	enc.PutInt32(uint32(sb.Geom.NumSecond))
	enc.PutInt32(uint32(sb.NumSectors))
	enc.PutInt32(uint32(sb.BitmapStart))
	enc.PutInt32(uint32(sb.BitmapLen))
	return enc.Finish()
}

func decodeSuper(b disk.Sector) (*Super, error) {
	if uint64(len(b)) < SUPERSZ {
		return nil, fmt.Errorf("%w: sector of %d bytes", ErrBadMagic, len(b))
	}
	dec := marshal.NewDec(b)
	if dec.GetInt32() != MAGIC {
		return nil, ErrBadMagic
	}
	if v := dec.GetInt32(); v != VERSION {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	sb := &Super{}
	sb.Geom.SectorSize = uint64(dec.GetInt32())
	sb.Geom.NumFirst = uint64(dec.GetInt32())
	sb.Geom.NumSecond = uint64(dec.GetInt32())
	sb.NumSectors = uint64(dec.GetInt32())
	sb.BitmapStart = uint64(dec.GetInt32())
	sb.BitmapLen = uint64(dec.GetInt32())
	if err := sb.Geom.Validate(); err != nil {
		return nil, err
	}
	if sb.Geom.SectorSize != uint64(len(b)) {
		return nil, fmt.Errorf("%w: superblock sector size %d, disk %d",
			common.ErrBadGeometry, sb.Geom.SectorSize, len(b))
	}
	if sb.BitmapLen != alloc.NumSectors(sb.NumSectors, sb.Geom.SectorSize) ||
		sb.DataStart() >= sb.NumSectors {
		return nil, fmt.Errorf("%w: free map at %d+%d for %d sectors",
			common.ErrBadGeometry, sb.BitmapStart, sb.BitmapLen, sb.NumSectors)
	}
	return sb, nil
}
