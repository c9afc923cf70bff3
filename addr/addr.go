package addr

import (
	"github.com/tchajed/goose/machine/disk"
)

// Addr identifies the start of an object inside a larger disk unit.
//
// Blkno is the number of the unit containing the object (a goose block for
// packed sectors, a sector for bitmap bits), and Off is the location of the
// object within it, expressed as a bit offset. The size of the object is
// determined by the context in which Addr is used.
type Addr struct {
	Blkno uint64
	Off   uint64 // offset in bits
}

func MkAddr(blkno uint64, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkBitAddr locates bit n of a bitmap that starts at unit start and holds
// nbit bits per unit.
func MkBitAddr(start uint64, n uint64, nbit uint64) Addr {
	bit := n % nbit
	i := n / nbit
	return MkAddr(start+i, bit)
}

// MkSectorAddr locates sector s of a device that packs sectors of sectorSize
// bytes into goose blocks.
func MkSectorAddr(s uint64, sectorSize uint64) Addr {
	per := disk.BlockSize / sectorSize
	return MkAddr(s/per, (s%per)*sectorSize*8)
}
