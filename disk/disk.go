package disk

import "errors"

// Sector is a buffer of exactly one sector
type Sector = []byte

var ErrOutOfBounds = errors.New("sector out of bounds")

// Disk provides synchronous access to a sector-addressed disk
type Disk interface {
	// SectorSize reports the size of every sector, in bytes
	SectorSize() uint64

	// Read reads a sector by number
	//
	// Expects a < Size().
	Read(a uint64) (Sector, error)

	// ReadTo reads the sector at a and stores the result in b
	//
	// Expects a < Size() and len(b) == SectorSize().
	ReadTo(a uint64, b Sector) error

	// Write updates a sector by number
	//
	// Expects a < Size() and len(v) == SectorSize().
	Write(a uint64, v Sector) error

	// Size reports how big the disk is, in sectors
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

func checkSize(v Sector, sectorSize uint64) {
	if uint64(len(v)) != sectorSize {
		panic("buffer is not sector-sized")
	}
}
