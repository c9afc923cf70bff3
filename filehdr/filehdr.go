// Package filehdr maps a file's bytes onto disk sectors.
//
// A FileHeader fits in one sector. It records the file's length and a fixed
// table of NumFirst sector numbers. Small files use the table directly: slot
// i is the i-th data sector. Once a file needs more than NumFirst sectors
// the header switches, permanently, to the indexed layout: slot i is the
// sector of the i-th index node, and every index node lists up to NumSecond
// data sectors.
//
// A FileHeader does no locking. Callers serialize Allocate, Deallocate and
// AddLength on one header, and keep other users of the free map from
// claiming sectors while one of them runs.
package filehdr

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/util"
)

var (
	// ErrNoSpace means the free map cannot supply the sectors a request
	// needs. Nothing was claimed.
	ErrNoSpace = errors.New("not enough free sectors")
	// ErrTooLarge means the requested length exceeds what the geometry can
	// map.
	ErrTooLarge = errors.New("file too large")
	// ErrInconsistent means the header and the free map disagree about who
	// owns a sector.
	ErrInconsistent = errors.New("free map inconsistent with file header")
	// ErrCorrupt means a header sector does not decode to a valid header.
	ErrCorrupt = errors.New("corrupt file header")
)

// FreeMap is the free-space bitmap the header claims sectors from.
type FreeMap interface {
	// NumFree reports how many sectors are free
	NumFree() uint64
	// Find marks a free sector used and returns it, or returns
	// common.NULLSNUM if none are free
	Find() common.Snum
	// Test reports whether s is marked used
	Test(s common.Snum) bool
	// Clear marks s free
	Clear(s common.Snum)
	// Save persists the map to d
	Save(d disk.Disk) error
}

type FileHeader struct {
	geom       common.Geometry
	numBytes   uint32
	numSectors uint32
	useIndex   bool
	sectors    []common.Snum // NumFirst slots
}

// MkFileHeader returns an empty, direct header for geom.
func MkFileHeader(geom common.Geometry) *FileHeader {
	return &FileHeader{
		geom:    geom,
		sectors: make([]common.Snum, geom.NumFirst),
	}
}

func (h *FileHeader) Geometry() common.Geometry {
	return h.geom
}

// FileLength returns the number of bytes in the file.
func (h *FileHeader) FileLength() uint64 {
	return uint64(h.numBytes)
}

func (h *FileHeader) NumSectors() uint64 {
	return uint64(h.numSectors)
}

// UsesIndex reports whether the header is in the indexed layout.
func (h *FileHeader) UsesIndex() bool {
	return h.useIndex
}

// Slots returns a copy of the header's slot table.
func (h *FileHeader) Slots() []common.Snum {
	s := make([]common.Snum, len(h.sectors))
	copy(s, h.sectors)
	return s
}

func (h *FileHeader) numNodes() uint64 {
	return numNodes(h.geom, uint64(h.numSectors))
}

func numNodes(geom common.Geometry, nsec uint64) uint64 {
	return util.RoundUp(nsec, geom.NumSecond)
}

// nodeFill is the number of populated slots in node i of a file with nsec
// sectors: NumSecond for every node but the last.
func nodeFill(geom common.Geometry, nsec uint64, i uint64) uint64 {
	return util.Min(geom.NumSecond, nsec-i*geom.NumSecond)
}

func (h *FileHeader) encode() disk.Sector {
	enc := marshal.NewEnc(h.geom.SectorSize)
	enc.PutInt32(h.numBytes)
	enc.PutInt32(h.numSectors)
	var useIndex uint32
	if h.useIndex {
		useIndex = 1
	}
	enc.PutInt32(useIndex)
	for _, s := range h.sectors {
		enc.PutInt32(s)
	}
	return enc.Finish()
}

func (h *FileHeader) decode(b disk.Sector) error {
	dec := marshal.NewDec(b)
	numBytes := dec.GetInt32()
	numSectors := dec.GetInt32()
	useIndex := dec.GetInt32()
	sectors := make([]common.Snum, h.geom.NumFirst)
	for i := range sectors {
		sectors[i] = dec.GetInt32()
	}
	if useIndex > 1 {
		return fmt.Errorf("%w: layout flag %d", ErrCorrupt, useIndex)
	}
	if uint64(numSectors) != util.RoundUp(uint64(numBytes), h.geom.SectorSize) {
		return fmt.Errorf("%w: %d sectors for %d bytes", ErrCorrupt,
			numSectors, numBytes)
	}
	if uint64(numSectors) > h.geom.MaxSectors() ||
		(useIndex == 0 && uint64(numSectors) > h.geom.NumFirst) {
		return fmt.Errorf("%w: %d sectors do not fit the layout", ErrCorrupt,
			numSectors)
	}
	h.numBytes = numBytes
	h.numSectors = numSectors
	h.useIndex = useIndex == 1
	h.sectors = sectors
	return nil
}

// FetchFrom loads the header stored in sector.
func (h *FileHeader) FetchFrom(d disk.Disk, sector common.Snum) error {
	b, err := d.Read(uint64(sector))
	if err != nil {
		return err
	}
	if err := h.decode(b); err != nil {
		return fmt.Errorf("header at %d: %w", sector, err)
	}
	return nil
}

// WriteBack stores the header in sector.
func (h *FileHeader) WriteBack(d disk.Disk, sector common.Snum) error {
	util.DPrintf(10, "WriteBack: header %d len %d nsec %d index %v\n",
		sector, h.numBytes, h.numSectors, h.useIndex)
	return d.Write(uint64(sector), h.encode())
}

// ByteToSector returns the sector holding byte offset of the file.
//
// The caller guarantees offset < FileLength(). An indexed header reads one
// index node per call.
func (h *FileHeader) ByteToSector(d disk.Disk, offset uint64) (common.Snum, error) {
	which := offset / h.geom.SectorSize
	if !h.useIndex {
		return h.sectors[which], nil
	}
	nodeIdx := which / h.geom.NumSecond
	node, err := readIndexNode(d, h.geom, h.sectors[nodeIdx])
	if err != nil {
		return common.NULLSNUM, err
	}
	return node.sectors[which%h.geom.NumSecond], nil
}

// IndexSectors lists the sectors of the header's index nodes, in order.
func (h *FileHeader) IndexSectors() []common.Snum {
	if !h.useIndex {
		return nil
	}
	n := h.numNodes()
	s := make([]common.Snum, n)
	copy(s, h.sectors[:n])
	return s
}

// DataSectors lists the file's data sectors in file order.
func (h *FileHeader) DataSectors(d disk.Disk) ([]common.Snum, error) {
	nsec := uint64(h.numSectors)
	if !h.useIndex {
		s := make([]common.Snum, nsec)
		copy(s, h.sectors[:nsec])
		return s, nil
	}
	s := make([]common.Snum, 0, nsec)
	for i := uint64(0); i < h.numNodes(); i++ {
		node, err := readIndexNode(d, h.geom, h.sectors[i])
		if err != nil {
			return nil, err
		}
		s = append(s, node.sectors[:nodeFill(h.geom, nsec, i)]...)
	}
	return s, nil
}
