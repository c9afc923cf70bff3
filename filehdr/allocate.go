package filehdr

import (
	"fmt"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/util"
)

// claims records the sectors one operation takes from the free map so a
// failed operation can hand them back.
type claims struct {
	fm  FreeMap
	got []common.Snum
}

func (c *claims) find() (common.Snum, error) {
	s := c.fm.Find()
	if s == common.NULLSNUM {
		return common.NULLSNUM, ErrNoSpace
	}
	c.got = append(c.got, s)
	return s, nil
}

func (c *claims) fill(sectors []common.Snum) error {
	for i := range sectors {
		s, err := c.find()
		if err != nil {
			return err
		}
		sectors[i] = s
	}
	return nil
}

func (c *claims) undo() {
	util.DPrintf(3, "claims: undo %d\n", len(c.got))
	for _, s := range c.got {
		c.fm.Clear(s)
	}
	c.got = nil
}

// Allocate initializes a fresh header for a file of fileSize bytes, claiming
// its data sectors (and index nodes, for a large file) from fm. Index nodes
// are written to d as they are filled; the header itself is not, that is the
// caller's job.
//
// Allocate returns ErrNoSpace, leaving h and fm unchanged, if fm does not
// have enough free sectors.
func (h *FileHeader) Allocate(d disk.Disk, fm FreeMap, fileSize uint64) error {
	if fileSize > h.geom.MaxBytes() {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, fileSize)
	}
	nsec := util.RoundUp(fileSize, h.geom.SectorSize)
	sectors := make([]common.Snum, h.geom.NumFirst)
	c := &claims{fm: fm}
	useIndex := nsec > h.geom.NumFirst

	var err error
	if useIndex {
		err = h.allocateIndexed(d, c, nsec, sectors)
	} else {
		if fm.NumFree() < nsec {
			return ErrNoSpace
		}
		err = c.fill(sectors[:nsec])
	}
	if err != nil {
		c.undo()
		return err
	}

	h.numBytes = uint32(fileSize)
	h.numSectors = uint32(nsec)
	h.useIndex = useIndex
	h.sectors = sectors
	util.DPrintf(5, "Allocate: %d bytes, %d sectors, index %v\n",
		fileSize, nsec, useIndex)
	return nil
}

func (h *FileHeader) allocateIndexed(d disk.Disk, c *claims, nsec uint64, sectors []common.Snum) error {
	nnode := numNodes(h.geom, nsec)
	if c.fm.NumFree() < nsec+nnode {
		return ErrNoSpace
	}
	for i := uint64(0); i < nnode; i++ {
		s, err := c.find()
		if err != nil {
			return err
		}
		sectors[i] = s
		node := mkIndexNode(h.geom)
		if err := c.fill(node.sectors[:nodeFill(h.geom, nsec, i)]); err != nil {
			return err
		}
		if err := node.writeTo(d, h.geom, s); err != nil {
			return err
		}
	}
	return nil
}

func release(fm FreeMap, s common.Snum) error {
	if !fm.Test(s) {
		return fmt.Errorf("%w: sector %d is already free", ErrInconsistent, s)
	}
	fm.Clear(s)
	return nil
}

// Deallocate returns every sector the header owns, data and index nodes, to
// fm.
//
// A sector that fm already considers free means the bookkeeping is broken;
// Deallocate stops at the first one and returns an error wrapping
// ErrInconsistent.
func (h *FileHeader) Deallocate(d disk.Disk, fm FreeMap) error {
	nsec := uint64(h.numSectors)
	if !h.useIndex {
		for _, s := range h.sectors[:nsec] {
			if err := release(fm, s); err != nil {
				return err
			}
		}
		return nil
	}
	for i := uint64(0); i < h.numNodes(); i++ {
		node, err := readIndexNode(d, h.geom, h.sectors[i])
		if err != nil {
			return err
		}
		for _, s := range node.sectors[:nodeFill(h.geom, nsec, i)] {
			if err := release(fm, s); err != nil {
				return err
			}
		}
		if err := release(fm, h.sectors[i]); err != nil {
			return err
		}
	}
	util.DPrintf(5, "Deallocate: %d sectors, %d nodes\n", nsec, h.numNodes())
	return nil
}
