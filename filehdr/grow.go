package filehdr

import (
	"fmt"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/util"
)

// growthCost is the number of sectors growing from the current sector count
// to nsec claims: the new data sectors, the new index nodes, and one node for
// the switch to the indexed layout.
func (h *FileHeader) growthCost(nsec uint64) uint64 {
	old := uint64(h.numSectors)
	cost := nsec - old
	if !h.useIndex && nsec <= h.geom.NumFirst {
		return cost
	}
	oldNodes := h.numNodes()
	if !h.useIndex {
		oldNodes = 1
		cost += 1
	}
	return cost + numNodes(h.geom, nsec) - oldNodes
}

// AddLength grows the file by extra bytes in place and persists the header to
// hdrSector and, if sectors were claimed, fm to d.
//
// Growth that stays within the last, partially used sector only rewrites the
// header. Growth past NumFirst sectors converts a direct header to the
// indexed layout: the existing data sectors move into the first index node.
//
// If fm cannot supply every sector the growth needs, AddLength returns
// ErrNoSpace and neither h nor fm changes.
func (h *FileHeader) AddLength(d disk.Disk, fm FreeMap, extra uint64, hdrSector common.Snum) error {
	old := uint64(h.numSectors)
	newBytes := uint64(h.numBytes) + extra
	if util.SumOverflows(uint64(h.numBytes), extra) || newBytes > h.geom.MaxBytes() {
		return fmt.Errorf("%w: %d + %d bytes", ErrTooLarge, h.numBytes, extra)
	}
	nsec := util.RoundUp(newBytes, h.geom.SectorSize)
	if nsec == old {
		oldBytes := h.numBytes
		h.numBytes = uint32(newBytes)
		if err := h.WriteBack(d, hdrSector); err != nil {
			h.numBytes = oldBytes
			return err
		}
		return nil
	}

	need := h.growthCost(nsec)
	if fm.NumFree() < need {
		util.DPrintf(3, "AddLength: need %d sectors, %d free\n", need, fm.NumFree())
		return ErrNoSpace
	}

	c := &claims{fm: fm}
	sectors, useIndex, err := h.grow(d, c, nsec)
	if err != nil {
		c.undo()
		return err
	}

	saved := *h
	h.numBytes = uint32(newBytes)
	h.numSectors = uint32(nsec)
	h.useIndex = useIndex
	h.sectors = sectors
	if err := h.WriteBack(d, hdrSector); err != nil {
		*h = saved
		c.undo()
		return err
	}
	util.DPrintf(5, "AddLength: %d -> %d sectors, %d claimed\n", old, nsec, len(c.got))
	return fm.Save(d)
}

// grow claims the sectors for growing to nsec sectors and writes the index
// nodes it touches. It returns the new slot table; h is not modified.
func (h *FileHeader) grow(d disk.Disk, c *claims, nsec uint64) ([]common.Snum, bool, error) {
	old := uint64(h.numSectors)
	sectors := h.Slots()

	if !h.useIndex && nsec <= h.geom.NumFirst {
		err := c.fill(sectors[old:nsec])
		return sectors, false, err
	}

	oldNodes := h.numNodes()
	if !h.useIndex {
		s, err := c.find()
		if err != nil {
			return nil, false, err
		}
		node := mkIndexNode(h.geom)
		copy(node.sectors, sectors[:old])
		if err := node.writeTo(d, h.geom, s); err != nil {
			return nil, false, err
		}
		util.DPrintf(5, "grow: moved %d direct sectors to node %d\n", old, s)
		sectors = make([]common.Snum, h.geom.NumFirst)
		sectors[0] = s
		oldNodes = 1
	}

	// fill the slack in the last existing node
	last := oldNodes - 1
	from := old - last*h.geom.NumSecond
	if from < h.geom.NumSecond {
		node, err := readIndexNode(d, h.geom, sectors[last])
		if err != nil {
			return nil, false, err
		}
		to := nodeFill(h.geom, nsec, last)
		if err := c.fill(node.sectors[from:to]); err != nil {
			return nil, false, err
		}
		if err := node.writeTo(d, h.geom, sectors[last]); err != nil {
			return nil, false, err
		}
	}

	for i := oldNodes; i < numNodes(h.geom, nsec); i++ {
		s, err := c.find()
		if err != nil {
			return nil, false, err
		}
		sectors[i] = s
		node := mkIndexNode(h.geom)
		if err := c.fill(node.sectors[:nodeFill(h.geom, nsec, i)]); err != nil {
			return nil, false, err
		}
		if err := node.writeTo(d, h.geom, s); err != nil {
			return nil, false, err
		}
	}
	return sectors, true, nil
}
