package filehdr

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
)

// indexNode is one sector of data-sector numbers. Nodes are read and written
// per operation and never cached.
type indexNode struct {
	sectors []common.Snum // NumSecond slots
}

func mkIndexNode(geom common.Geometry) *indexNode {
	return &indexNode{sectors: make([]common.Snum, geom.NumSecond)}
}

func readIndexNode(d disk.Disk, geom common.Geometry, s common.Snum) (*indexNode, error) {
	b, err := d.Read(uint64(s))
	if err != nil {
		return nil, fmt.Errorf("index node %d: %w", s, err)
	}
	dec := marshal.NewDec(b)
	n := mkIndexNode(geom)
	for i := range n.sectors {
		n.sectors[i] = dec.GetInt32()
	}
	return n, nil
}

func (n *indexNode) writeTo(d disk.Disk, geom common.Geometry, s common.Snum) error {
	enc := marshal.NewEnc(geom.SectorSize)
	for _, x := range n.sectors {
		enc.PutInt32(x)
	}
	if err := d.Write(uint64(s), enc.Finish()); err != nil {
		return fmt.Errorf("index node %d: %w", s, err)
	}
	return nil
}
