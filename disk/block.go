package disk

import (
	"fmt"
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-filehdr/addr"
	"github.com/mit-pdos/go-filehdr/buf"
	"github.com/mit-pdos/go-filehdr/util"
)

var _ Disk = (*BlockDisk)(nil)

// BlockDisk presents a goose block disk as a disk of smaller sectors, packing
// BlockSize/sectorSize sectors into every block.
//
// Writing a sector is a read-modify-write of its block, so writes are
// serialized.
type BlockDisk struct {
	mu         *sync.Mutex
	d          gdisk.Disk
	sectorSize uint64
}

func NewBlockDisk(d gdisk.Disk, sectorSize uint64) (*BlockDisk, error) {
	if sectorSize == 0 || gdisk.BlockSize%sectorSize != 0 {
		return nil, fmt.Errorf("sector size %d does not divide block size %d",
			sectorSize, gdisk.BlockSize)
	}
	return &BlockDisk{mu: new(sync.Mutex), d: d, sectorSize: sectorSize}, nil
}

func (d *BlockDisk) SectorSize() uint64 {
	return d.sectorSize
}

func (d *BlockDisk) locate(a uint64) (addr.Addr, error) {
	n, _ := d.Size()
	if a >= n {
		return addr.Addr{}, ErrOutOfBounds
	}
	return addr.MkSectorAddr(a, d.sectorSize), nil
}

func (d *BlockDisk) ReadTo(a uint64, b Sector) error {
	checkSize(b, d.sectorSize)
	ad, err := d.locate(a)
	if err != nil {
		return fmt.Errorf("%w: read at %v", err, a)
	}
	d.mu.Lock()
	blk := d.d.Read(ad.Blkno)
	d.mu.Unlock()
	bf := buf.MkBufLoad(ad, d.sectorSize, blk)
	copy(b, bf.Data)
	return nil
}

func (d *BlockDisk) Read(a uint64) (Sector, error) {
	b := make(Sector, d.sectorSize)
	err := d.ReadTo(a, b)
	return b, err
}

func (d *BlockDisk) Write(a uint64, v Sector) error {
	checkSize(v, d.sectorSize)
	ad, err := d.locate(a)
	if err != nil {
		return fmt.Errorf("%w: write at %v", err, a)
	}
	bf := buf.MkBuf(ad, v)
	d.mu.Lock()
	defer d.mu.Unlock()
	blk := d.d.Read(ad.Blkno)
	if bf.Install(blk) {
		d.d.Write(ad.Blkno, blk)
	}
	util.DPrintf(20, "BlockDisk: sector %d -> block %d\n", a, ad.Blkno)
	return nil
}

func (d *BlockDisk) Size() (uint64, error) {
	return d.d.Size() * (gdisk.BlockSize / d.sectorSize), nil
}

func (d *BlockDisk) Barrier() error {
	d.d.Barrier()
	return nil
}

func (d *BlockDisk) Close() error {
	d.d.Close()
	return nil
}
