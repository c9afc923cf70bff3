// Package buf packs sectors into goose disk blocks.
package buf

import (
	"fmt"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-filehdr/addr"
	"github.com/mit-pdos/go-filehdr/util"
)

// A Buf holds one sector's bytes and the place in a block they belong.
type Buf struct {
	Addr  addr.Addr
	Data  []byte
	dirty bool
}

// MkBuf wraps new contents for the sector at a. The buf starts dirty.
func MkBuf(a addr.Addr, data []byte) *Buf {
	return &Buf{Addr: a, Data: data, dirty: true}
}

// MkBufLoad returns the sz bytes of blk that belong to the sector at a.
//
// The buf aliases blk.
func MkBufLoad(a addr.Addr, sz uint64, blk disk.Block) *Buf {
	off := byteOff(a)
	return &Buf{Addr: a, Data: blk[off : off+sz]}
}

func byteOff(a addr.Addr) uint64 {
	if a.Off%8 != 0 {
		panic(fmt.Errorf("buf: sector at bit %d is not byte aligned", a.Off))
	}
	return a.Off / 8
}

// Install copies a dirty buf into blk and reports whether blk changed.
func (b *Buf) Install(blk disk.Block) bool {
	if !b.dirty {
		return false
	}
	util.DPrintf(20, "%v: install %d bytes\n", b.Addr, len(b.Data))
	copy(blk[byteOff(b.Addr):], b.Data)
	b.dirty = false
	return true
}

func (b *Buf) IsDirty() bool {
	return b.dirty
}
