package alloc

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-filehdr/addr"
	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/util"
)

// Alloc uses a bit map to allocate and free sector numbers. Bit 0 of byte 0
// corresponds to sector 0, bit 1 to sector 1, and so on. Sector 0 is never
// handed out, so AllocNum can return it to signal failure.
//
// The bitmap is persisted in nsec consecutive sectors starting at start.
type Alloc struct {
	lock   *sync.Mutex // protects everything below
	start  uint64
	nsec   uint64
	nbit   uint64 // bits per bitmap sector
	max    uint64 // number of sectors tracked
	next   uint64 // first number to try
	nfree  uint64
	bitmap []byte
	dirty  map[uint64]bool // bitmap sectors modified since Save
}

// NumSectors reports how many bitmap sectors a map of max bits needs.
func NumSectors(max uint64, sectorSize uint64) uint64 {
	return util.RoundUp(max, sectorSize*8)
}

// MkAlloc makes an allocator for max sectors whose bitmap lives at
// [start, start+NumSectors(max, sectorSize)).
func MkAlloc(start uint64, max uint64, sectorSize uint64) *Alloc {
	nsec := NumSectors(max, sectorSize)
	a := &Alloc{
		lock:   new(sync.Mutex),
		start:  start,
		nsec:   nsec,
		nbit:   sectorSize * 8,
		max:    max,
		next:   0,
		nfree:  max,
		bitmap: make([]byte, nsec*sectorSize),
		dirty:  make(map[uint64]bool),
	}
	a.markUsed(uint64(common.NULLSNUM))
	return a
}

// MkMaxAlloc makes a memory-only allocator over [0, max).
func MkMaxAlloc(max uint64) *Alloc {
	if max == 0 || max%8 != 0 {
		panic("invalid max, must be positive and divisible by 8")
	}
	a := &Alloc{
		lock:   new(sync.Mutex),
		nbit:   max,
		max:    max,
		nfree:  max,
		bitmap: make([]byte, max/8),
		dirty:  make(map[uint64]bool),
	}
	a.markUsed(uint64(common.NULLSNUM))
	return a
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

func (a *Alloc) isSet(n uint64) bool {
	return a.bitmap[n/8]&(1<<(n%8)) != 0
}

func (a *Alloc) setDirty(n uint64) {
	ad := addr.MkBitAddr(a.start, n, a.nbit)
	a.dirty[ad.Blkno] = true
}

func (a *Alloc) markUsed(n uint64) {
	if n >= a.max {
		panic(fmt.Errorf("markUsed: %d out of range", n))
	}
	if a.isSet(n) {
		return
	}
	a.bitmap[n/8] = a.bitmap[n/8] | (1 << (n % 8))
	a.nfree -= 1
	a.setDirty(n)
}

func (a *Alloc) freeBit(n uint64) {
	if n == 0 || n >= a.max {
		panic(fmt.Errorf("freeBit: %d", n))
	}
	if !a.isSet(n) {
		return
	}
	a.bitmap[n/8] = a.bitmap[n/8] & ^(1 << (n % 8))
	a.nfree += 1
	a.setDirty(n)
}

func (a *Alloc) incNext() uint64 {
	a.next = a.next + 1
	if a.next >= a.max {
		a.next = 0
	}
	return a.next
}

// Returns a free number, marked used, or 0 if there is none
func (a *Alloc) findFreeBit() uint64 {
	if a.nfree == 0 {
		return 0
	}
	num := a.incNext()
	start := num
	for {
		if !a.isSet(num) {
			a.markUsed(num)
			break
		}
		num = a.incNext()
		if num == start {
			return 0
		}
	}
	util.DPrintf(15, "findFreeBit: s %d num %d\n", start, num)
	return num
}

// AllocNum claims a free number, or returns 0 if the map is full.
func (a *Alloc) AllocNum() uint64 {
	a.lock.Lock()
	num := a.findFreeBit()
	a.lock.Unlock()
	return num
}

// MarkUsed claims n whether or not it was free.
func (a *Alloc) MarkUsed(n uint64) {
	a.lock.Lock()
	a.markUsed(n)
	a.lock.Unlock()
}

func (a *Alloc) FreeNum(num uint64) {
	a.lock.Lock()
	a.freeBit(num)
	a.lock.Unlock()
}

func (a *Alloc) NumFree() uint64 {
	a.lock.Lock()
	n := a.nfree
	a.lock.Unlock()
	return n
}

// Find, Test and Clear give the allocator the shape of a sector free map.

func (a *Alloc) Find() common.Snum {
	return common.Snum(a.AllocNum())
}

// Test reports whether s is marked used. Numbers outside the map are never
// used.
func (a *Alloc) Test(s common.Snum) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	n := uint64(s)
	if n >= a.max {
		return false
	}
	return a.isSet(n)
}

func (a *Alloc) Clear(s common.Snum) {
	a.FreeNum(uint64(s))
}

// Load replaces the in-memory bitmap with the one stored on d.
func (a *Alloc) Load(d disk.Disk) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	sz := d.SectorSize()
	for i := uint64(0); i < a.nsec; i++ {
		err := d.ReadTo(a.start+i, a.bitmap[i*sz:(i+1)*sz])
		if err != nil {
			return fmt.Errorf("load free map: %w", err)
		}
	}
	var nused uint64
	for n := uint64(0); n < a.max; n++ {
		if a.isSet(n) {
			nused += 1
		}
	}
	a.nfree = a.max - nused
	a.dirty = make(map[uint64]bool)
	a.markUsed(uint64(common.NULLSNUM))
	util.DPrintf(3, "Load: %d of %d free\n", a.nfree, a.max)
	return nil
}

// Save writes the bitmap sectors modified since the last Load or Save.
func (a *Alloc) Save(d disk.Disk) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	sz := d.SectorSize()
	for i := uint64(0); i < a.nsec; i++ {
		if !a.dirty[a.start+i] {
			continue
		}
		err := d.Write(a.start+i, a.bitmap[i*sz:(i+1)*sz])
		if err != nil {
			return fmt.Errorf("save free map: %w", err)
		}
		delete(a.dirty, a.start+i)
	}
	util.DPrintf(5, "Save: %d of %d free\n", a.nfree, a.max)
	return nil
}

// Used lists every used number, in order.
func (a *Alloc) Used() []common.Snum {
	a.lock.Lock()
	defer a.lock.Unlock()
	var used []common.Snum
	for i, b := range a.bitmap {
		if b == 0 {
			continue
		}
		for bit := uint64(0); bit < 8; bit++ {
			n := uint64(i)*8 + bit
			if n < a.max && a.isSet(n) {
				used = append(used, common.Snum(n))
			}
		}
	}
	return used
}

// NumUsed counts used numbers straight from the bitmap.
func (a *Alloc) NumUsed() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	var n uint64
	for _, b := range a.bitmap {
		n += popCnt(b)
	}
	return n
}
