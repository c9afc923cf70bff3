package volume

import (
	"fmt"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/filehdr"
)

// Report summarizes a consistency check.
type Report struct {
	Files  uint64
	Owned  uint64        // sectors reachable from a header, headers included
	Leaked []common.Snum // marked used but reachable from nothing
}

// Check walks the headers in hdrs and compares the sectors they own with the
// free map. A sector owned twice or owned but free is an error; sectors marked
// used that nothing owns are reported as leaked.
func (v *Volume) Check(hdrs []common.Snum) (*Report, error) {
	owned := treeset.NewWith(utils.UInt32Comparator)
	for s := uint64(0); s < v.sb.DataStart(); s++ {
		owned.Add(common.Snum(s))
	}
	claim := func(hdr common.Snum, s common.Snum) error {
		if owned.Contains(s) {
			return fmt.Errorf("%w: sector %d of file %d is owned twice",
				filehdr.ErrInconsistent, s, hdr)
		}
		owned.Add(s)
		return nil
	}

	r := &Report{}
	for _, hdr := range hdrs {
		v.locks.Acquire(hdr)
		h, err := v.load(hdr)
		if err == nil {
			err = v.checkFile(h, hdr, claim)
		}
		v.locks.Release(hdr)
		if err != nil {
			return nil, err
		}
		r.Files++
	}
	r.Owned = uint64(owned.Size()) - v.sb.DataStart()

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, x := range owned.Values() {
		s := x.(common.Snum)
		if !v.fm.Test(s) {
			return nil, fmt.Errorf("%w: sector %d is owned but free",
				filehdr.ErrInconsistent, s)
		}
	}
	for _, s := range v.fm.Used() {
		if !owned.Contains(s) {
			r.Leaked = append(r.Leaked, s)
		}
	}
	return r, nil
}

func (v *Volume) checkFile(h *filehdr.FileHeader, hdr common.Snum,
	claim func(common.Snum, common.Snum) error) error {
	if err := claim(hdr, hdr); err != nil {
		return err
	}
	for _, s := range h.IndexSectors() {
		if err := claim(hdr, s); err != nil {
			return err
		}
	}
	data, err := h.DataSectors(v.d)
	if err != nil {
		return err
	}
	for _, s := range data {
		if uint64(s) >= v.sb.NumSectors {
			return fmt.Errorf("%w: sector %d of file %d is past the end",
				filehdr.ErrCorrupt, s, hdr)
		}
		if err := claim(hdr, s); err != nil {
			return err
		}
	}
	return nil
}
