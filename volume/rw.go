package volume

import (
	"io"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/filehdr"
	"github.com/mit-pdos/go-filehdr/util"
)

// ReadAt reads len(p) bytes of the file starting at off, following
// io.ReaderAt: it returns io.EOF when the file ends before p is full.
func (v *Volume) ReadAt(hdr common.Snum, p []byte, off uint64) (int, error) {
	v.locks.Acquire(hdr)
	defer v.locks.Release(hdr)
	h, err := v.load(hdr)
	if err != nil {
		return 0, err
	}
	length := h.FileLength()
	if off >= length {
		return 0, io.EOF
	}
	want := util.Min(uint64(len(p)), length-off)
	ss := v.sb.Geom.SectorSize
	data := make(disk.Sector, ss)
	var n uint64
	for n < want {
		pos := off + n
		s, err := h.ByteToSector(v.d, pos)
		if err != nil {
			return int(n), err
		}
		if err := v.d.ReadTo(uint64(s), data); err != nil {
			return int(n), err
		}
		n += uint64(copy(p[n:want], data[pos%ss:]))
	}
	if want < uint64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// WriteAt writes p to the file at off, extending the file if the write ends
// past its length. Bytes between the old length and off read as zero.
func (v *Volume) WriteAt(hdr common.Snum, p []byte, off uint64) (int, error) {
	v.locks.Acquire(hdr)
	defer v.locks.Release(hdr)
	h, err := v.load(hdr)
	if err != nil {
		return 0, err
	}
	if util.SumOverflows(off, uint64(len(p))) {
		return 0, filehdr.ErrTooLarge
	}
	length := h.FileLength()
	end := off + uint64(len(p))
	start := off
	buf := p
	if end > length {
		if err := v.extend(h, hdr, end-length); err != nil {
			return 0, err
		}
		if off > length {
			buf = make([]byte, end-length)
			copy(buf[off-length:], p)
			start = length
		}
	}
	if err := v.writeSectors(h, buf, start); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (v *Volume) writeSectors(h *filehdr.FileHeader, p []byte, off uint64) error {
	ss := v.sb.Geom.SectorSize
	var n uint64
	for n < uint64(len(p)) {
		pos := off + n
		s, err := h.ByteToSector(v.d, pos)
		if err != nil {
			return err
		}
		in := pos % ss
		cnt := util.Min(ss-in, uint64(len(p))-n)
		var data disk.Sector
		if cnt == ss {
			data = p[n : n+cnt]
		} else {
			data, err = v.d.Read(uint64(s))
			if err != nil {
				return err
			}
			copy(data[in:], p[n:n+cnt])
		}
		if err := v.d.Write(uint64(s), data); err != nil {
			return err
		}
		n += cnt
	}
	util.DPrintf(10, "writeSectors: %d bytes at %d\n", len(p), off)
	return nil
}
