package filehdr

import (
	"bufio"
	"fmt"
	"io"

	"github.com/mit-pdos/go-filehdr/disk"
)

// Print writes the header's size, its sector map (one list for a direct
// header, one line per index node otherwise) and the file's contents to w.
// Printable ASCII is written as is, every other byte as \xx.
func (h *FileHeader) Print(d disk.Disk, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if h.useIndex {
		fmt.Fprintf(bw, "FileHeader contents.  File size: %d.\n", h.numBytes)
		nsec := uint64(h.numSectors)
		for i, s := range h.IndexSectors() {
			node, err := readIndexNode(d, h.geom, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(bw, "First file blocks:%d,second file blocks:", s)
			for _, ds := range node.sectors[:nodeFill(h.geom, nsec, uint64(i))] {
				fmt.Fprintf(bw, "%d ", ds)
			}
			fmt.Fprintf(bw, "\n")
		}
	} else {
		fmt.Fprintf(bw, "FileHeader contents.  File size: %d.  File blocks:", h.numBytes)
		for _, s := range h.sectors[:h.numSectors] {
			fmt.Fprintf(bw, "%d ", s)
		}
		fmt.Fprintf(bw, "\n")
	}

	fmt.Fprintf(bw, "File contents:\n")
	sectors, err := h.DataSectors(d)
	if err != nil {
		return err
	}
	data := make(disk.Sector, h.geom.SectorSize)
	left := uint64(h.numBytes)
	for _, s := range sectors {
		if err := d.ReadTo(uint64(s), data); err != nil {
			return err
		}
		for j := uint64(0); j < h.geom.SectorSize && left > 0; j++ {
			c := data[j]
			if '\040' <= c && c <= '\176' {
				bw.WriteByte(c)
			} else {
				fmt.Fprintf(bw, "\\%x", c)
			}
			left--
		}
		fmt.Fprintf(bw, "\n")
	}
	return bw.Flush()
}
