package volume

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/filehdr"
)

var errWrite = errors.New("write failed")

// failDisk fails every write.
type failDisk struct {
	disk.Disk
}

func (d *failDisk) Write(a uint64, v disk.Sector) error {
	return errWrite
}

var testGeom = common.Geometry{SectorSize: 128, NumFirst: 4, NumSecond: 32}

func mkData(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%97)
	}
	return b
}

func mkVol(t *testing.T, nsec uint64) (*Volume, disk.Disk) {
	d := disk.NewMemDisk(testGeom.SectorSize, nsec)
	v, err := Format(d, testGeom)
	require.NoError(t, err)
	return v, d
}

func TestFormatOpen(t *testing.T) {
	v, d := mkVol(t, 1024)
	sb := v.Super()
	assert.Equal(t, uint64(1), sb.BitmapStart)
	assert.Equal(t, uint64(1), sb.BitmapLen)
	assert.Equal(t, uint64(1022), v.NumFree())

	v2, err := Open(d)
	require.NoError(t, err)
	assert.Equal(t, sb, v2.Super())
	assert.Equal(t, v.NumFree(), v2.NumFree())
}

func TestOpenUnformatted(t *testing.T) {
	d := disk.NewMemDisk(128, 64)
	_, err := Open(d)
	assert.True(t, errors.Is(err, ErrBadMagic))
}

func TestFormatBadGeometry(t *testing.T) {
	d := disk.NewMemDisk(256, 64)
	_, err := Format(d, testGeom)
	assert.True(t, errors.Is(err, common.ErrBadGeometry))

	d = disk.NewMemDisk(128, 2)
	_, err = Format(d, testGeom)
	assert.True(t, errors.Is(err, common.ErrBadGeometry))
}

func TestReadWrite(t *testing.T) {
	v, _ := mkVol(t, 1024)
	hdr, err := v.Create(0)
	require.NoError(t, err)

	n, err := v.WriteAt(hdr, []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	length, err := v.Length(hdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), length)

	p := make([]byte, 5)
	n, err = v.ReadAt(hdr, p, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(p))

	_, err = v.WriteAt(hdr, []byte("J"), 0)
	require.NoError(t, err)
	_, err = v.ReadAt(hdr, p, 0)
	require.NoError(t, err)
	assert.Equal(t, "Jello", string(p))
}

func TestWriteGrowsToIndexed(t *testing.T) {
	v, _ := mkVol(t, 1024)
	hdr, err := v.Create(0)
	require.NoError(t, err)

	data := mkData(1000, 'a')
	_, err = v.WriteAt(hdr, data, 0)
	require.NoError(t, err)
	// 8 data sectors, one index node, the header
	assert.Equal(t, uint64(1022-10), v.NumFree())

	p := make([]byte, 1000)
	n, err := v.ReadAt(hdr, p, 0)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, data, p)

	r, err := v.Check([]common.Snum{hdr})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.Files)
	assert.Equal(t, uint64(10), r.Owned)
	assert.Empty(t, r.Leaked)
}

func TestWriteAtGapReadsZero(t *testing.T) {
	v, _ := mkVol(t, 1024)
	hdr, err := v.Create(0)
	require.NoError(t, err)

	_, err = v.WriteAt(hdr, []byte("x"), 300)
	require.NoError(t, err)
	p := make([]byte, 301)
	_, err = v.ReadAt(hdr, p, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 300), p[:300])
	assert.Equal(t, byte('x'), p[300])
}

func TestReadAtEOF(t *testing.T) {
	v, _ := mkVol(t, 1024)
	hdr, err := v.Create(0)
	require.NoError(t, err)
	_, err = v.WriteAt(hdr, []byte("abcdef"), 0)
	require.NoError(t, err)

	p := make([]byte, 4)
	n, err := v.ReadAt(hdr, p, 4)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ef", string(p[:n]))

	n, err = v.ReadAt(hdr, p, 6)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func TestRemove(t *testing.T) {
	v, _ := mkVol(t, 1024)
	free := v.NumFree()
	hdr, err := v.Create(2000)
	require.NoError(t, err)
	assert.Less(t, v.NumFree(), free)

	require.NoError(t, v.Remove(hdr))
	assert.Equal(t, free, v.NumFree())

	r, err := v.Check(nil)
	require.NoError(t, err)
	assert.Empty(t, r.Leaked)
}

func TestPersist(t *testing.T) {
	v, d := mkVol(t, 1024)
	hdr, err := v.Create(0)
	require.NoError(t, err)
	data := mkData(700, '0')
	_, err = v.WriteAt(hdr, data, 0)
	require.NoError(t, err)
	free := v.NumFree()

	v2, err := Open(d)
	require.NoError(t, err)
	assert.Equal(t, free, v2.NumFree())
	p := make([]byte, 700)
	_, err = v2.ReadAt(hdr, p, 0)
	require.NoError(t, err)
	assert.Equal(t, data, p)

	r, err := v2.Check([]common.Snum{hdr})
	require.NoError(t, err)
	assert.Empty(t, r.Leaked)
}

func TestCheckLeak(t *testing.T) {
	v, _ := mkVol(t, 1024)
	a, err := v.Create(100)
	require.NoError(t, err)
	b, err := v.Create(100)
	require.NoError(t, err)

	r, err := v.Check([]common.Snum{a})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.Files)
	assert.Equal(t, uint64(2), r.Owned)
	assert.Len(t, r.Leaked, 2)
	assert.Contains(t, r.Leaked, b)
}

func TestCheckOwnedTwice(t *testing.T) {
	v, _ := mkVol(t, 1024)
	a, err := v.Create(100)
	require.NoError(t, err)

	_, err = v.Check([]common.Snum{a, a})
	assert.True(t, errors.Is(err, filehdr.ErrInconsistent))
}

func TestExtendNoSpace(t *testing.T) {
	v, _ := mkVol(t, 16)
	hdr, err := v.Create(0)
	require.NoError(t, err)
	free := v.NumFree()

	err = v.Extend(hdr, 20*testGeom.SectorSize)
	assert.True(t, errors.Is(err, filehdr.ErrNoSpace))
	assert.Equal(t, free, v.NumFree())
	length, err := v.Length(hdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), length)
}

func TestCreateNoSpace(t *testing.T) {
	v, _ := mkVol(t, 16)
	free := v.NumFree()
	_, err := v.Create(20 * testGeom.SectorSize)
	assert.True(t, errors.Is(err, filehdr.ErrNoSpace))
	assert.Equal(t, free, v.NumFree())
}

func TestNotAFile(t *testing.T) {
	v, _ := mkVol(t, 64)
	_, err := v.Length(0)
	assert.True(t, errors.Is(err, disk.ErrOutOfBounds))
	_, err = v.Length(64)
	assert.True(t, errors.Is(err, disk.ErrOutOfBounds))
}

func TestDump(t *testing.T) {
	v, _ := mkVol(t, 64)
	hdr, err := v.Create(0)
	require.NoError(t, err)
	_, err = v.WriteAt(hdr, []byte("hi\n"), 0)
	require.NoError(t, err)

	var b bytes.Buffer
	require.NoError(t, v.Dump(hdr, &b))
	assert.Contains(t, b.String(), "File size: 3.")
	assert.Contains(t, b.String(), "File contents:\nhi\\a\n")
}

func TestConcurrentWriters(t *testing.T) {
	v, _ := mkVol(t, 1024)
	const nfile = 8
	hdrs := make([]common.Snum, nfile)
	var wg sync.WaitGroup
	for i := 0; i < nfile; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hdr, err := v.Create(0)
			assert.NoError(t, err)
			hdrs[i] = hdr
			for off := 0; off < 900; off += 100 {
				_, err := v.WriteAt(hdr, mkData(100, byte(i)), uint64(off))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i, hdr := range hdrs {
		p := make([]byte, 100)
		_, err := v.ReadAt(hdr, p, 800)
		require.NoError(t, err)
		assert.Equal(t, mkData(100, byte(i)), p)
	}
	r, err := v.Check(hdrs)
	require.NoError(t, err)
	assert.Equal(t, uint64(nfile), r.Files)
	assert.Empty(t, r.Leaked)
}

func TestCreateHeaderWriteFails(t *testing.T) {
	v, d := mkVol(t, 64)
	free := v.NumFree()
	used := v.fm.Used()
	v.d = &failDisk{Disk: d}

	_, err := v.Create(100)
	assert.True(t, errors.Is(err, errWrite))
	assert.Equal(t, free, v.NumFree())
	assert.Equal(t, used, v.fm.Used())
}

func TestCreateLocksHeader(t *testing.T) {
	v, _ := mkVol(t, 64)
	// the first header goes in the first sector after the free map
	sb := v.Super()
	first := common.Snum(sb.DataStart())
	v.locks.Acquire(first)

	done := make(chan common.Snum)
	go func() {
		hdr, err := v.Create(0)
		assert.NoError(t, err)
		done <- hdr
	}()
	select {
	case <-done:
		t.Fatal("Create finished while its header sector was locked")
	case <-time.After(50 * time.Millisecond):
	}
	v.locks.Release(first)
	assert.Equal(t, first, <-done)
	assert.False(t, v.locks.Held(first))
}
