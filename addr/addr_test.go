package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tchajed/goose/machine/disk"
)

func TestMkBitAddr(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(MkAddr(3, 5), MkBitAddr(3, 5, 1024))
	assert.Equal(MkAddr(4, 0), MkBitAddr(3, 1024, 1024))
	assert.Equal(MkAddr(5, 1), MkBitAddr(3, 2049, 1024))
}

func TestMkSectorAddr(t *testing.T) {
	assert := assert.New(t)
	// 32 sectors of 128 bytes per 4096-byte block
	assert.Equal(MkAddr(0, 0), MkSectorAddr(0, 128))
	assert.Equal(MkAddr(0, 31*128*8), MkSectorAddr(31, 128))
	assert.Equal(MkAddr(1, 0), MkSectorAddr(32, 128))
	assert.Equal(MkAddr(2, 0), MkSectorAddr(2, disk.BlockSize))
}
