package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultGeometry(t *testing.T) {
	assert := assert.New(t)
	g := DefaultGeometry(128)
	assert.Equal(uint64(29), g.NumFirst)
	assert.Equal(uint64(32), g.NumSecond)
	assert.Nil(g.Validate())

	g = DefaultGeometry(4096)
	assert.Equal(uint64(1021), g.NumFirst)
	assert.Equal(uint64(1024), g.NumSecond)
	assert.Equal(uint64(1021*1024*4096), g.MaxBytes())

	g = DefaultGeometry(8192)
	assert.Equal(MAXBYTES, g.MaxBytes(), "clamped to a u32 length")
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)
	assert.Nil(Geometry{SectorSize: 128, NumFirst: 4, NumSecond: 32}.Validate())
	bad := []Geometry{
		{SectorSize: 8, NumFirst: 1, NumSecond: 1},
		{SectorSize: 128, NumFirst: 0, NumSecond: 32},
		{SectorSize: 128, NumFirst: 30, NumSecond: 32},
		{SectorSize: 128, NumFirst: 4, NumSecond: 33},
		{SectorSize: 128, NumFirst: 8, NumSecond: 4},
	}
	for _, g := range bad {
		err := g.Validate()
		assert.True(errors.Is(err, ErrBadGeometry), "%+v should be rejected", g)
	}
}

func TestLimits(t *testing.T) {
	g := Geometry{SectorSize: 128, NumFirst: 4, NumSecond: 32}
	assert.Equal(t, uint64(128), g.MaxSectors())
	assert.Equal(t, uint64(128*128), g.MaxBytes())
}
