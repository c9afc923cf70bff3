package config

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/util"
)

func writeConfig(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "volume.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(text), 0644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"FILEHDR_DISK", "FILEHDR_DEBUG"} {
		k := k
		old, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		if ok {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
	t.Cleanup(func() { util.Debug = 0 })
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendMem, cfg.Disk.Backend)
	assert.Equal(t, DefaultSectors, cfg.Disk.Sectors)
	g, err := cfg.Geom()
	require.NoError(t, err)
	assert.Equal(t, common.DefaultGeometry(DefaultSectorSize), g)
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
disk:
  path: /tmp/vol.img
  sectors: 256
geometry:
  sector_size: 128
  num_first: 4
  num_second: 32
debug: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vol.img", cfg.Disk.Path)
	assert.Equal(t, BackendFile, cfg.Disk.Backend)
	assert.Equal(t, uint64(256), cfg.Disk.Sectors)
	g, err := cfg.Geom()
	require.NoError(t, err)
	assert.Equal(t, common.Geometry{SectorSize: 128, NumFirst: 4, NumSecond: 32}, g)
	assert.Equal(t, uint64(3), util.Debug)
}

func TestLoadPartialGeometry(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "geometry:\n  sector_size: 256\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	g, err := cfg.Geom()
	require.NoError(t, err)
	assert.Equal(t, common.DefaultGeometry(256), g)
}

func TestLoadBadGeometry(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "geometry:\n  sector_size: 128\n  num_first: 100\n")
	_, err := Load(path)
	assert.True(t, errors.Is(err, common.ErrBadGeometry))
}

func TestLoadBadYaml(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "disk: [")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("FILEHDR_DISK", "/tmp/other.img")
	os.Setenv("FILEHDR_DEBUG", "5")
	defer os.Unsetenv("FILEHDR_DISK")
	defer os.Unsetenv("FILEHDR_DEBUG")

	cfg, err := Load(writeConfig(t, "disk:\n  path: /tmp/vol.img\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.img", cfg.Disk.Path)
	assert.Equal(t, uint64(5), cfg.Debug)
	assert.Equal(t, uint64(5), util.Debug)

	os.Setenv("FILEHDR_DEBUG", "lots")
	_, err = Load("")
	assert.Error(t, err)
}

func TestOpenDisk(t *testing.T) {
	cfg := Default()
	d, err := cfg.OpenDisk()
	require.NoError(t, err)
	assert.Equal(t, DefaultSectorSize, d.SectorSize())

	cfg.Disk.Backend = BackendBlock
	d, err = cfg.OpenDisk()
	require.NoError(t, err)
	n, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, DefaultSectors, n)

	cfg.Disk.Backend = BackendFile
	cfg.Disk.Path = filepath.Join(t.TempDir(), "vol.img")
	d, err = cfg.OpenDisk()
	require.NoError(t, err)
	assert.NoError(t, d.Close())

	cfg.Disk.Backend = "tape"
	_, err = cfg.OpenDisk()
	assert.True(t, errors.Is(err, ErrBackend))
}
