// Package config loads a volume's configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	gdisk "github.com/tchajed/goose/machine/disk"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/disk"
	"github.com/mit-pdos/go-filehdr/util"
)

const (
	BackendMem   = "mem"
	BackendFile  = "file"
	BackendBlock = "block"

	DefaultSectorSize uint64 = 128
	DefaultSectors    uint64 = 1024
)

var ErrBackend = errors.New("unknown disk backend")

type Config struct {
	Disk struct {
		Path    string `yaml:"path"`
		Backend string `yaml:"backend"`
		Sectors uint64 `yaml:"sectors"`
	} `yaml:"disk"`
	Geometry struct {
		SectorSize uint64 `yaml:"sector_size"`
		NumFirst   uint64 `yaml:"num_first"`
		NumSecond  uint64 `yaml:"num_second"`
	} `yaml:"geometry"`
	Debug uint64 `yaml:"debug"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.fill()
	return cfg
}

// Load reads the YAML file at path. An empty path yields the defaults. In
// both cases FILEHDR_DISK and FILEHDR_DEBUG override the disk path and the
// debug level.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		ya, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(ya, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	cfg.fill()
	if _, err := cfg.Geom(); err != nil {
		return nil, err
	}
	util.Debug = cfg.Debug
	return cfg, nil
}

func (cfg *Config) overrideFromEnv() error {
	if value := os.Getenv("FILEHDR_DISK"); value != "" {
		cfg.Disk.Path = value
	}
	if value := os.Getenv("FILEHDR_DEBUG"); value != "" {
		level, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("FILEHDR_DEBUG: %w", err)
		}
		cfg.Debug = level
	}
	return nil
}

func (cfg *Config) fill() {
	if cfg.Disk.Backend == "" {
		if cfg.Disk.Path == "" {
			cfg.Disk.Backend = BackendMem
		} else {
			cfg.Disk.Backend = BackendFile
		}
	}
	if cfg.Disk.Sectors == 0 {
		cfg.Disk.Sectors = DefaultSectors
	}
	g := &cfg.Geometry
	if g.SectorSize == 0 {
		g.SectorSize = DefaultSectorSize
	}
	def := common.DefaultGeometry(g.SectorSize)
	if g.NumFirst == 0 {
		g.NumFirst = def.NumFirst
	}
	if g.NumSecond == 0 {
		g.NumSecond = def.NumSecond
	}
}

func (cfg *Config) Geom() (common.Geometry, error) {
	g := common.Geometry{
		SectorSize: cfg.Geometry.SectorSize,
		NumFirst:   cfg.Geometry.NumFirst,
		NumSecond:  cfg.Geometry.NumSecond,
	}
	return g, g.Validate()
}

// OpenDisk opens the configured backend. The block backend packs sectors
// into an in-memory goose disk of 4096-byte blocks.
func (cfg *Config) OpenDisk() (disk.Disk, error) {
	ss := cfg.Geometry.SectorSize
	n := cfg.Disk.Sectors
	switch cfg.Disk.Backend {
	case BackendMem:
		return disk.NewMemDisk(ss, n), nil
	case BackendFile:
		if cfg.Disk.Path == "" {
			return nil, fmt.Errorf("%w: file backend needs disk.path", ErrBackend)
		}
		d, err := disk.NewFileDisk(cfg.Disk.Path, ss, n)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendBlock:
		nblk := util.RoundUp(n*ss, gdisk.BlockSize)
		d, err := disk.NewBlockDisk(gdisk.NewMemDisk(nblk), ss)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBackend, cfg.Disk.Backend)
	}
}
