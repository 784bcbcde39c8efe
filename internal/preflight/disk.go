package preflight

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/amanbib/internal/config"
)

// MinDiskSpaceBytes is the floor required on every volume the index or
// the extraction cache is written to, whatever the estimate.
const MinDiskSpaceBytes = 64 << 20

// Per-file estimates. Page text dominates both stores.
const (
	indexBaseBytes   = 16 << 20
	indexBytesPerPDF = 2 << 20
	cacheBytesPerPDF = 1 << 20
)

// storageTarget is a location amanbib writes to with its estimated size.
type storageTarget struct {
	name string
	dir  string
	need uint64
}

// volume is one filesystem holding one or more targets.
type volume struct {
	dir   string
	names []string
	need  uint64
	free  uint64
}

// statFunc reports the device and free bytes of the filesystem at dir.
type statFunc func(dir string) (dev, free uint64, err error)

// storageTargets lists the on-disk stores for the library at libraryPath
// and how much each needs for pdfs linked files.
func storageTargets(libraryPath string, cfg *config.Config, pdfs int) []storageTarget {
	libDir := filepath.Dir(libraryPath)
	if !cfg.Index.IndexPDFs {
		pdfs = 0
	}

	var targets []storageTarget
	if p := cfg.IndexPathFor(libraryPath); p != "" {
		targets = append(targets, storageTarget{
			name: "index",
			dir:  writableDir(p, libDir),
			need: indexBaseBytes + uint64(pdfs)*indexBytesPerPDF,
		})
	}
	if p := cfg.CachePathFor(libraryPath); p != "" && cfg.Index.IndexPDFs {
		targets = append(targets, storageTarget{
			name: "extraction cache",
			dir:  writableDir(p, libDir),
			need: uint64(pdfs) * cacheBytesPerPDF,
		})
	}
	return targets
}

// groupVolumes merges targets that live on the same device, summing what
// they need.
func groupVolumes(targets []storageTarget, stat statFunc) ([]*volume, error) {
	byDev := make(map[uint64]*volume)
	var vols []*volume
	for _, t := range targets {
		dev, free, err := stat(t.dir)
		if err != nil {
			return nil, fmt.Errorf("%s at %s: %w", t.name, t.dir, err)
		}
		v, ok := byDev[dev]
		if !ok {
			v = &volume{dir: t.dir, free: free}
			byDev[dev] = v
			vols = append(vols, v)
		}
		v.names = append(v.names, t.name)
		v.need += t.need
	}
	for _, v := range vols {
		v.need = max(v.need, MinDiskSpaceBytes)
	}
	return vols, nil
}

func statVolume(dir string) (dev, free uint64, err error) {
	var st syscall.Stat_t
	if err := syscall.Stat(dir, &st); err != nil {
		return 0, 0, err
	}
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return 0, 0, err
	}
	return uint64(st.Dev), fs.Bavail * uint64(fs.Bsize), nil
}

// CheckDiskSpace checks that each volume holding the index or the
// extraction cache has room for them, estimated from pdfs linked files.
func (c *Checker) CheckDiskSpace(libraryPath string, cfg *config.Config, pdfs int) CheckResult {
	return diskSpaceResult(storageTargets(libraryPath, cfg, pdfs), statVolume)
}

func diskSpaceResult(targets []storageTarget, stat statFunc) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	if len(targets) == 0 {
		result.Status = StatusPass
		result.Message = "in-memory index, nothing written to disk"
		return result
	}

	vols, err := groupVolumes(targets, stat)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	var lines, short []string
	for _, v := range vols {
		line := fmt.Sprintf("%s: %s free, needs about %s (%s)",
			strings.Join(v.names, " + "), humanize.IBytes(v.free), humanize.IBytes(v.need), v.dir)
		lines = append(lines, line)
		if v.free < v.need {
			short = append(short, line)
		}
	}
	result.Details = strings.Join(lines, "\n")

	if len(short) > 0 {
		result.Status = StatusFail
		result.Message = short[0]
		result.Details += "\nSet index.path or cache.path to a larger volume, or free up space"
		return result
	}
	result.Status = StatusPass
	result.Message = lines[0]
	if len(lines) > 1 {
		result.Message = fmt.Sprintf("%d volumes with enough space", len(lines))
	}
	return result
}
