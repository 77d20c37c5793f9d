package keyValStore

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

const gigabyte = 1 << 30

// diskReport describes the filesystem holding a store directory.
type diskReport struct {
	Path       string
	Device     string
	MountPoint string
	Total      uint64
	Used       uint64
	Free       uint64
	StoreBytes int64
}

func (r diskReport) FreeGB() uint64 {
	return r.Free / gigabyte
}

// inspectDisk reads the usage of the filesystem under path and the bytes already taken
// by the store files. The device lookup is best effort and stays empty inside some
// containers.
func inspectDisk(path string) (diskReport, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return diskReport{}, fmt.Errorf("reading disk usage of %s: %w", path, err)
	}
	r := diskReport{Path: path, Total: usage.Total, Used: usage.Used, Free: usage.Free}
	r.Device, r.MountPoint = mountOf(path)

	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		r.StoreBytes += info.Size()
		return nil
	})
	if err != nil {
		return diskReport{}, fmt.Errorf("sizing store files in %s: %w", path, err)
	}
	return r, nil
}

// mountOf picks the partition with the longest mount point that contains path.
func mountOf(path string) (device, mountPoint string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ""
	}
	partitions, err := disk.Partitions(true)
	if err != nil {
		return "", ""
	}
	for _, p := range partitions {
		if p.Mountpoint == "" || !strings.HasPrefix(abs, p.Mountpoint) || len(p.Mountpoint) <= len(mountPoint) {
			continue
		}
		device, mountPoint = p.Device, p.Mountpoint
	}
	return device, mountPoint
}

func (r diskReport) log(log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"path":       r.Path,
		"device":     r.Device,
		"mountPoint": r.MountPoint,
		"total":      humanize.Bytes(r.Total),
		"used":       humanize.Bytes(r.Used),
		"free":       humanize.Bytes(r.Free),
		"store":      humanize.Bytes(uint64(r.StoreBytes)),
	}).Debug("badger store disk usage")
}
