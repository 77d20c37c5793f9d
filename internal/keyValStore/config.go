package keyValStore

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

type StoreConfig struct {
	Paths             []string // only the first path is used
	MinimumFreeSpace  int      // in GB
	CompressThreshold int      // rows at least this long are lzma compressed, 0 disables
	InMemory          bool     // no files at all, used by tests
	Logger            *logrus.Logger
}

// checkConfig prepares the data directory and returns its disk report. In-memory stores
// have no report.
func (sc *StoreConfig) checkConfig() (*diskReport, error) {
	if sc.InMemory {
		return nil, nil
	}
	if len(sc.Paths) == 0 {
		return nil, errors.New("no path provided in configuration")
	}

	path := sc.Paths[0]
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}
		info, err = os.Stat(path)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}

	report, err := inspectDisk(path)
	if err != nil {
		return nil, err
	}
	if sc.MinimumFreeSpace > 0 && report.FreeGB() < uint64(sc.MinimumFreeSpace) {
		return nil, fmt.Errorf("not enough space available on disk: %d GB free, %d GB required", report.FreeGB(), sc.MinimumFreeSpace)
	}
	return &report, nil
}
