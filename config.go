package geomodeldb

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/i5heu/geomodel-db/internal/config"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Config configures a store. Only Paths[0] is used: the database file for sqlite, the
// data directory for badger.
type Config struct {
	Paths   []string   `validate:"required_unless=InMemory true,dive,required"`
	Backend store.Kind `validate:"required,oneof=sqlite badger"`
	// InMemory keeps the store in memory; nothing survives Close.
	InMemory bool
	// MinimumFreeGB is the free space badger requires on the data directory.
	MinimumFreeGB int `validate:"gte=0"`
	// CompressThreshold is the encoded row size from which badger rows are lzma
	// compressed. 0 disables compression.
	CompressThreshold int `validate:"gte=0"`
	// Logger is optional. If nil, the package logger of pkg/logging is used.
	Logger *logrus.Logger
	// MetricsRegisterer receives the writer and reader collectors. If nil they stay
	// unregistered.
	MetricsRegisterer prometheus.Registerer
}

var validate = validator.New()

func (c Config) Validate() error {
	return validate.Struct(c)
}

// ConfigFromFile loads a YAML or TOML settings file. The logger writes to stderr at the
// level named in the file.
func ConfigFromFile(path string) (Config, error) {
	file, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	log, err := logging.NewFromString(file.LogLevel, os.Stderr)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Paths:             file.Paths,
		Backend:           store.Kind(file.Backend),
		InMemory:          file.InMemory,
		MinimumFreeGB:     file.MinimumFreeGB,
		CompressThreshold: file.CompressThreshold,
		Logger:            log,
	}, nil
}
