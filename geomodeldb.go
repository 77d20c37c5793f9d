// Package geomodeldb opens a geometry store and writes or reads detector geometry graphs
// through it.
//
//	db, err := geomodeldb.Open(geomodeldb.Config{Paths: []string{"detector.db"}, Backend: store.SQLite})
//	...
//	res, err := db.Write(ctx, g)
//	session, err := db.Read(ctx)
package geomodeldb

import (
	"context"
	"fmt"

	"github.com/i5heu/geomodel-db/internal/keyValStore"
	"github.com/i5heu/geomodel-db/internal/sqlStore"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/metrics"
	"github.com/i5heu/geomodel-db/pkg/reader"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/writer"
	"github.com/sirupsen/logrus"
)

type GeoModelDB struct {
	config  Config
	backend store.Backend
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// Open validates conf and opens the backing store it names.
func Open(conf Config) (*GeoModelDB, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.OrDefault(conf.Logger)

	backend, err := openBackend(conf, log)
	if err != nil {
		return nil, fmt.Errorf("error opening %s store: %w", conf.Backend, err)
	}
	log.WithFields(logrus.Fields{
		"backend":  string(conf.Backend),
		"inMemory": conf.InMemory,
		"path":     firstPath(conf.Paths),
	}).Info("geometry store opened")

	return &GeoModelDB{
		config:  conf,
		backend: backend,
		log:     log,
		metrics: metrics.New(conf.MetricsRegisterer),
	}, nil
}

func firstPath(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func openBackend(conf Config, log *logrus.Logger) (store.Backend, error) {
	switch conf.Backend {
	case store.SQLite:
		path := firstPath(conf.Paths)
		if conf.InMemory {
			path = ":memory:"
		}
		return sqlStore.NewSQLStore(sqlStore.Config{Path: path, Logger: log})
	case store.Badger:
		return keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:             conf.Paths,
			MinimumFreeSpace:  conf.MinimumFreeGB,
			CompressThreshold: conf.CompressThreshold,
			InMemory:          conf.InMemory,
			Logger:            log,
		})
	}
	return nil, fmt.Errorf("unknown backend %q", conf.Backend)
}

// Backend exposes the opened adapter, mainly for inspection tools.
func (db *GeoModelDB) Backend() store.Backend {
	return db.backend
}

// NewWriter returns a writer on this store that logs and counts like the store. Use it
// directly when auxiliary tables or publications have to be added before writing.
func (db *GeoModelDB) NewWriter(opts ...writer.Option) *writer.Writer {
	base := []writer.Option{writer.WithLogger(db.log), writer.WithMetrics(db.metrics)}
	return writer.New(db.backend, append(base, opts...)...)
}

// Write stores g as the only graph of this store.
func (db *GeoModelDB) Write(ctx context.Context, g *geo.Graph) (writer.CommitResult, error) {
	return db.NewWriter().Write(ctx, g)
}

func (db *GeoModelDB) NewReader() *reader.Session {
	return reader.New(db.backend, reader.WithLogger(db.log), reader.WithMetrics(db.metrics))
}

// Read reads the stored graph. The returned session is ready and also gives access to
// the auxiliary tables and published nodes.
func (db *GeoModelDB) Read(ctx context.Context) (*reader.Session, error) {
	s := db.NewReader()
	if _, err := s.Read(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (db *GeoModelDB) Close() error {
	return db.backend.Close()
}
