// geodump inspects a geometry store: its tables, rows, statistics, published nodes and
// the volume tree.
package main

import (
	"context"
	"fmt"
	"os"

	geomodeldb "github.com/i5heu/geomodel-db"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitSuccess = 0
	exitError   = 1
)

type options struct {
	path       string
	backend    string
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "geodump",
		Short:         "Inspect a detector geometry store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.path, "store", "s", "", "store path: a sqlite file or a badger directory")
	root.PersistentFlags().StringVarP(&opts.backend, "backend", "b", "", "sqlite or badger (default: guessed from the store path)")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML or TOML settings file instead of --store/--backend")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newTablesCmd(opts),
		newDumpCmd(opts),
		newStatsCmd(opts),
		newPublishedCmd(opts),
		newTreeCmd(opts),
	)
	return root
}

// open opens the store named by the flags. Without --backend a directory is taken to be
// a badger store and anything else a sqlite file.
func (o *options) open() (*geomodeldb.GeoModelDB, error) {
	log, err := logging.NewFromString(o.logLevel, os.Stderr)
	if err != nil {
		return nil, err
	}

	if o.configPath != "" {
		conf, err := geomodeldb.ConfigFromFile(o.configPath)
		if err != nil {
			return nil, err
		}
		conf.Logger = log
		return geomodeldb.Open(conf)
	}

	if o.path == "" {
		return nil, fmt.Errorf("either --store or --config is required")
	}
	info, err := os.Stat(o.path)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", o.path, err)
	}
	backend := store.Kind(o.backend)
	if backend == "" {
		backend = store.SQLite
		if info.IsDir() {
			backend = store.Badger
		}
	}
	return geomodeldb.Open(geomodeldb.Config{
		Paths:   []string{o.path},
		Backend: backend,
		Logger:  log,
	})
}

func withDB(o *options, fn func(cmd *cobra.Command, args []string, db *geomodeldb.GeoModelDB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := o.open()
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Logger.WithError(err).Warn("closing store")
			}
		}()
		return fn(cmd, args, db)
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logging.Logger.WithFields(logrus.Fields{"error": err.Error()}).Error("geodump failed")
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
