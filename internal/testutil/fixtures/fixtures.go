// Package fixtures opens real store adapters for tests of the packages above them.
package fixtures

import (
	"path/filepath"
	"testing"

	"github.com/i5heu/geomodel-db/internal/keyValStore"
	"github.com/i5heu/geomodel-db/internal/sqlStore"
	"github.com/i5heu/geomodel-db/internal/testutil"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func OpenSQLite(t *testing.T) store.Backend {
	t.Helper()
	s, err := sqlStore.NewSQLStore(sqlStore.Config{
		Path:   filepath.Join(t.TempDir(), "geometry.db"),
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func OpenBadger(t *testing.T) store.Backend {
	t.Helper()
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:             []string{t.TempDir()},
		CompressThreshold: 512,
		Logger:            quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

// Backends names every adapter, so tests can run once per adapter with t.Run.
func Backends() map[string]testutil.OpenFunc {
	return map[string]testutil.OpenFunc{
		"sqlite": OpenSQLite,
		"badger": OpenBadger,
	}
}

// ForEachBackend runs fn as a subtest against a fresh store of every adapter.
func ForEachBackend(t *testing.T, fn func(t *testing.T, open testutil.OpenFunc)) {
	for _, name := range []string{"sqlite", "badger"} {
		open := Backends()[name]
		t.Run(name, func(t *testing.T) { fn(t, open) })
	}
}
