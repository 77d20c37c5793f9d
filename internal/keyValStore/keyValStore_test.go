package keyValStore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/i5heu/geomodel-db/internal/testutil"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupKeyValStore(t *testing.T, dir string) *KeyValStore {
	t.Helper()
	kvStore, err := NewKeyValStore(StoreConfig{
		Paths:             []string{dir},
		MinimumFreeSpace:  0,
		CompressThreshold: 256,
	})
	if err != nil {
		t.Fatalf("Failed to create KeyValStore: %v", err)
	}
	t.Cleanup(func() { kvStore.Close() })
	return kvStore
}

func TestKeyValStore_Backend(t *testing.T) {
	testutil.RunBackendSuite(t, func(t *testing.T) store.Backend {
		return setupKeyValStore(t, t.TempDir())
	})
}

func TestKeyValStore_InMemory(t *testing.T) {
	testutil.RunBackendSuite(t, func(t *testing.T) store.Backend {
		kv, err := NewKeyValStore(StoreConfig{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { kv.Close() })
		return kv
	})
}

var shapes = types.TableDef{Name: "Shapes", Columns: []types.Column{
	{Name: "id", Type: types.LongInteger},
	{Name: "params", Type: types.String},
}}

func TestKeyValStore_ReopenAndCompression(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	long := strings.Repeat("12.5;", 400)

	kv, err := NewKeyValStore(StoreConfig{Paths: []string{dir}, CompressThreshold: 256})
	require.NoError(t, err)
	tx, err := kv.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, shapes))
	require.NoError(t, tx.Insert(ctx, "Shapes",
		types.Row{types.Long(1), types.Str(long)},
		types.Row{types.Long(2), types.Str("1;2")},
	))
	require.NoError(t, tx.Commit())
	require.NoError(t, kv.Close())

	kv = setupKeyValStore(t, dir)
	rows, err := kv.Scan(ctx, "Shapes")
	require.NoError(t, err)
	testutil.AssertRowsEqual(t, []types.Row{
		{types.Long(1), types.Str(long)},
		{types.Long(2), types.Str("1;2")},
	}, rows)
}

func TestKeyValStore_RollbackLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	kv := setupKeyValStore(t, t.TempDir())

	tx, err := kv.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, shapes))
	require.NoError(t, tx.Insert(ctx, "Shapes", types.Row{types.Long(1), types.Str("1")}))
	require.NoError(t, tx.Rollback())

	count := 0
	err = kv.badgerDB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: rowPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count, "staged rows survived the rollback")

	// rows of an abandoned generation are never read, even before they are dropped
	tx, err = kv.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, shapes))
	require.NoError(t, tx.Insert(ctx, "Shapes", types.Row{types.Long(7), types.Str("7")}))
	require.NoError(t, tx.Commit())
	rows, err := kv.Scan(ctx, "Shapes")
	require.NoError(t, err)
	testutil.AssertRowsEqual(t, []types.Row{{types.Long(7), types.Str("7")}}, rows)
}

func TestCatalogEncoding(t *testing.T) {
	entry := catalogEntry{generation: 42, def: shapes}
	back, err := decodeCatalog(encodeCatalog(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, back)

	_, err = decodeCatalog([]byte{1, 2})
	assert.Error(t, err)
}

func TestConfig_MissingPath(t *testing.T) {
	_, err := NewKeyValStore(StoreConfig{})
	assert.Error(t, err)
}

func TestStoreConfig_CheckConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	sc := StoreConfig{Paths: []string{dir}}
	report, err := sc.checkConfig()
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, report.Path)
	assert.Greater(t, report.Total, uint64(0))
	assert.Zero(t, report.StoreBytes)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "000001.vlog"), make([]byte, 4096), 0o600))
	report, err = sc.checkConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), report.StoreBytes)

	sc.MinimumFreeSpace = 1 << 30
	_, err = sc.checkConfig()
	assert.ErrorContains(t, err, "not enough space")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = (&StoreConfig{Paths: []string{file}}).checkConfig()
	assert.ErrorContains(t, err, "not a directory")

	report, err = (&StoreConfig{InMemory: true}).checkConfig()
	assert.NoError(t, err)
	assert.Nil(t, report)
}

func TestKeyValStore_DefaultLogger(t *testing.T) {
	kv, err := NewKeyValStore(StoreConfig{InMemory: true})
	require.NoError(t, err)
	defer kv.Close()
	assert.Same(t, logging.Logger, kv.log)
}
