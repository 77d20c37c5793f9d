package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	geomodeldb "github.com/i5heu/geomodel-db"
	"github.com/i5heu/geomodel-db/internal/testutil/fixtures"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detector.db")
	db, err := geomodeldb.Open(geomodeldb.Config{
		Paths:   []string{path},
		Backend: store.SQLite,
		Logger:  logging.New(logrus.WarnLevel, io.Discard),
	})
	require.NoError(t, err)

	d := fixtures.NewDetector()
	w := db.NewWriter()
	require.NoError(t, w.PublishInt("Test", 1, types.FullPhysVol, d.Barrel))
	require.NoError(t, w.PublishString("Alignment", "endcap", types.AlignableTransform, d.Align))
	_, err = w.Write(context.Background(), d.G)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTables(t *testing.T) {
	path := writeStore(t)
	out, err := run(t, "tables", "--store", path)
	require.NoError(t, err)
	assert.Contains(t, out, "TABLE")
	assert.Regexp(t, `ChildPositions\s+\d+\s+19`, out)
	assert.Regexp(t, `RootVolume\s+\d+\s+1`, out)
	assert.Contains(t, out, "Published_FullPhysVols_Integer_Test")
}

func TestDump(t *testing.T) {
	path := writeStore(t)

	out, err := run(t, "dump", "Elements", "--store", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Silicon")

	out, err = run(t, "dump", "ChildPositions", "--json", "--limit", "5", "--store", path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 5)

	_, err = run(t, "dump", "NoSuchTable", "--store", path)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	path := writeStore(t)
	out, err := run(t, "stats", "--store", path)
	require.NoError(t, err)
	assert.Contains(t, out, "root PhysVol:1")
	assert.Contains(t, out, "FullPhysVol")
	assert.Contains(t, out, "DIGEST")
	assert.Contains(t, out, "auxiliary tables: 0")
}

func TestPublished(t *testing.T) {
	path := writeStore(t)
	out, err := run(t, "published", "--store", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Test: Integer keys, FullPhysVol targets, 1 entries")
	assert.Contains(t, out, `"endcap" -> AlignableTransform`)
}

func TestTree(t *testing.T) {
	path := writeStore(t)
	out, err := run(t, "tree", "--store", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PhysVol:1")
	assert.Contains(t, out, `"Barrel"`)
	assert.Contains(t, out, `"Barrel" [Tube, Air] (repeat, under PhysVol:1)`)

	shallow, err := run(t, "tree", "--depth", "1", "--store", path)
	require.NoError(t, err)
	assert.Less(t, len(shallow), len(out))
}

func TestMissingStore(t *testing.T) {
	_, err := run(t, "tables")
	assert.Error(t, err)

	_, err = run(t, "tables", "--store", filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}
