// Package keyValStore is the badger-backed store adapter. Tables are kept as key
// prefixes: the catalog key t/<table> holds the generation and column definition of the
// table, and r/<table>/<generation>/<seq> holds its rows in insertion order. A table is
// visible only once its catalog key is committed, and only rows of the committed
// generation are ever read.
package keyValStore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/i5heu/geomodel-db/internal/binaryCoder"
	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var (
	catalogPrefix = []byte("t/")
	rowPrefix     = []byte("r/")
	generationKey = []byte("s/generation")
)

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

var _ store.Backend = (*KeyValStore)(nil)

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	config.Logger = logging.OrDefault(config.Logger)
	log := config.Logger

	report, err := config.checkConfig()
	if err != nil {
		return nil, dberrors.Unavailable(fmt.Errorf("error checking config for KeyValStore: %w", err), "badger")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	}
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		log.WithError(err).Error("opening badger")
		return nil, dberrors.Unavailable(err, "badger open")
	}

	if report != nil {
		report.log(log)
	}

	return &KeyValStore{
		config:   config,
		log:      log,
		badgerDB: db,
	}, nil
}

func catalogKey(table string) []byte {
	return append(append([]byte{}, catalogPrefix...), table...)
}

func tableRowPrefix(table string, generation uint64) []byte {
	k := append(append([]byte{}, rowPrefix...), table...)
	k = append(k, '/')
	return binary.BigEndian.AppendUint64(k, generation)
}

func rowKey(table string, generation, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(tableRowPrefix(table, generation), seq)
}

type catalogEntry struct {
	generation uint64
	def        types.TableDef
}

func encodeCatalog(e catalogEntry) []byte {
	b := binary.BigEndian.AppendUint64(nil, e.generation)
	return append(b, binaryCoder.TableDefToByte(e.def)...)
}

func decodeCatalog(data []byte) (catalogEntry, error) {
	if len(data) < 8 {
		return catalogEntry{}, fmt.Errorf("catalog entry of %d bytes", len(data))
	}
	def, err := binaryCoder.ByteToTableDef(data[8:])
	if err != nil {
		return catalogEntry{}, err
	}
	return catalogEntry{generation: binary.BigEndian.Uint64(data[:8]), def: def}, nil
}

// Counters returns the number of rows read and written since the store was opened.
func (k *KeyValStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&k.readCounter), atomic.LoadUint64(&k.writeCounter)
}

func (k *KeyValStore) readCatalog(txn *badger.Txn, table string) (catalogEntry, bool, error) {
	item, err := txn.Get(catalogKey(table))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return catalogEntry{}, false, nil
	}
	if err != nil {
		return catalogEntry{}, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return catalogEntry{}, false, err
	}
	data, err := binaryCoder.Open(raw)
	if err != nil {
		return catalogEntry{}, false, err
	}
	e, err := decodeCatalog(data)
	if err != nil {
		return catalogEntry{}, false, fmt.Errorf("catalog of %s: %w", table, err)
	}
	return e, true, nil
}

func (k *KeyValStore) TableExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var exists bool
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		_, ok, err := k.readCatalog(txn, name)
		exists = ok
		return err
	})
	if err != nil {
		return false, dberrors.Unavailable(err, "badger view")
	}
	return exists, nil
}

func (k *KeyValStore) Tables(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var names []string
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(catalogPrefix); it.ValidForPrefix(catalogPrefix); it.Next() {
			names = append(names, string(bytes.TrimPrefix(it.Item().Key(), catalogPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, dberrors.Unavailable(err, "badger view")
	}
	return names, nil
}

func (k *KeyValStore) Schema(ctx context.Context, name string) (types.TableDef, error) {
	if err := ctx.Err(); err != nil {
		return types.TableDef{}, err
	}
	var entry catalogEntry
	var ok bool
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		var err error
		entry, ok, err = k.readCatalog(txn, name)
		return err
	})
	if err != nil {
		return types.TableDef{}, dberrors.Unavailable(err, "badger view")
	}
	if !ok {
		return types.TableDef{}, dberrors.ErrMissingTable.New(name)
	}
	return entry.def, nil
}

// Scan returns all rows of a committed table in insertion order.
func (k *KeyValStore) Scan(ctx context.Context, name string) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []types.Row
	var missing bool
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		entry, ok, err := k.readCatalog(txn, name)
		if err != nil {
			return err
		}
		if !ok {
			missing = true
			return nil
		}
		columns := entry.def.ColumnTypes()

		prefix := tableRowPrefix(name, entry.generation)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			atomic.AddUint64(&k.readCounter, 1)
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			data, err := binaryCoder.Open(raw)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			row, err := binaryCoder.ByteToRow(data, columns)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, dberrors.Unavailable(err, "badger scan")
	}
	if missing {
		return nil, dberrors.ErrMissingTable.New(name)
	}
	return rows, nil
}

func (k *KeyValStore) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	generation, err := k.nextGeneration()
	if err != nil {
		return nil, dberrors.Unavailable(err, "badger sequence")
	}
	return &kvTx{
		k:          k,
		wb:         k.badgerDB.NewWriteBatch(),
		generation: generation,
		created:    make(map[string]types.TableDef),
		seq:        make(map[string]uint64),
	}, nil
}

func (k *KeyValStore) nextGeneration() (uint64, error) {
	seq, err := k.badgerDB.GetSequence(generationKey, 1)
	if err != nil {
		return 0, err
	}
	defer seq.Release()
	return seq.Next()
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithError(err).Warn("cleaning badger before close")
	}
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}
	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}

// kvTx stages rows in a write batch under its own generation. Rows are unreachable
// until Commit writes the catalog keys of their tables in one badger transaction.
type kvTx struct {
	k          *KeyValStore
	wb         *badger.WriteBatch
	generation uint64
	created    map[string]types.TableDef
	order      []string
	seq        map[string]uint64
	done       bool
}

func (t *kvTx) CreateTable(ctx context.Context, def types.TableDef) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// names are compared ignoring case so both adapters accept the same schemas
	for _, name := range t.order {
		if strings.EqualFold(name, def.Name) {
			return dberrors.ErrDuplicateDefinition.New("table", def.Name)
		}
	}
	stored, err := t.k.Tables(ctx)
	if err != nil {
		return err
	}
	for _, name := range stored {
		if strings.EqualFold(name, def.Name) {
			return dberrors.ErrDuplicateDefinition.New("table", def.Name)
		}
	}
	t.created[def.Name] = def
	t.order = append(t.order, def.Name)
	return nil
}

func (t *kvTx) Insert(ctx context.Context, table string, rows ...types.Row) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	def, ok := t.created[table]
	if !ok {
		return dberrors.ErrMissingTable.New(table)
	}
	for _, row := range rows {
		if err := def.CheckRow(row); err != nil {
			return dberrors.ErrSchemaMismatch.New(table, err.Error())
		}
		data, err := binaryCoder.RowToByte(row)
		if err != nil {
			return err
		}
		sealed, err := binaryCoder.Seal(data, t.k.config.CompressThreshold)
		if err != nil {
			return err
		}
		seq := t.seq[table]
		t.seq[table] = seq + 1
		if err := t.wb.Set(rowKey(table, t.generation, seq), sealed); err != nil {
			return dberrors.Unavailable(err, "badger write batch")
		}
		atomic.AddUint64(&t.k.writeCounter, 1)
	}
	return nil
}

func (t *kvTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	if err := t.wb.Flush(); err != nil {
		_ = t.drop()
		return dberrors.Unavailable(err, "badger flush")
	}
	err := t.k.badgerDB.Update(func(txn *badger.Txn) error {
		for _, name := range t.order {
			entry := catalogEntry{generation: t.generation, def: t.created[name]}
			sealed, err := binaryCoder.Seal(encodeCatalog(entry), 0)
			if err != nil {
				return err
			}
			if err := txn.Set(catalogKey(name), sealed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = t.drop()
		return dberrors.Unavailable(err, "badger catalog commit")
	}
	t.done = true
	t.k.log.WithFields(logrus.Fields{
		"tables": len(t.order),
	}).Debug("badger transaction committed")
	return nil
}

func (t *kvTx) Rollback() error {
	if t.done {
		return nil
	}
	t.wb.Cancel()
	return t.drop()
}

func (t *kvTx) drop() error {
	t.done = true
	if len(t.order) == 0 {
		return nil
	}
	prefixes := make([][]byte, 0, len(t.order))
	for _, name := range t.order {
		prefixes = append(prefixes, tableRowPrefix(name, t.generation))
	}
	if err := t.k.badgerDB.DropPrefix(prefixes...); err != nil {
		t.k.log.WithError(err).Warn("dropping staged rows")
		return dberrors.Unavailable(err, "badger drop prefix")
	}
	return nil
}
