// Package kv is the narrow contract the rest of the store consumes from
// the embedded key-value engine (§6.1): atomic write batches, prefix
// scans in lexicographic order, and snapshots. The concrete engine is
// badger/v4; nothing outside this package imports badger directly.
package kv

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/relkv/rdfstore/internal/errs"
)

// CF is one of the six column families named in spec §6.1. Badger has no
// native column-family concept, so each CF is emulated as a one-byte key
// prefix within a single badger.DB, following the prefixed-table scheme
// aleksaelezovic-trigo/pkg/store/storage.go uses for the same purpose.
type CF byte

const (
	CFID2Str CF = iota
	CFStr2ID
	CFSPO
	CFPOS
	CFOSP
	CFDerived
)

func (c CF) String() string {
	switch c {
	case CFID2Str:
		return "id2str"
	case CFStr2ID:
		return "str2id"
	case CFSPO:
		return "spo"
	case CFPOS:
		return "pos"
	case CFOSP:
		return "osp"
	case CFDerived:
		return "derived"
	default:
		return "unknown"
	}
}

func prefixed(cf CF, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(cf)
	copy(out[1:], key)
	return out
}

// StatsKey is the reserved id2str key that stores the statistics blob
// (spec §6.5): big-endian 1.
var StatsKey = []byte{0, 0, 0, 0, 0, 0, 0, 1}

// Op is one write in an atomic batch.
type Op struct {
	CF     CF
	Key    []byte
	Value  []byte // ignored when Delete is set; a nil Put value stores an empty value
	Delete bool
}

func Put(cf CF, key, value []byte) Op  { return Op{CF: cf, Key: key, Value: value} }
func Del(cf CF, key []byte) Op         { return Op{CF: cf, Key: key, Delete: true} }

// Store is a handle to the opened engine.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) the badger store rooted at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.CodeOpenFailed, err, "opening kv store at %s", path)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory-only store, used by tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.CodeOpenFailed, err, "opening in-memory kv store")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "closing kv store")
	}
	return nil
}

func (s *Store) IsOpen() bool { return !s.db.IsClosed() }

func (s *Store) FlushWAL(sync bool) error {
	if !sync {
		return nil
	}
	if err := s.db.Sync(); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "flushing wal")
	}
	return nil
}

// Get reads a single key outside of any transaction.
func (s *Store) Get(cf CF, key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(cf, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, errs.Wrap(errs.CodeIOError, err, "get %s", cf)
	}
	return out, out != nil, nil
}

func (s *Store) Exists(cf CF, key []byte) (bool, error) {
	_, ok, err := s.Get(cf, key)
	return ok, err
}

// WriteBatch applies ops atomically: all-or-nothing.
func (s *Store) WriteBatch(ops []Op, sync bool) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, op := range ops {
		k := prefixed(op.CF, op.Key)
		if op.Delete {
			if err := wb.Delete(k); err != nil {
				return errs.Wrap(errs.CodeIOError, err, "batch delete")
			}
			continue
		}
		if err := wb.Set(k, op.Value); err != nil {
			return errs.Wrap(errs.CodeIOError, err, "batch set")
		}
	}
	if err := wb.Flush(); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "batch flush")
	}
	if sync {
		return s.FlushWAL(true)
	}
	return nil
}

// Iterator walks keys with a given CF+prefix in lexicographic order.
type Iterator struct {
	it      *badger.Iterator
	txn     *badger.Txn
	ownTxn  bool
	prefix  []byte
	started bool
	valid   bool
}

func (it *Iterator) Next() bool {
	if !it.started {
		it.it.Seek(it.prefix)
		it.started = true
	} else {
		it.it.Next()
	}
	it.valid = it.it.ValidForPrefix(it.prefix)
	return it.valid
}

// Key returns the current key with the CF byte stripped; the scan
// prefix is left in place.
func (it *Iterator) Key() []byte {
	if !it.valid {
		return nil
	}
	k := it.it.Item().KeyCopy(nil)
	return k[1:] // strip CF byte only; caller already knows the prefix it asked for
}

func (it *Iterator) Value() ([]byte, error) {
	if !it.valid {
		return nil, fmt.Errorf("iterator not valid")
	}
	var out []byte
	err := it.it.Item().Value(func(val []byte) error {
		out = append([]byte{}, val...)
		return nil
	})
	return out, err
}

func (it *Iterator) Close() {
	it.it.Close()
	if it.ownTxn {
		it.txn.Discard()
	}
}

// PrefixScan returns all keys in cf starting with prefix, in lexicographic
// order, as a single-pass restartable-only-by-reissue iterator (§4.2).
func (s *Store) PrefixScan(cf CF, prefix []byte) *Iterator {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	full := prefixed(cf, prefix)
	opts.Prefix = full
	it := txn.NewIterator(opts)
	return &Iterator{it: it, txn: txn, ownTxn: true, prefix: full}
}

// Snapshot is a point-in-time read view. Badger's own MVCC read
// transactions already provide snapshot isolation for the lifetime of
// the transaction, so a Snapshot is simply a pinned read transaction.
type Snapshot struct {
	txn *badger.Txn
}

func (s *Store) NewSnapshot() *Snapshot {
	return &Snapshot{txn: s.db.NewTransaction(false)}
}

func (sn *Snapshot) Get(cf CF, key []byte) ([]byte, bool, error) {
	item, err := sn.txn.Get(prefixed(cf, key))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.CodeIOError, err, "snapshot get")
	}
	var out []byte
	err = item.Value(func(val []byte) error {
		out = append([]byte{}, val...)
		return nil
	})
	return out, true, err
}

func (sn *Snapshot) PrefixScan(cf CF, prefix []byte) *Iterator {
	opts := badger.DefaultIteratorOptions
	full := prefixed(cf, prefix)
	opts.Prefix = full
	it := sn.txn.NewIterator(opts)
	return &Iterator{it: it, prefix: full}
}

func (sn *Snapshot) Release() {
	sn.txn.Discard()
}
