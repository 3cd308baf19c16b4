// Package storage provides the persistent key/value substrate the engine
// builds its trees on, backed by Pebble (§4.2).
package storage

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/harrowgate/ftsengine/pkg/types"
)

// treePrefixes fixes the one-byte namespace prefix for each tree the
// engine requires. The set is closed: Tree() rejects any other name,
// since §4.2 names exactly these four trees.
var treePrefixes = map[string]byte{
	"docs":     0x01,
	"postings": 0x02,
	"doclen":   0x03,
	"meta":     0x04,
}

// Store is a durable key/value substrate exposing named trees over one
// physical Pebble database.
type Store struct {
	db     *pebble.DB
	config types.StorageConfig
	closed atomic.Bool
}

// Open opens or creates a store at the path named by config.DataDir.
// Pebble itself refuses a second concurrent opener on the same directory
// via its LOCK file.
func Open(config types.StorageConfig) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(config.CacheSize),
		MaxOpenFiles: 1000,
	}

	db, err := pebble.Open(config.DataDir, opts)
	if err != nil {
		return nil, types.WrapError("storage.Open", types.ErrStorageError, err)
	}

	return &Store{db: db, config: config}, nil
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Flush durably persists buffered writes.
func (s *Store) Flush() error {
	done, err := s.db.AsyncFlush()
	if err != nil {
		return types.WrapError("storage.Flush", types.ErrStorageError, err)
	}
	<-done
	return nil
}

// Stats returns low-level Pebble storage metrics. The engine's own Stats
// (and so the HTTP /stats and CLI stats surfaces) does not include them.
func (s *Store) Stats() map[string]any {
	m := s.db.Metrics()
	return map[string]any{
		"disk_space":    m.DiskSpaceUsage(),
		"read_amp":      m.ReadAmp(),
		"flush_count":   m.Flush.Count,
		"compact_count": m.Compact.Count,
	}
}

func (s *Store) writeOpts() *pebble.WriteOptions {
	if s.config.SyncWrites {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Tree returns the idempotent accessor for a named tree. name must be one
// of the fixed tree names the engine declares.
func (s *Store) Tree(name string) *Tree {
	prefix, ok := treePrefixes[name]
	if !ok {
		panic("storage: unknown tree " + name)
	}
	return &Tree{store: s, prefix: prefix}
}

// Tree is a logical namespace over the physical store, implemented as a
// one-byte key prefix.
type Tree struct {
	store  *Store
	prefix byte
}

func (t *Tree) key(k []byte) []byte {
	out := make([]byte, 1+len(k))
	out[0] = t.prefix
	copy(out[1:], k)
	return out
}

// Get returns the value for key, or (nil, false) if absent.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := t.store.db.Get(t.key(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.WrapError("storage.Tree.Get", types.ErrStorageError, err)
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put writes key/value, independent of any batch.
func (t *Tree) Put(key, value []byte) error {
	if err := t.store.db.Set(t.key(key), value, t.store.writeOpts()); err != nil {
		return types.WrapError("storage.Tree.Put", types.ErrStorageError, err)
	}
	return nil
}

// Delete removes key, independent of any batch.
func (t *Tree) Delete(key []byte) error {
	if err := t.store.db.Delete(t.key(key), t.store.writeOpts()); err != nil {
		return types.WrapError("storage.Tree.Delete", types.ErrStorageError, err)
	}
	return nil
}

// ScanPrefix calls fn for every key/value pair whose key starts with
// prefix, in ascending key order. Returning an error from fn stops the
// scan and propagates the error.
func (t *Tree) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	lower := t.key(prefix)
	// upper is the smallest key greater than every key starting with lower.
	// lower[0] is a tree prefix below 0xff, so the loop always increments.
	upper := append([]byte{}, lower...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			upper = upper[:i+1]
			break
		}
	}

	iter, err := t.store.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return types.WrapError("storage.Tree.ScanPrefix", types.ErrStorageError, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()[1:] // strip tree prefix byte
		if err := fn(key, iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return types.WrapError("storage.Tree.ScanPrefix", types.ErrStorageError, err)
	}
	return nil
}

// Batch accumulates put/delete operations across any number of trees for
// one atomic commit (§4.2, §5).
type Batch struct {
	store *Store
	batch *pebble.Batch
}

// NewBatch creates an empty batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s, batch: s.db.NewBatch()}
}

// Put stages a write to tree/key within the batch.
func (b *Batch) Put(tree string, key, value []byte) error {
	prefix, ok := treePrefixes[tree]
	if !ok {
		panic("storage: unknown tree " + tree)
	}
	k := make([]byte, 1+len(key))
	k[0] = prefix
	copy(k[1:], key)
	if err := b.batch.Set(k, value, nil); err != nil {
		return types.WrapError("storage.Batch.Put", types.ErrStorageError, err)
	}
	return nil
}

// Delete stages a delete of tree/key within the batch.
func (b *Batch) Delete(tree string, key []byte) error {
	prefix, ok := treePrefixes[tree]
	if !ok {
		panic("storage: unknown tree " + tree)
	}
	k := make([]byte, 1+len(key))
	k[0] = prefix
	copy(k[1:], key)
	if err := b.batch.Delete(k, nil); err != nil {
		return types.WrapError("storage.Batch.Delete", types.ErrStorageError, err)
	}
	return nil
}

// Commit applies all staged operations atomically: either all take effect
// or none do, and no reader observes a partial state.
func (b *Batch) Commit() error {
	if err := b.batch.Commit(b.store.writeOpts()); err != nil {
		return types.WrapError("storage.Batch.Commit", types.ErrStorageError, err)
	}
	return nil
}

// Close discards the batch without committing it. Safe to call after a
// successful Commit.
func (b *Batch) Close() error {
	return b.batch.Close()
}
