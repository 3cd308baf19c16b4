package storage

import (
	"testing"

	"github.com/harrowgate/ftsengine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := types.StorageConfig{DataDir: t.TempDir(), CacheSize: 8 << 20}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTree_PutGetDelete(t *testing.T) {
	s := newTestStore(t)
	docs := s.Tree("docs")

	if _, ok, err := docs.Get([]byte("a")); err != nil || ok {
		t.Fatalf("Get() on empty tree = (%v, %v), want (nil, false)", ok, err)
	}

	if err := docs.Put([]byte("a"), []byte("hello")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	v, ok, err := docs.Get([]byte("a"))
	if err != nil || !ok || string(v) != "hello" {
		t.Fatalf("Get() = (%q, %v, %v), want (hello, true, nil)", v, ok, err)
	}

	if err := docs.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := docs.Get([]byte("a")); ok {
		t.Error("Get() after Delete() should be absent")
	}
}

func TestTree_Isolation(t *testing.T) {
	s := newTestStore(t)
	docs := s.Tree("docs")
	postings := s.Tree("postings")

	docs.Put([]byte("x"), []byte("doc-value"))
	postings.Put([]byte("x"), []byte("posting-value"))

	dv, _, _ := docs.Get([]byte("x"))
	pv, _, _ := postings.Get([]byte("x"))

	if string(dv) != "doc-value" || string(pv) != "posting-value" {
		t.Errorf("trees are not isolated: docs=%q postings=%q", dv, pv)
	}
}

func TestTree_ScanPrefix(t *testing.T) {
	s := newTestStore(t)
	tr := s.Tree("meta")

	tr.Put([]byte("term:apple"), []byte("1"))
	tr.Put([]byte("term:apricot"), []byte("2"))
	tr.Put([]byte("other:banana"), []byte("3"))

	var keys []string
	err := tr.ScanPrefix([]byte("term:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ScanPrefix() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ScanPrefix() returned %d keys, want 2: %v", len(keys), keys)
	}
}

func TestBatch_AtomicAcrossTrees(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	if err := b.Put("docs", []byte("id1"), []byte("doc")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := b.Put("postings", []byte("term"), []byte("posting")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	dv, ok, _ := s.Tree("docs").Get([]byte("id1"))
	if !ok || string(dv) != "doc" {
		t.Error("batch commit did not persist docs write")
	}
	pv, ok, _ := s.Tree("postings").Get([]byte("term"))
	if !ok || string(pv) != "posting" {
		t.Error("batch commit did not persist postings write")
	}
}

func TestBatch_DiscardedWithoutCommit(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	b.Put("docs", []byte("id2"), []byte("doc"))
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, ok, _ := s.Tree("docs").Get([]byte("id2")); ok {
		t.Error("uncommitted batch should not be visible")
	}
}
