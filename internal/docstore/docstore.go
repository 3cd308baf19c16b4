// Package docstore persists full documents keyed by document id (§4.3).
package docstore

import (
	"encoding/json"

	"github.com/harrowgate/ftsengine/internal/storage"
	"github.com/harrowgate/ftsengine/pkg/types"
)

// Store is a trivial wrapper over the storage "docs" tree. Encoding is
// JSON, following the inherited codebase's SaveNode/GetNode convention:
// documents are whole records read back individually, not merged at the
// byte level, so JSON's self-describing cost is harmless here, unlike for
// the index's posting lists, which use a length-prefixed binary layout
// instead.
type Store struct {
	tree *storage.Tree
}

// New wraps the docs tree of an open storage.Store.
func New(s *storage.Store) *Store {
	return &Store{tree: s.Tree("docs")}
}

// Put persists doc, replacing any prior version with the same id,
// independent of any batch.
func (s *Store) Put(doc types.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return types.WrapError("docstore.Put", types.ErrInvalidInput, err)
	}
	return s.tree.Put([]byte(doc.ID), data)
}

// Get returns the document stored for id, or (zero, false) if absent.
func (s *Store) Get(id string) (types.Document, bool, error) {
	data, ok, err := s.tree.Get([]byte(id))
	if err != nil {
		return types.Document{}, false, err
	}
	if !ok {
		return types.Document{}, false, nil
	}
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.Document{}, false, types.WrapError("docstore.Get", types.ErrCorruption, err)
	}
	return doc, true, nil
}

// Delete removes the document for id, independent of any batch.
func (s *Store) Delete(id string) error {
	return s.tree.Delete([]byte(id))
}

// Iter calls fn for every stored document. A corrupt record is skipped,
// per §7's Corruption handling, rather than aborting the whole iteration.
func (s *Store) Iter(fn func(types.Document) error) error {
	return s.tree.ScanPrefix(nil, func(_ []byte, value []byte) error {
		var doc types.Document
		if err := json.Unmarshal(value, &doc); err != nil {
			return nil
		}
		return fn(doc)
	})
}

// PutBatch stages doc's write into an existing storage batch, for the
// Engine to merge with index deltas into one atomic commit.
func PutBatch(b *storage.Batch, doc types.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return types.WrapError("docstore.PutBatch", types.ErrInvalidInput, err)
	}
	return b.Put("docs", []byte(doc.ID), data)
}

// DeleteBatch stages id's removal into an existing storage batch.
func DeleteBatch(b *storage.Batch, id string) error {
	return b.Delete("docs", []byte(id))
}
