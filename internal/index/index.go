// Package index implements the inverted index: posting lists, per-document
// length, and corpus statistics, with incremental maintenance expressed as
// batch plans the Engine commits atomically (§4.4).
package index

import (
	"github.com/harrowgate/ftsengine/internal/storage"
	"github.com/harrowgate/ftsengine/pkg/types"
)

const (
	metaKeyN = "N"
	metaKeyL = "L"
)

// Op is one staged storage mutation produced by a plan.
type Op struct {
	Tree   string
	Key    []byte
	Value  []byte
	Delete bool
}

// Plan is a batch plan: a set of storage operations to be merged into the
// Engine's single atomic commit. The index itself never commits (§4.4).
type Plan []Op

// Apply stages every op in the plan into an open storage batch.
func (p Plan) Apply(b *storage.Batch) error {
	for _, op := range p {
		if op.Delete {
			if err := b.Delete(op.Tree, op.Key); err != nil {
				return err
			}
			continue
		}
		if err := b.Put(op.Tree, op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// Index owns the postings, doclen, and meta trees.
type Index struct {
	postings *storage.Tree
	doclen   *storage.Tree
	meta     *storage.Tree
}

// New wraps the postings/doclen/meta trees of an open storage.Store.
func New(s *storage.Store) *Index {
	return &Index{
		postings: s.Tree("postings"),
		doclen:   s.Tree("doclen"),
		meta:     s.Tree("meta"),
	}
}

// PostingsFor returns term's doc_id -> term_frequency mapping, empty if the
// term is absent.
func (ix *Index) PostingsFor(term string) (map[string]uint32, error) {
	data, ok, err := ix.postings.Get([]byte(term))
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]uint32{}, nil
	}
	return decodePostings(data)
}

// DocLength returns the stored analyzed-token count for docID, zero if
// absent.
func (ix *Index) DocLength(docID string) (int, error) {
	data, ok, err := ix.doclen.Get([]byte(docID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	length, _, err := decodeDocLen(data)
	return length, err
}

// CorpusStats returns (N, L): total document count and the sum of
// per-document lengths.
func (ix *Index) CorpusStats() (n int, l int, err error) {
	nData, ok, err := ix.meta.Get([]byte(metaKeyN))
	if err != nil {
		return 0, 0, err
	}
	if ok {
		v, err := decodeUint64(nData)
		if err != nil {
			return 0, 0, err
		}
		n = int(v)
	}
	lData, ok, err := ix.meta.Get([]byte(metaKeyL))
	if err != nil {
		return 0, 0, err
	}
	if ok {
		v, err := decodeUint64(lData)
		if err != nil {
			return 0, 0, err
		}
		l = int(v)
	}
	return n, l, nil
}

// MetaOps builds the plan ops that set N and L to the given values. The
// Engine calls this once per write, after combining the effects of any
// PlanDelete/PlanInsert pair, since the two global counters cannot be
// composed correctly from two independent stale-read deltas the way the
// per-term and per-doc plans below can (see DESIGN.md).
func MetaOps(n, l int) Plan {
	return Plan{
		{Tree: "meta", Key: []byte(metaKeyN), Value: encodeUint64(uint64(n))},
		{Tree: "meta", Key: []byte(metaKeyL), Value: encodeUint64(uint64(l))},
	}
}

// PlanInsert computes the plan to add docID's analyzed tokens to the
// index: one posting-list update per distinct term, plus the doc's length
// and reverse term-list entry. It returns the new document length. The
// index's own N/L counters are not touched here, see MetaOps.
func (ix *Index) PlanInsert(docID string, tokens []string) (Plan, int, error) {
	if len(tokens) == 0 {
		return nil, 0, nil
	}

	freqs := make(map[string]uint32, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, seen := freqs[tok]; !seen {
			terms = append(terms, tok)
		}
		freqs[tok]++
	}

	var plan Plan
	for _, term := range terms {
		postings, err := ix.PostingsFor(term)
		if err != nil {
			return nil, 0, err
		}
		postings[docID] = freqs[term]
		plan = append(plan, Op{Tree: "postings", Key: []byte(term), Value: encodePostings(postings)})
	}

	plan = append(plan, Op{
		Tree:  "doclen",
		Key:   []byte(docID),
		Value: encodeDocLen(len(tokens), terms),
	})

	return plan, len(tokens), nil
}

// PlanDelete computes the plan to remove docID's contributions from the
// index, using the reverse term-list stored alongside its length so no
// full postings scan is needed. A no-op plan (nil, 0, false, nil) is
// returned if docID has no doclen entry. Its existed return reflects only
// the doclen tree, not the document store: a document that analyzed to
// zero tokens has no doclen entry despite being stored, so callers that
// need authoritative existence (for N bookkeeping, or for deciding
// whether a delete removed anything) must check the document store
// directly instead of relying on this return value.
func (ix *Index) PlanDelete(docID string) (Plan, int, bool, error) {
	data, ok, err := ix.doclen.Get([]byte(docID))
	if err != nil {
		return nil, 0, false, err
	}
	if !ok {
		return nil, 0, false, nil
	}

	oldLength, terms, err := decodeDocLen(data)
	if err != nil {
		return nil, 0, false, err
	}

	var plan Plan
	for _, term := range terms {
		postings, err := ix.PostingsFor(term)
		if err != nil {
			return nil, 0, false, err
		}
		delete(postings, docID)
		if len(postings) == 0 {
			plan = append(plan, Op{Tree: "postings", Key: []byte(term), Delete: true})
		} else {
			plan = append(plan, Op{Tree: "postings", Key: []byte(term), Value: encodePostings(postings)})
		}
	}

	plan = append(plan, Op{Tree: "doclen", Key: []byte(docID), Delete: true})

	return plan, oldLength, true, nil
}

// DocTokens is one document's id and analyzed tokens, input to
// PlanUpsertMany. Existed reports whether id is already present in the
// document store; the caller (Engine) determines this, since a
// zero-token document has no doclen entry and the index cannot tell
// "never seen" apart from "seen but empty" on its own (see DESIGN.md).
type DocTokens struct {
	ID      string
	Tokens  []string
	Existed bool
}

// PlanUpsertMany computes one merged plan for upserting several distinct
// document ids together, returning the net N and L deltas the caller
// should fold into its own current corpus stats. Unlike calling
// PlanInsert/PlanDelete once per document against the same uncommitted
// batch, this shares one in-memory read-through cache of the postings
// touched across ALL of ids, so two documents in the same call that
// share a term both land in that term's final posting list, instead of
// each independently reading pre-batch storage state and the second
// silently overwriting the first's write to the same key.
func (ix *Index) PlanUpsertMany(docs []DocTokens) (Plan, int, int, error) {
	postingsCache := make(map[string]map[string]uint32)
	loadPostings := func(term string) (map[string]uint32, error) {
		if p, ok := postingsCache[term]; ok {
			return p, nil
		}
		p, err := ix.PostingsFor(term)
		if err != nil {
			return nil, err
		}
		postingsCache[term] = p
		return p, nil
	}

	var plan Plan
	deltaN, deltaL := 0, 0

	for _, doc := range docs {
		oldData, hadDocLen, err := ix.doclen.Get([]byte(doc.ID))
		if err != nil {
			return nil, 0, 0, err
		}
		var oldLength int
		var oldTerms []string
		if hadDocLen {
			oldLength, oldTerms, err = decodeDocLen(oldData)
			if err != nil {
				return nil, 0, 0, err
			}
		}

		for _, term := range oldTerms {
			postings, err := loadPostings(term)
			if err != nil {
				return nil, 0, 0, err
			}
			delete(postings, doc.ID)
		}

		freqs := make(map[string]uint32, len(doc.Tokens))
		newTerms := make([]string, 0, len(doc.Tokens))
		for _, tok := range doc.Tokens {
			if _, seen := freqs[tok]; !seen {
				newTerms = append(newTerms, tok)
			}
			freqs[tok]++
		}
		for _, term := range newTerms {
			postings, err := loadPostings(term)
			if err != nil {
				return nil, 0, 0, err
			}
			postings[doc.ID] = freqs[term]
		}

		if !doc.Existed {
			deltaN++
		}
		deltaL += len(doc.Tokens) - oldLength

		if len(doc.Tokens) == 0 {
			plan = append(plan, Op{Tree: "doclen", Key: []byte(doc.ID), Delete: true})
		} else {
			plan = append(plan, Op{Tree: "doclen", Key: []byte(doc.ID), Value: encodeDocLen(len(doc.Tokens), newTerms)})
		}
	}

	for term, postings := range postingsCache {
		if len(postings) == 0 {
			plan = append(plan, Op{Tree: "postings", Key: []byte(term), Delete: true})
		} else {
			plan = append(plan, Op{Tree: "postings", Key: []byte(term), Value: encodePostings(postings)})
		}
	}

	return plan, deltaN, deltaL, nil
}

// TermDocFreq returns the number of documents containing term (n_q in the
// BM25 IDF formula).
func (ix *Index) TermDocFreq(term string) (int, error) {
	postings, err := ix.PostingsFor(term)
	if err != nil {
		return 0, err
	}
	return len(postings), nil
}

// TotalTerms returns the number of distinct terms currently in the index,
// for the Engine's stats() surface.
func (ix *Index) TotalTerms() (int, error) {
	count := 0
	err := ix.postings.ScanPrefix(nil, func(_ []byte, _ []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, types.WrapError("index.TotalTerms", types.ErrStorageError, err)
	}
	return count, nil
}
