// Package engine is the top-level orchestrator: it owns the storage
// handle, the document store, and the inverted index, and exposes the
// library surface the CLI and HTTP front-ends call (§4.6, §6).
package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/harrowgate/ftsengine/internal/analyzer"
	"github.com/harrowgate/ftsengine/internal/audit"
	"github.com/harrowgate/ftsengine/internal/docstore"
	"github.com/harrowgate/ftsengine/internal/index"
	"github.com/harrowgate/ftsengine/internal/ranker"
	"github.com/harrowgate/ftsengine/internal/storage"
	"github.com/harrowgate/ftsengine/pkg/types"
)

// Engine is a shared, multi-reader/single-writer object (§5): reads hold
// mu's read lock and run concurrently with each other; writes are
// serialized against each other by mu, held exclusively across
// read-current-state -> compute-plan -> commit-batch so concurrent upserts
// of the same id never lose an update. Reads do not run concurrently with
// a writer: a read waits until any in-progress write has committed.
type Engine struct {
	store *storage.Store
	docs  *docstore.Store
	idx   *index.Index
	log   *slog.Logger
	audit *audit.Emitter

	mu sync.RWMutex
}

// SetAuditor attaches an audit log; nil is valid and disables auditing
// (the zero value of *audit.Emitter already no-ops, this just documents
// intent at call sites).
func (e *Engine) SetAuditor(em *audit.Emitter) {
	e.audit = em
}

// Open opens or creates the engine's storage beneath dataDir. A nil logger
// falls back to slog.Default().
func Open(dataDir string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := types.DefaultConfig().Storage
	cfg.DataDir = dataDir

	s, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store: s,
		docs:  docstore.New(s),
		idx:   index.New(s),
		log:   logger,
	}, nil
}

// Close flushes and releases the underlying storage handle. There is no
// other explicit close state (§4.6): every operation remains valid until
// Close is called.
func (e *Engine) Close() error {
	if err := e.store.Flush(); err != nil {
		e.log.Warn("flush on close failed", "error", err)
	}
	return e.store.Close()
}

func validateDocument(doc types.Document) error {
	if doc.ID == "" {
		return types.Errorf("engine.UpsertDocument", types.ErrInvalidInput, "document id must not be empty")
	}
	if len(doc.ID) > types.MaxIDLen {
		return types.Errorf("engine.UpsertDocument", types.ErrInvalidInput, "document id exceeds %d bytes", types.MaxIDLen)
	}
	return nil
}

func analyzeDocument(doc types.Document) []string {
	return analyzer.Analyze(doc.Title + " " + doc.Content)
}

// UpsertDocument inserts doc, or replaces the document with the same id.
// The document-store write, the index delta, and the N/L counter update
// commit as a single atomic batch; the net change to N is +1 for a new id,
// 0 for a replacement (§4.6).
func (e *Engine) UpsertDocument(doc types.Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.upsertLocked(doc)
}

// upsertLocked performs one upsert's read -> plan -> commit sequence. The
// caller must hold mu.
func (e *Engine) upsertLocked(doc types.Document) error {
	// N equals the cardinality of the document store (§3), so existence
	// is decided there, not from the doclen tree: a document that
	// analyzes to zero tokens is stored with no doclen entry at all.
	_, existed, err := e.docs.Get(doc.ID)
	if err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}

	deletePlan, oldLength, _, err := e.idx.PlanDelete(doc.ID)
	if err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}

	tokens := analyzeDocument(doc)
	insertPlan, newLength, err := e.idx.PlanInsert(doc.ID, tokens)
	if err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}

	n, l, err := e.idx.CorpusStats()
	if err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}
	if !existed {
		n++
	}
	l = l - oldLength + newLength

	b := e.store.NewBatch()
	defer b.Close()

	if err := deletePlan.Apply(b); err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}
	if err := insertPlan.Apply(b); err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}
	if err := index.MetaOps(n, l).Apply(b); err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}
	if err := docstore.PutBatch(b, doc); err != nil {
		return err
	}

	if err := b.Commit(); err != nil {
		return types.WrapError("engine.UpsertDocument", types.ErrStorageError, err)
	}
	e.audit.Emit(audit.DocumentUpsertedEvent(doc.ID))
	return nil
}

// UpsertBatch applies docs as one atomic batch. A duplicate id resolves
// last-write-wins (§9 Open question): only its last occurrence is
// indexed and stored, as if the earlier occurrences had never been
// passed in. Each distinct id then follows the same read -> plan ->
// commit sequence as UpsertDocument, merged into one batch.
func (e *Engine) UpsertBatch(docs []types.Document) error {
	for _, doc := range docs {
		if err := validateDocument(doc); err != nil {
			return err
		}
	}

	deduped := lastWriteWins(docs)

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.NewBatch()
	defer b.Close()

	n, l, err := e.idx.CorpusStats()
	if err != nil {
		return types.WrapError("engine.UpsertBatch", types.ErrStorageError, err)
	}

	docTokens := make([]index.DocTokens, len(deduped))
	for i, doc := range deduped {
		// Existence for N bookkeeping comes from the document store, not
		// from whether doc.ID currently has a doclen entry (see
		// upsertLocked).
		_, existed, err := e.docs.Get(doc.ID)
		if err != nil {
			return types.WrapError("engine.UpsertBatch", types.ErrStorageError, err)
		}
		docTokens[i] = index.DocTokens{ID: doc.ID, Tokens: analyzeDocument(doc), Existed: existed}
	}

	plan, deltaN, deltaL, err := e.idx.PlanUpsertMany(docTokens)
	if err != nil {
		return types.WrapError("engine.UpsertBatch", types.ErrStorageError, err)
	}

	if err := plan.Apply(b); err != nil {
		return types.WrapError("engine.UpsertBatch", types.ErrStorageError, err)
	}
	for _, doc := range deduped {
		if err := docstore.PutBatch(b, doc); err != nil {
			return err
		}
	}
	if err := index.MetaOps(n+deltaN, l+deltaL).Apply(b); err != nil {
		return types.WrapError("engine.UpsertBatch", types.ErrStorageError, err)
	}

	if err := b.Commit(); err != nil {
		return types.WrapError("engine.UpsertBatch", types.ErrStorageError, err)
	}
	for _, doc := range deduped {
		e.audit.Emit(audit.DocumentUpsertedEvent(doc.ID))
	}
	return nil
}

// lastWriteWins collapses docs to one entry per id, keeping each id's last
// occurrence but preserving first-occurrence ordering so the batch's
// storage writes land in a stable order.
func lastWriteWins(docs []types.Document) []types.Document {
	order := make([]string, 0, len(docs))
	last := make(map[string]types.Document, len(docs))
	for _, doc := range docs {
		if _, ok := last[doc.ID]; !ok {
			order = append(order, doc.ID)
		}
		last[doc.ID] = doc
	}
	out := make([]types.Document, 0, len(order))
	for _, id := range order {
		out = append(out, last[id])
	}
	return out
}

// GetDocument returns the document stored for id.
func (e *Engine) GetDocument(id string) (types.Document, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.docs.Get(id)
}

// DeleteDocument removes id, returning whether a document was actually
// removed. Existence is decided by the document store (§3), not by
// whether id has a doclen entry: a document that analyzed to zero
// tokens is stored with no doclen entry, and must still be erased and
// decrement N.
func (e *Engine) DeleteDocument(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, existed, err := e.docs.Get(id)
	if err != nil {
		return false, types.WrapError("engine.DeleteDocument", types.ErrStorageError, err)
	}
	if !existed {
		return false, nil
	}

	plan, oldLength, _, err := e.idx.PlanDelete(id)
	if err != nil {
		return false, types.WrapError("engine.DeleteDocument", types.ErrStorageError, err)
	}

	n, l, err := e.idx.CorpusStats()
	if err != nil {
		return false, types.WrapError("engine.DeleteDocument", types.ErrStorageError, err)
	}
	n--
	l -= oldLength

	b := e.store.NewBatch()
	defer b.Close()

	if err := plan.Apply(b); err != nil {
		return false, types.WrapError("engine.DeleteDocument", types.ErrStorageError, err)
	}
	if err := index.MetaOps(n, l).Apply(b); err != nil {
		return false, types.WrapError("engine.DeleteDocument", types.ErrStorageError, err)
	}
	if err := docstore.DeleteBatch(b, id); err != nil {
		return false, err
	}

	if err := b.Commit(); err != nil {
		return false, types.WrapError("engine.DeleteDocument", types.ErrStorageError, err)
	}
	e.audit.Emit(audit.DocumentDeletedEvent(id))
	return true, nil
}

// candidate is a document id paired with its BM25 score, if ranked.
type candidate struct {
	id    string
	score float64
}

// Search analyzes query, combines per-term posting sets per opts.Mode,
// ranks or sorts the candidates, and hydrates the requested page from the
// document store (§4.6).
func (e *Engine) Search(query string, opts types.SearchOptions) (types.SearchResults, error) {
	if opts.Limit < 0 {
		return types.SearchResults{}, types.Errorf("engine.Search", types.ErrInvalidInput, "limit must be >= 0")
	}
	if opts.Offset < 0 {
		return types.SearchResults{}, types.Errorf("engine.Search", types.ErrInvalidInput, "offset must be >= 0")
	}
	if opts.Mode == "" {
		opts.Mode = types.ModeAND
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	terms := analyzer.Analyze(query)
	if len(terms) == 0 {
		return types.SearchResults{Documents: []types.Document{}, Total: 0}, nil
	}

	postingsByTerm := make(map[string]map[string]uint32, len(terms))
	for _, term := range terms {
		postings, err := e.idx.PostingsFor(term)
		if err != nil {
			return types.SearchResults{}, types.WrapError("engine.Search", types.ErrStorageError, err)
		}
		postingsByTerm[term] = postings
	}

	candidateSet := combinePostings(terms, postingsByTerm, opts.Mode)
	total := len(candidateSet)

	candidates := make([]candidate, 0, len(candidateSet))
	if opts.Ranked {
		n, l, err := e.idx.CorpusStats()
		if err != nil {
			return types.SearchResults{}, types.WrapError("engine.Search", types.ErrStorageError, err)
		}
		avgdl := 1.0
		if n > 0 {
			avgdl = float64(l) / float64(n)
		}

		docFreqs := make(map[string]int, len(terms))
		for _, term := range terms {
			docFreqs[term] = len(postingsByTerm[term])
		}

		for id := range candidateSet {
			docLen, err := e.idx.DocLength(id)
			if err != nil {
				return types.SearchResults{}, types.WrapError("engine.Search", types.ErrStorageError, err)
			}
			var postings []ranker.Posting
			for _, term := range terms {
				postings = append(postings, ranker.Posting{
					Term:     term,
					DocFreq:  docFreqs[term],
					TermFreq: int(postingsByTerm[term][id]),
				})
			}
			score := ranker.Score(postings, n, docLen, avgdl)
			candidates = append(candidates, candidate{id: id, score: score})
		}

		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return candidates[i].id < candidates[j].id
		})
	} else {
		for id := range candidateSet {
			candidates = append(candidates, candidate{id: id})
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].id < candidates[j].id
		})
	}

	page := paginate(candidates, opts.Offset, opts.Limit)

	documents := make([]types.Document, 0, len(page))
	scores := make([]float64, 0, len(page))
	for _, c := range page {
		doc, ok, err := e.docs.Get(c.id)
		if err != nil {
			return types.SearchResults{}, types.WrapError("engine.Search", types.ErrStorageError, err)
		}
		if !ok {
			// Posting references a doc id absent from the document store:
			// a corruption per §7. Log and skip; total is left unchanged,
			// matching the documented invariant violation.
			e.log.Warn("posting references missing document", "doc_id", c.id)
			continue
		}
		documents = append(documents, doc)
		if opts.Ranked {
			scores = append(scores, c.score)
		}
	}

	results := types.SearchResults{Documents: documents, Total: total}
	if opts.Ranked {
		results.Scores = scores
	}
	e.audit.Emit(audit.QueryPerformedEvent(query, results.Total))
	return results, nil
}

func combinePostings(terms []string, postingsByTerm map[string]map[string]uint32, mode types.SearchMode) map[string]struct{} {
	if mode == types.ModeOR {
		out := make(map[string]struct{})
		for _, term := range terms {
			for id := range postingsByTerm[term] {
				out[id] = struct{}{}
			}
		}
		return out
	}

	// AND: intersect across terms. A term with an empty posting list
	// collapses the whole intersection to empty.
	var smallest map[string]uint32
	for _, term := range terms {
		p := postingsByTerm[term]
		if len(p) == 0 {
			return map[string]struct{}{}
		}
		if smallest == nil || len(p) < len(smallest) {
			smallest = p
		}
	}

	out := make(map[string]struct{}, len(smallest))
	for id := range smallest {
		inAll := true
		for _, term := range terms {
			if _, ok := postingsByTerm[term][id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[id] = struct{}{}
		}
	}
	return out
}

// paginate applies offset then limit to the sorted candidate list. limit
// is honored literally, including zero. Options are expected to already
// carry the caller's resolved defaults (types.DefaultSearchOptions), not
// Search's own notion of "unset".
func paginate(candidates []candidate, offset, limit int) []candidate {
	if offset >= len(candidates) {
		return nil
	}
	end := offset + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[offset:end]
}

// Stats reports corpus-wide counters (§4.6).
func (e *Engine) Stats() (types.Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n, l, err := e.idx.CorpusStats()
	if err != nil {
		return types.Stats{}, types.WrapError("engine.Stats", types.ErrStorageError, err)
	}
	totalTerms, err := e.idx.TotalTerms()
	if err != nil {
		return types.Stats{}, types.WrapError("engine.Stats", types.ErrStorageError, err)
	}

	avg := 0.0
	if n > 0 {
		avg = float64(l) / float64(n)
	}

	return types.Stats{
		DocumentCount: n,
		TotalTerms:    totalTerms,
		AvgDocLength:  avg,
	}, nil
}
