package engine

import (
	"testing"

	"github.com/harrowgate/ftsengine/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func seedScenario1(t *testing.T, e *Engine) {
	t.Helper()
	docs := []types.Document{
		{ID: "1", Title: "Rust", Content: "rust is fast"},
		{ID: "2", Title: "Go", Content: "go is simple"},
		{ID: "3", Title: "Rust and Go", Content: "rust and go are languages"},
	}
	for _, doc := range docs {
		if err := e.UpsertDocument(doc); err != nil {
			t.Fatalf("UpsertDocument(%s) error = %v", doc.ID, err)
		}
	}
}

func ids(docs []types.Document) map[string]bool {
	out := make(map[string]bool, len(docs))
	for _, d := range docs {
		out[d.ID] = true
	}
	return out
}

func TestScenario_InsertSearchPagination(t *testing.T) {
	e := newTestEngine(t)
	seedScenario1(t, e)

	res, err := e.Search("rust", types.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
	got := ids(res.Documents)
	if !got["1"] || !got["3"] {
		t.Errorf("Documents = %v, want {1, 3}", got)
	}

	res, err = e.Search("languages", types.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 1 || !ids(res.Documents)["3"] {
		t.Errorf("Search(languages) = %+v, want {3}", res)
	}
}

func TestScenario_ANDvsOR(t *testing.T) {
	e := newTestEngine(t)
	seedScenario1(t, e)

	andOpts := types.DefaultSearchOptions()
	andOpts.Mode = types.ModeAND
	res, err := e.Search("rust go", andOpts)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 1 || !ids(res.Documents)["3"] {
		t.Errorf("AND search = %+v, want {3}", res)
	}

	orOpts := types.DefaultSearchOptions()
	orOpts.Mode = types.ModeOR
	res, err = e.Search("rust go", orOpts)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 3 {
		t.Errorf("OR search total = %d, want 3", res.Total)
	}
}

func TestScenario_Replace(t *testing.T) {
	e := newTestEngine(t)

	// Titles are empty because the title is indexed with the content: a
	// "Rust" title would keep id 1 in the rust posting list after replace.
	if err := e.UpsertDocument(types.Document{ID: "1", Title: "", Content: "rust rust"}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	statsBefore, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if err := e.UpsertDocument(types.Document{ID: "1", Title: "", Content: "go go"}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	statsAfter, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if statsAfter.DocumentCount != statsBefore.DocumentCount {
		t.Errorf("DocumentCount changed on replace: before=%d after=%d", statsBefore.DocumentCount, statsAfter.DocumentCount)
	}

	rustResults, err := e.Search("rust", types.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search(rust) error = %v", err)
	}
	if rustResults.Total != 0 {
		t.Errorf("Search(rust) after replace Total = %d, want 0", rustResults.Total)
	}

	goOpts := types.DefaultSearchOptions()
	goOpts.Ranked = false
	goResults, err := e.Search("go", goOpts)
	if err != nil {
		t.Fatalf("Search(go) error = %v", err)
	}
	if goResults.Total != 1 || !ids(goResults.Documents)["1"] {
		t.Errorf("Search(go) after replace = %+v, want {1}", goResults)
	}
}

// TestScenario_ZeroTokenDocument guards against deriving existence and N
// from the doclen tree: a document whose title and content analyze to
// nothing but stop words still has a real document-store record and must
// count toward N, and must still be deletable.
func TestScenario_ZeroTokenDocument(t *testing.T) {
	e := newTestEngine(t)

	if err := e.UpsertDocument(types.Document{ID: "1", Title: "", Content: "the"}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Errorf("DocumentCount = %d, want 1", stats.DocumentCount)
	}

	_, ok, err := e.GetDocument("1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if !ok {
		t.Fatalf("GetDocument(1) ok = false, want true")
	}

	deleted, err := e.DeleteDocument("1")
	if err != nil || !deleted {
		t.Fatalf("DeleteDocument(1) = (%v, %v), want (true, nil)", deleted, err)
	}

	statsAfter, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if statsAfter.DocumentCount != 0 {
		t.Errorf("DocumentCount after delete = %d, want 0", statsAfter.DocumentCount)
	}

	_, ok, err = e.GetDocument("1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if ok {
		t.Errorf("GetDocument(1) after delete ok = true, want false")
	}
}

// TestScenario_ReplaceZeroTokenThenNonEmpty guards against double-counting
// N across a replace where the prior version had no doclen entry: N must
// still net to a single document, not two.
func TestScenario_ReplaceZeroTokenThenNonEmpty(t *testing.T) {
	e := newTestEngine(t)

	if err := e.UpsertDocument(types.Document{ID: "1", Title: "", Content: "the"}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if err := e.UpsertDocument(types.Document{ID: "1", Title: "", Content: "go"}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Errorf("DocumentCount = %d, want 1", stats.DocumentCount)
	}
}

// TestUpsertBatch_ZeroTokenDocument is the batch-path analogue of
// TestScenario_ZeroTokenDocument: PlanUpsertMany must also count a
// zero-token document toward N, via the Engine's docstore-backed
// existence check rather than doclen presence.
func TestUpsertBatch_ZeroTokenDocument(t *testing.T) {
	e := newTestEngine(t)

	docs := []types.Document{
		{ID: "1", Title: "", Content: "the"},
		{ID: "2", Title: "Go", Content: "go is simple"},
	}
	if err := e.UpsertBatch(docs); err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.DocumentCount != 2 {
		t.Errorf("DocumentCount = %d, want 2", stats.DocumentCount)
	}

	deleted, err := e.DeleteDocument("1")
	if err != nil || !deleted {
		t.Fatalf("DeleteDocument(1) = (%v, %v), want (true, nil)", deleted, err)
	}
}

func TestScenario_Delete(t *testing.T) {
	e := newTestEngine(t)
	seedScenario1(t, e)

	deleted, err := e.DeleteDocument("3")
	if err != nil || !deleted {
		t.Fatalf("DeleteDocument(3) = (%v, %v), want (true, nil)", deleted, err)
	}

	res, err := e.Search("languages", types.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 0 || len(res.Documents) != 0 {
		t.Errorf("Search(languages) after delete = %+v, want empty", res)
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.DocumentCount != 2 {
		t.Errorf("DocumentCount = %d, want 2", stats.DocumentCount)
	}
}

func TestDeleteDocument_UnknownIDReturnsFalse(t *testing.T) {
	e := newTestEngine(t)
	deleted, err := e.DeleteDocument("missing")
	if err != nil || deleted {
		t.Errorf("DeleteDocument(missing) = (%v, %v), want (false, nil)", deleted, err)
	}
}

func TestScenario_EmptyQuery(t *testing.T) {
	e := newTestEngine(t)
	seedScenario1(t, e)

	res, err := e.Search("the a of", types.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 0 || len(res.Documents) != 0 {
		t.Errorf("Search(all stop words) = %+v, want empty", res)
	}
}

func TestScenario_PaginationStability(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := e.UpsertDocument(types.Document{ID: id, Content: "widget"}); err != nil {
			t.Fatalf("UpsertDocument(%s) error = %v", id, err)
		}
	}

	opts := types.DefaultSearchOptions()
	opts.Limit = 2

	var seen []string
	for _, offset := range []int{0, 2, 4} {
		opts.Offset = offset
		res, err := e.Search("widget", opts)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		for _, d := range res.Documents {
			seen = append(seen, d.ID)
		}
	}

	if len(seen) != 5 {
		t.Fatalf("paginated results = %v, want 5 distinct ids", seen)
	}
	dedup := map[string]bool{}
	for _, id := range seen {
		if dedup[id] {
			t.Errorf("id %s seen more than once across pages: %v", id, seen)
		}
		dedup[id] = true
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Errorf("ids not in ascending order across pages: %v", seen)
		}
	}
}

func TestUpsertDocument_InvalidInput(t *testing.T) {
	e := newTestEngine(t)
	err := e.UpsertDocument(types.Document{ID: "", Content: "x"})
	if err == nil {
		t.Fatal("UpsertDocument() with empty id, want error")
	}
}

func TestUpsertDocument_Idempotence(t *testing.T) {
	e := newTestEngine(t)
	doc := types.Document{ID: "1", Title: "Rust", Content: "rust is fast"}

	if err := e.UpsertDocument(doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	statsOnce, _ := e.Stats()

	if err := e.UpsertDocument(doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	statsTwice, _ := e.Stats()

	if statsOnce != statsTwice {
		t.Errorf("stats changed on idempotent re-upsert: %+v vs %+v", statsOnce, statsTwice)
	}
}

func TestUpsertBatch_DuplicateIDLastWriteWins(t *testing.T) {
	e := newTestEngine(t)

	err := e.UpsertBatch([]types.Document{
		{ID: "1", Content: "rust rust"},
		{ID: "1", Content: "go go go"},
	})
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	doc, ok, err := e.GetDocument("1")
	if err != nil || !ok || doc.Content != "go go go" {
		t.Fatalf("GetDocument(1) = (%+v, %v, %v), want last-write-wins content", doc, ok, err)
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Errorf("DocumentCount = %d, want 1", stats.DocumentCount)
	}

	goResults, err := e.Search("go", types.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search(go) error = %v", err)
	}
	if goResults.Total != 1 {
		t.Errorf("Search(go) Total = %d, want 1", goResults.Total)
	}
}

func TestUpsertBatch_SharedTermAcrossDocuments(t *testing.T) {
	e := newTestEngine(t)

	err := e.UpsertBatch([]types.Document{
		{ID: "1", Content: "widget"},
		{ID: "2", Content: "widget"},
		{ID: "3", Content: "widget"},
	})
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	res, err := e.Search("widget", types.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 3 {
		t.Errorf("Search(widget) Total = %d, want 3 (shared-term batch regressed)", res.Total)
	}
}

func TestUpsertDocumentThenDelete_RoundTrip(t *testing.T) {
	e := newTestEngine(t)

	statsBefore, _ := e.Stats()

	doc := types.Document{ID: "1", Title: "Rust", Content: "rust is fast"}
	if err := e.UpsertDocument(doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if _, err := e.DeleteDocument("1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	statsAfter, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if statsAfter != statsBefore {
		t.Errorf("round-trip stats = %+v, want %+v", statsAfter, statsBefore)
	}
}
