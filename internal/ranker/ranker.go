// Package ranker computes BM25 relevance scores from posting-list
// statistics handed to it by the Engine (§4.5). It holds no state of its
// own and touches no storage.
package ranker

import "math"

// Fixed BM25 parameters (§4.5, §9 "BM25 parameters"). Not configurable, so
// scores stay comparable across corpora.
const (
	K1 = 1.2
	B  = 0.75
)

// IDF returns the inverse document frequency of a term appearing in nq of
// N total documents. The +1 guarantees a non-negative result for every
// nq <= N, including nq == N.
func IDF(n, nq int) float64 {
	return math.Log((float64(n)-float64(nq)+0.5)/(float64(nq)+0.5) + 1)
}

// TermScore returns one query term's BM25 contribution to a document's
// score: idf weighted by term-frequency saturation and length
// normalization against the corpus average document length avgdl.
func TermScore(idf float64, tf int, docLen int, avgdl float64) float64 {
	if avgdl == 0 {
		avgdl = 1
	}
	tfFloat := float64(tf)
	denom := tfFloat + K1*(1-B+B*(float64(docLen)/avgdl))
	if denom == 0 {
		return 0
	}
	return idf * (tfFloat * (K1 + 1) / denom)
}

// Posting is one query term's statistics needed to score a candidate
// document: its corpus-wide document frequency and its frequency within
// this particular document.
type Posting struct {
	Term     string
	DocFreq  int
	TermFreq int
}

// Score sums the BM25 contribution of every posting against a document of
// the given length, for a corpus of n documents with average length
// avgdl.
func Score(postings []Posting, n int, docLen int, avgdl float64) float64 {
	var total float64
	for _, p := range postings {
		if p.TermFreq == 0 {
			continue
		}
		idf := IDF(n, p.DocFreq)
		total += TermScore(idf, p.TermFreq, docLen, avgdl)
	}
	return total
}
