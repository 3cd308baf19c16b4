package index

import (
	"errors"
	"testing"

	"github.com/harrowgate/ftsengine/pkg/types"
)

func TestDecodePostings_RoundTrip(t *testing.T) {
	want := map[string]uint32{"doc1": 3, "doc2": 1}
	got, err := decodePostings(encodePostings(want))
	if err != nil {
		t.Fatalf("decodePostings() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("decodePostings() = %v, want %v", got, want)
	}
	for id, freq := range want {
		if got[id] != freq {
			t.Errorf("decodePostings()[%s] = %d, want %d", id, got[id], freq)
		}
	}
}

func TestDecodePostings_TruncatedIDBytesIsCorruption(t *testing.T) {
	data := encodePostings(map[string]uint32{"doc1": 1})
	truncated := data[:len(data)-6] // cuts into the id bytes, before the frequency field
	_, err := decodePostings(truncated)
	if err == nil {
		t.Fatalf("decodePostings(truncated) error = nil, want ErrCorruption")
	}
	if !errors.Is(err, types.ErrCorruption) {
		t.Errorf("decodePostings(truncated) error = %v, want ErrCorruption", err)
	}
}

func TestDecodeDocLen_RoundTrip(t *testing.T) {
	length, terms, err := decodeDocLen(encodeDocLen(5, []string{"rust", "go"}))
	if err != nil {
		t.Fatalf("decodeDocLen() error = %v", err)
	}
	if length != 5 || len(terms) != 2 {
		t.Errorf("decodeDocLen() = (%d, %v), want (5, [rust go])", length, terms)
	}
}

func TestDecodeDocLen_TruncatedTermBytesIsCorruption(t *testing.T) {
	data := encodeDocLen(5, []string{"rust", "go"})
	truncated := data[:len(data)-1] // cuts into the last term's bytes
	_, _, err := decodeDocLen(truncated)
	if err == nil {
		t.Fatalf("decodeDocLen(truncated) error = nil, want ErrCorruption")
	}
	if !errors.Is(err, types.ErrCorruption) {
		t.Errorf("decodeDocLen(truncated) error = %v, want ErrCorruption", err)
	}
}
