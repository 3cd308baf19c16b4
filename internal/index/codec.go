package index

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/harrowgate/ftsengine/pkg/types"
)

// Binary layouts for the postings, doclen, and meta trees. Length-prefixed
// fields throughout, deterministic and schema-less, following the
// inherited codebase's serialization conventions for dense binary data.

// encodePostings writes a term's doc_id -> term_frequency mapping as:
// uint32 entry count, then per entry: uint16 id length, id bytes, uint32
// frequency.
func encodePostings(postings map[string]uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(postings)))
	for id, freq := range postings {
		binary.Write(&buf, binary.BigEndian, uint16(len(id)))
		buf.WriteString(id)
		binary.Write(&buf, binary.BigEndian, freq)
	}
	return buf.Bytes()
}

func decodePostings(data []byte) (map[string]uint32, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, types.WrapError("index.decodePostings", types.ErrCorruption, err)
	}
	out := make(map[string]uint32, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(r, binary.BigEndian, &idLen); err != nil {
			return nil, types.WrapError("index.decodePostings", types.ErrCorruption, err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return nil, types.WrapError("index.decodePostings", types.ErrCorruption, err)
		}
		var freq uint32
		if err := binary.Read(r, binary.BigEndian, &freq); err != nil {
			return nil, types.WrapError("index.decodePostings", types.ErrCorruption, err)
		}
		out[string(idBytes)] = freq
	}
	return out, nil
}

// encodeDocLen writes the reverse doc->terms lookup (§4.4, §9): document
// length followed by its distinct term set, so delete never needs a full
// postings scan.
func encodeDocLen(length int, terms []string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(length))
	binary.Write(&buf, binary.BigEndian, uint32(len(terms)))
	for _, term := range terms {
		binary.Write(&buf, binary.BigEndian, uint16(len(term)))
		buf.WriteString(term)
	}
	return buf.Bytes()
}

func decodeDocLen(data []byte) (length int, terms []string, err error) {
	r := bytes.NewReader(data)
	var l, count uint32
	if err := binary.Read(r, binary.BigEndian, &l); err != nil {
		return 0, nil, types.WrapError("index.decodeDocLen", types.ErrCorruption, err)
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return 0, nil, types.WrapError("index.decodeDocLen", types.ErrCorruption, err)
	}
	terms = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var termLen uint16
		if err := binary.Read(r, binary.BigEndian, &termLen); err != nil {
			return 0, nil, types.WrapError("index.decodeDocLen", types.ErrCorruption, err)
		}
		termBytes := make([]byte, termLen)
		if _, err := io.ReadFull(r, termBytes); err != nil {
			return 0, nil, types.WrapError("index.decodeDocLen", types.ErrCorruption, err)
		}
		terms = append(terms, string(termBytes))
	}
	return int(l), terms, nil
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, types.Errorf("index.decodeUint64", types.ErrCorruption, "want 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
