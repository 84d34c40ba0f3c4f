package crypto

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/elliotchance/orderedmap"

	"github.com/J-Pabon/ouisync/pkg/errs"
)

// Ordering is the result of comparing two version vectors under the partial
// order a <= b iff a[w] <= b[w] for every writer w.
type Ordering int

const (
	Equal Ordering = iota
	Less
	Greater
	Concurrent
)

// VersionVectorEntry is one writer/counter pair, used by Entries for
// canonical iteration and logging.
type VersionVectorEntry struct {
	Writer  WriterID
	Counter uint64
}

// VersionVector maps writer ids to monotonically increasing counters. The
// internal ordered map preserves insertion order for human-friendly
// iteration; Encode always produces the writer-id-sorted canonical form
// used for signing and for the wire.
type VersionVector struct {
	om *orderedmap.OrderedMap
}

// NewVersionVector returns an empty version vector.
func NewVersionVector() VersionVector {
	return VersionVector{om: orderedmap.NewOrderedMap()}
}

// Get returns w's counter, or 0 if w has no entry.
func (vv VersionVector) Get(w WriterID) uint64 {
	if vv.om == nil {
		return 0
	}
	v, ok := vv.om.Get(w)
	if !ok {
		return 0
	}
	return v.(uint64)
}

// Len returns the number of writers with a non-zero entry.
func (vv VersionVector) Len() int {
	if vv.om == nil {
		return 0
	}
	return vv.om.Len()
}

// IsZero reports whether the vector has no entries.
func (vv VersionVector) IsZero() bool { return vv.Len() == 0 }

// Clone returns an independent copy of vv.
func (vv VersionVector) Clone() VersionVector {
	out := NewVersionVector()
	if vv.om == nil {
		return out
	}
	for el := vv.om.Front(); el != nil; el = el.Next() {
		out.om.Set(el.Key, el.Value)
	}
	return out
}

// Incr returns a copy of vv with w's counter incremented by one, the
// standard way a writer advances its own clock before signing a new
// snapshot.
func (vv VersionVector) Incr(w WriterID) VersionVector {
	out := vv.Clone()
	out.om.Set(w, vv.Get(w)+1)
	return out
}

// Merge returns the component-wise maximum of vv and other, the join used
// when adopting a peer's branch state.
func (vv VersionVector) Merge(other VersionVector) VersionVector {
	out := vv.Clone()
	if other.om == nil {
		return out
	}
	for el := other.om.Front(); el != nil; el = el.Next() {
		w := el.Key.(WriterID)
		ov := el.Value.(uint64)
		if ov > out.Get(w) {
			out.om.Set(w, ov)
		}
	}
	return out
}

// Entries returns vv's entries sorted by writer id, for deterministic
// logging/debugging and as the basis for Encode.
func (vv VersionVector) Entries() []VersionVectorEntry {
	if vv.om == nil {
		return nil
	}
	entries := make([]VersionVectorEntry, 0, vv.om.Len())
	for el := vv.om.Front(); el != nil; el = el.Next() {
		entries = append(entries, VersionVectorEntry{
			Writer:  el.Key.(WriterID),
			Counter: el.Value.(uint64),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Writer.Bytes()) < string(entries[j].Writer.Bytes())
	})
	return entries
}

// Compare returns the partial-order relationship of vv to other.
func (vv VersionVector) Compare(other VersionVector) Ordering {
	lessFound, greaterFound := false, false

	writers := make(map[WriterID]struct{})
	for _, e := range vv.Entries() {
		writers[e.Writer] = struct{}{}
	}
	for _, e := range other.Entries() {
		writers[e.Writer] = struct{}{}
	}

	for w := range writers {
		a, b := vv.Get(w), other.Get(w)
		switch {
		case a < b:
			lessFound = true
		case a > b:
			greaterFound = true
		}
	}

	switch {
	case !lessFound && !greaterFound:
		return Equal
	case lessFound && !greaterFound:
		return Less
	case !lessFound && greaterFound:
		return Greater
	default:
		return Concurrent
	}
}

// Encode serializes vv to its canonical, writer-id-sorted byte form: a
// 4-byte big-endian entry count followed by (32-byte writer id, 8-byte
// big-endian counter) pairs. This is the exact byte sequence Proof.Verify
// checks the signature against, so any two semantically-equal vectors must
// produce identical bytes regardless of insertion order.
func (vv VersionVector) Encode() []byte {
	entries := vv.Entries()
	buf := make([]byte, 4, 4+len(entries)*(HashSize+8))
	binary.BigEndian.PutUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, e.Writer.Bytes()...)
		var counter [8]byte
		binary.BigEndian.PutUint64(counter[:], e.Counter)
		buf = append(buf, counter[:]...)
	}
	return buf
}

// DecodeVersionVector parses the form produced by Encode.
func DecodeVersionVector(data []byte) (VersionVector, error) {
	if len(data) < 4 {
		return VersionVector{}, fmt.Errorf("crypto: version vector too short: %w", errs.Malformed)
	}
	count := binary.BigEndian.Uint32(data)
	data = data[4:]

	const entrySize = HashSize + 8
	if len(data) != int(count)*entrySize {
		return VersionVector{}, fmt.Errorf("crypto: version vector length mismatch: %w", errs.Malformed)
	}

	vv := NewVersionVector()
	for i := uint32(0); i < count; i++ {
		entry := data[i*entrySize : (i+1)*entrySize]
		var w WriterID
		copy(w[:], entry[:HashSize])
		counter := binary.BigEndian.Uint64(entry[HashSize:])
		vv.om.Set(w, counter)
	}
	return vv, nil
}
