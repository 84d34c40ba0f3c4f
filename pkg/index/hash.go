package index

import (
	"sort"

	"github.com/J-Pabon/ouisync/pkg/crypto"
)

// HashInnerLayer computes the hash an inner node's parent stores, from the
// (bucket -> child hash) map of that node's own children. An empty map
// hashes to EmptyHash, matching "a subtree whose hash equals the empty-set
// hash is trivially complete".
func HashInnerLayer(children map[byte]crypto.Hash) crypto.Hash {
	if len(children) == 0 {
		return EmptyHash
	}

	buckets := make([]byte, 0, len(children))
	for b := range children {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	parts := make([][]byte, 0, len(buckets)*2)
	for _, b := range buckets {
		h := children[b]
		parts = append(parts, []byte{b}, h[:])
	}
	return crypto.HashBytes(parts...)
}

// HashLeafSet computes the hash an inner node's parent stores for a leaf
// layer, from that layer's full set of leaves. Order-independent: leaves
// are sorted by locator before hashing, so two leaf sets with the same
// members always hash identically regardless of insertion order.
func HashLeafSet(leaves []LeafNode) crypto.Hash {
	if len(leaves) == 0 {
		return EmptyHash
	}

	sorted := make([]LeafNode, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].Locator[:]) < string(sorted[j].Locator[:])
	})

	parts := make([][]byte, 0, len(sorted)*2)
	for _, l := range sorted {
		parts = append(parts, l.Locator[:], l.BlockID[:])
	}
	return crypto.HashBytes(parts...)
}
