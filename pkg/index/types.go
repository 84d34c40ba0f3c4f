package index

import "github.com/J-Pabon/ouisync/pkg/crypto"

// InnerLayerCount is the number of inner-node layers between a RootNode and
// its LeafNode sets.
const InnerLayerCount = 3

// BucketCount is the number of children an inner node may have: one per
// possible byte value of the locator at that layer.
const BucketCount = 256

// BlockPresenceKind summarizes how much of a subtree's referenced block
// content is locally present.
type BlockPresenceKind int

const (
	PresenceNone BlockPresenceKind = iota
	PresenceSome
	PresenceFull
)

func (k BlockPresenceKind) String() string {
	switch k {
	case PresenceNone:
		return "none"
	case PresenceSome:
		return "some"
	case PresenceFull:
		return "full"
	default:
		return "unknown"
	}
}

// Summary is the (is_complete, block_presence) pair cached at every root
// and inner node, recomputed bottom-up by UpdateSummaries.
type Summary struct {
	IsComplete   bool
	Presence     BlockPresenceKind
	PresentCount int
}

// EmptySummary is trivially complete with nothing to present: the summary
// of a subtree whose hash is EmptyHash.
var EmptySummary = Summary{IsComplete: true, Presence: PresenceFull}

// EmptyHash is the reserved hash of an empty children collection (an empty
// inner-node bucket map or an empty leaf set). A node whose hash equals
// EmptyHash is trivially complete regardless of whether any row for it
// exists in the database.
var EmptyHash = crypto.HashBytes(nil)

// RootNode is one writer's snapshot.
type RootNode struct {
	SnapshotID int64
	Proof      crypto.Proof
	Summary    Summary
}

func (n RootNode) WriterID() crypto.WriterID { return n.Proof.Writer }
func (n RootNode) Hash() crypto.Hash         { return n.Proof.RootHash }

// InnerNode is one interior Merkle node: one of up to BucketCount children
// of a parent hash, keyed by bucket.
type InnerNode struct {
	ParentHash crypto.Hash
	Bucket     byte
	Hash       crypto.Hash
	Summary    Summary
}

// LeafNode maps one locator to the block id believed to live there.
type LeafNode struct {
	ParentHash crypto.Hash
	Locator    crypto.LocatorHash
	BlockID    crypto.BlockID
	IsMissing  bool
}

// BucketPath returns the three bucket bytes (one per inner layer) that a
// locator hashes into, innermost layer last. pkg/repository uses this
// to walk from a RootNode down to the LeafNode set that should contain a
// given locator.
func BucketPath(locator crypto.LocatorHash) [InnerLayerCount]byte {
	var path [InnerLayerCount]byte
	copy(path[:], locator[:InnerLayerCount])
	return path
}
