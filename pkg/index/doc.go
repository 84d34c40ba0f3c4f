/*
Package index implements the per-writer Merkle index: RootNode, InnerNode
and LeafNode rows over pkg/store's database, their completeness/block-
presence summaries, and the upward propagation that recomputes those
summaries whenever a subtree's children change.

# Shape

A writer's snapshot is a RootNode: a signed Proof (writer id, version
vector, root hash) plus a Summary. The root hash is the hash of an
InnerNode layer; there are InnerLayerCount such layers before reaching a
LeafNode set. Which of the two child collections a given parent hash has
is determined by how deep it is in the tree, not stored explicitly: a node
at the last inner layer has leaf children, every other inner node has
inner children, and at most one of LoadInnerChildren / LoadLeafChildren
returns anything for a given parent hash.

The tree deduplicates identical subtrees: two different parents (two
writers with identical content, or two layers that happen to hash the
same) can reference the same child hash. pkg/store's cascade triggers
already account for this when a row is deleted; this package's
UpdateSummaries accounts for it on write, by writing a freshly computed
summary to every row that shares a hash, then continuing upward from each
of their parents.

# Hashing model

Children are hashed bottom-up into their parent's hash field, the same
recursive-hash-over-a-fixed-size-children-array model used by a Merkle
trie (tooss367-go-ethereum's trie/stacktrie.go hashes a node from its
already-hashed children the same way): HashInnerLayer and HashLeafSet in
hash.go fold a node's children into the single hash its parent stores.
*/
package index
