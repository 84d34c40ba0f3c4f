package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/index"
	"github.com/J-Pabon/ouisync/pkg/log"
	"github.com/J-Pabon/ouisync/pkg/store"
)

// Branch is one writer's view of a repository's Merkle index: resolving
// locators to block ids against that writer's current root, and committing
// batches of locator changes back up into a brand new, signed root.
//
// A read-only Branch (writeKey == nil) can resolve and read but not commit;
// this is what a blind or read-only replica uses to walk another writer's
// tree.
type Branch struct {
	db       store.Querier
	writer   crypto.WriterID
	writeKey *crypto.WriteKey
	readKey  []byte

	log zerolog.Logger
}

// OpenBranch opens the branch belonging to writer. readKey is required to
// derive locators and block keys; writeKey is required only for Commit.
func OpenBranch(db store.Querier, writer crypto.WriterID, readKey []byte, writeKey *crypto.WriteKey) *Branch {
	return &Branch{
		db:       db,
		writer:   writer,
		writeKey: writeKey,
		readKey:  readKey,
		log:      log.WithComponent("repository").With().Str("writer", writer.String()).Logger(),
	}
}

// Root returns this branch's latest root node, if any.
func (b *Branch) Root(ctx context.Context) (index.RootNode, bool, error) {
	return index.LoadLatestByWriter(ctx, b.db, b.writer)
}

// rootHash returns this branch's current root hash, or index.EmptyHash if
// the branch has never committed anything.
func (b *Branch) rootHash(ctx context.Context) (crypto.Hash, error) {
	root, ok, err := b.Root(ctx)
	if err != nil {
		return crypto.Hash{}, err
	}
	if !ok {
		return index.EmptyHash, nil
	}
	return root.Hash(), nil
}

// ResolveLocator walks the bucket path down from this branch's current root
// to find the block id believed to live at locator. Returns ok=false if no
// leaf exists for this locator (the index subtree may simply not have been
// fetched yet, or the locator may genuinely be unused).
func (b *Branch) ResolveLocator(ctx context.Context, locator crypto.LocatorHash) (crypto.BlockID, bool, error) {
	root, ok, err := b.Root(ctx)
	if err != nil || !ok {
		return crypto.BlockID{}, false, err
	}

	leafSetHash, err := b.walkToLeafSet(ctx, root.Hash(), locator)
	if err != nil {
		return crypto.BlockID{}, false, err
	}
	if leafSetHash == index.EmptyHash {
		return crypto.BlockID{}, false, nil
	}

	leaves, err := index.LoadLeafChildren(ctx, b.db, leafSetHash)
	if err != nil {
		return crypto.BlockID{}, false, err
	}
	for _, l := range leaves {
		if l.Locator == locator {
			return l.BlockID, true, nil
		}
	}
	return crypto.BlockID{}, false, nil
}

// walkToLeafSet descends index.InnerLayerCount inner layers from rootHash,
// following the bucket path derived from locator, and returns the hash of
// the leaf set that should contain locator (index.EmptyHash if any layer
// along the way has no child at the required bucket).
func (b *Branch) walkToLeafSet(ctx context.Context, rootHash crypto.Hash, locator crypto.LocatorHash) (crypto.Hash, error) {
	path := index.BucketPath(locator)
	current := rootHash
	for _, bucket := range path {
		if current == index.EmptyHash {
			return index.EmptyHash, nil
		}
		children, err := index.LoadInnerChildren(ctx, b.db, current)
		if err != nil {
			return crypto.Hash{}, err
		}
		child, ok := children[bucket]
		if !ok {
			return index.EmptyHash, nil
		}
		current = child.Hash
	}
	return current, nil
}

// Commit applies a batch of locator -> block id changes (a nil value means
// "remove this locator") to the branch's tree, signs a new root advancing
// this writer's version vector by one, and propagates completeness/
// presence summaries upward from every touched leaf set.
func (b *Branch) Commit(ctx context.Context, updates map[crypto.LocatorHash]*crypto.BlockID) (index.RootNode, error) {
	if b.writeKey == nil {
		return index.RootNode{}, fmt.Errorf("repository: commit: branch opened read-only")
	}
	if len(updates) == 0 {
		root, ok, err := b.Root(ctx)
		if err != nil {
			return index.RootNode{}, err
		}
		if ok {
			return root, nil
		}
	}

	current, err := b.rootHash(ctx)
	if err != nil {
		return index.RootNode{}, err
	}

	var touchedLeafSets []crypto.Hash
	for locator, blockID := range updates {
		newRoot, leafSetHash, err := b.applyOne(ctx, current, locator, blockID)
		if err != nil {
			return index.RootNode{}, fmt.Errorf("repository: commit: %w", err)
		}
		current = newRoot
		touchedLeafSets = append(touchedLeafSets, leafSetHash)
	}

	prevRoot, ok, err := b.Root(ctx)
	if err != nil {
		return index.RootNode{}, err
	}
	vv := crypto.NewVersionVector()
	if ok {
		vv = prevRoot.Proof.VersionVector
	}
	vv = vv.Incr(b.writer)

	proof := crypto.SignProof(*b.writeKey, vv, current)
	root, _, err := index.CreateRoot(ctx, b.db, proof, index.Summary{})
	if err != nil {
		return index.RootNode{}, fmt.Errorf("repository: commit: create root: %w", err)
	}

	for _, h := range touchedLeafSets {
		if _, err := index.UpdateSummaries(ctx, b.db, h); err != nil {
			return index.RootNode{}, fmt.Errorf("repository: commit: update summaries: %w", err)
		}
	}

	b.log.Debug().Int64("snapshot_id", root.SnapshotID).Int("locators", len(updates)).Msg("committed branch")
	return root, nil
}

// applyOne rewrites the single leaf set containing locator, and every inner
// layer above it up to the root, returning the new root hash and the hash
// of the (possibly newly created) leaf set that now holds locator.
func (b *Branch) applyOne(ctx context.Context, rootHash crypto.Hash, locator crypto.LocatorHash, blockID *crypto.BlockID) (newRootHash, leafSetHash crypto.Hash, err error) {
	path := index.BucketPath(locator)

	// Descend, recording each layer's children map (bucket -> child hash)
	// as it was before this update.
	layers := make([]map[byte]crypto.Hash, index.InnerLayerCount)
	current := rootHash
	for i, bucket := range path {
		children, err := index.LoadInnerChildren(ctx, b.db, current)
		if err != nil {
			return crypto.Hash{}, crypto.Hash{}, err
		}
		m := make(map[byte]crypto.Hash, len(children))
		for bk, n := range children {
			m[bk] = n.Hash
		}
		layers[i] = m
		current = m[bucket]
	}

	oldLeafSetHash := current
	leaves, err := index.LoadLeafChildren(ctx, b.db, oldLeafSetHash)
	if err != nil {
		return crypto.Hash{}, crypto.Hash{}, err
	}
	leaves = applyLeafUpdate(leaves, locator, blockID)

	newLeafSetHash = index.HashLeafSet(leaves)
	if err := index.SaveLeafChildren(ctx, b.db, newLeafSetHash, leaves); err != nil {
		return crypto.Hash{}, crypto.Hash{}, err
	}

	// Propagate the new hash back up through the recorded layers, innermost
	// first.
	childHash := newLeafSetHash
	for i := index.InnerLayerCount - 1; i >= 0; i-- {
		bucket := path[i]
		m := layers[i]
		if childHash == index.EmptyHash {
			delete(m, bucket)
		} else {
			m[bucket] = childHash
		}
		newHash := index.HashInnerLayer(m)
		if err := index.SaveInnerChildren(ctx, b.db, newHash, m); err != nil {
			return crypto.Hash{}, crypto.Hash{}, err
		}
		childHash = newHash
	}

	return childHash, newLeafSetHash, nil
}

func applyLeafUpdate(leaves []index.LeafNode, locator crypto.LocatorHash, blockID *crypto.BlockID) []index.LeafNode {
	out := make([]index.LeafNode, 0, len(leaves)+1)
	found := false
	for _, l := range leaves {
		if l.Locator == locator {
			found = true
			if blockID == nil {
				continue // removed
			}
			l.BlockID = *blockID
			l.IsMissing = false
		}
		out = append(out, l)
	}
	if !found && blockID != nil {
		out = append(out, index.LeafNode{Locator: locator, BlockID: *blockID})
	}
	return out
}
