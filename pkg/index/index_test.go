package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/index"
	"github.com/J-Pabon/ouisync/pkg/store"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(config.Config{Temp: true}, crypto.RepositoryID{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// buildOneLeafTree writes a root -> single inner node -> single leaf tree
// and returns the writer key, the leaf's locator/block id, and the hashes
// involved.
func buildOneLeafTree(t *testing.T, ctx context.Context, db store.Querier) (crypto.WriteKey, crypto.LocatorHash, crypto.BlockID, crypto.Hash, crypto.Hash) {
	t.Helper()

	key, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	locator := crypto.LocatorHash(crypto.HashBytes([]byte("locator-1")))
	blockID := crypto.BlockIDOf([]byte("block content"))

	leaf := index.LeafNode{Locator: locator, BlockID: blockID, IsMissing: true}
	leafSetHash := index.HashLeafSet([]index.LeafNode{leaf})
	require.NoError(t, index.SaveLeafChildren(ctx, db, leafSetHash, []index.LeafNode{leaf}))

	innerHash := index.HashInnerLayer(map[byte]crypto.Hash{0: leafSetHash})
	require.NoError(t, index.SaveInnerChildren(ctx, db, innerHash, map[byte]crypto.Hash{0: leafSetHash}))

	rootHash := index.HashInnerLayer(map[byte]crypto.Hash{0: innerHash})
	require.NoError(t, index.SaveInnerChildren(ctx, db, rootHash, map[byte]crypto.Hash{0: innerHash}))

	vv := crypto.NewVersionVector().Incr(key.WriterID())
	proof := crypto.SignProof(key, vv, rootHash)

	_, created, err := index.CreateRoot(ctx, db, proof, index.Summary{})
	require.NoError(t, err)
	require.True(t, created)

	return key, locator, blockID, leafSetHash, innerHash
}

func TestCreateRootRejectsInvalidSignature(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	key, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	proof := crypto.SignProof(key, crypto.NewVersionVector().Incr(key.WriterID()), crypto.HashBytes([]byte("root")))
	proof.RootHash = crypto.HashBytes([]byte("tampered"))

	_, _, err = index.CreateRoot(ctx, s.DB(), proof, index.Summary{})
	assert.ErrorIs(t, err, errs.Malformed)
}

func TestCreateRootRejectsNonAdvancingVersionVector(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	key, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	vv := crypto.NewVersionVector().Incr(key.WriterID())
	root1 := crypto.HashBytes([]byte("root-1"))
	proof1 := crypto.SignProof(key, vv, root1)

	_, created, err := index.CreateRoot(ctx, s.DB(), proof1, index.Summary{})
	require.NoError(t, err)
	require.True(t, created)

	root2 := crypto.HashBytes([]byte("root-2"))
	proof2 := crypto.SignProof(key, vv, root2) // same version vector, different hash

	_, created, err = index.CreateRoot(ctx, s.DB(), proof2, index.Summary{})
	assert.False(t, created)
	assert.ErrorIs(t, err, errs.EntryExists)
}

func TestCreateRootIsIdempotentForSameWriterHash(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	key, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	vv := crypto.NewVersionVector().Incr(key.WriterID())
	root := crypto.HashBytes([]byte("root"))
	proof := crypto.SignProof(key, vv, root)

	n1, created, err := index.CreateRoot(ctx, s.DB(), proof, index.Summary{})
	require.NoError(t, err)
	require.True(t, created)

	n2, created, err := index.CreateRoot(ctx, s.DB(), proof, index.Summary{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, n1.SnapshotID, n2.SnapshotID)
}

func TestUpdateSummariesPropagatesCompleteness(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	key, _, _, leafSetHash, innerHash := buildOneLeafTree(t, ctx, s.DB())

	node, ok, err := index.LoadLatestByWriter(ctx, s.DB(), key.WriterID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, node.Summary.IsComplete)

	// Updating the leaf layer's summary cascades all the way up through the
	// inner layer to the root in a single call.
	becameComplete, err := index.UpdateSummaries(ctx, s.DB(), leafSetHash)
	require.NoError(t, err)
	assert.True(t, becameComplete)
	_ = innerHash

	node, ok, err = index.LoadLatestByWriter(ctx, s.DB(), key.WriterID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, node.Summary.IsComplete)
	assert.Equal(t, index.PresenceNone, node.Summary.Presence)

	complete, ok, err := index.LoadLatestCompleteByWriter(ctx, s.DB(), key.WriterID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, node.SnapshotID, complete.SnapshotID)
}

func TestUpdateSummariesIsIdempotent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, _, _, leafSetHash, innerHash := buildOneLeafTree(t, ctx, s.DB())
	_ = innerHash

	changed, err := index.UpdateSummaries(ctx, s.DB(), leafSetHash)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = index.UpdateSummaries(ctx, s.DB(), leafSetHash)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = index.UpdateSummaries(ctx, s.DB(), innerHash)
	require.NoError(t, err)
	assert.False(t, changed, "already propagated by the first leaf-layer update")
}

func TestMarkBlockPresentUpdatesPresenceUpward(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	key, locator, _, leafSetHash, innerHash := buildOneLeafTree(t, ctx, s.DB())
	_ = innerHash

	_, err := index.UpdateSummaries(ctx, s.DB(), leafSetHash)
	require.NoError(t, err)

	require.NoError(t, index.MarkBlockPresent(ctx, s.DB(), leafSetHash, locator))

	_, err = index.UpdateSummaries(ctx, s.DB(), leafSetHash)
	require.NoError(t, err)

	node, ok, err := index.LoadLatestByWriter(ctx, s.DB(), key.WriterID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, index.PresenceFull, node.Summary.Presence)
}

func TestMarkBlockPresentUnknownLeafReturnsNotFound(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	err := index.MarkBlockPresent(ctx, s.DB(), crypto.HashBytes([]byte("no-such-parent")), crypto.LocatorHash{})
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestEmptyHashIsTriviallyComplete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	becameComplete, err := index.UpdateSummaries(ctx, s.DB(), index.EmptyHash)
	require.NoError(t, err)
	assert.False(t, becameComplete) // nothing references EmptyHash as a parent in this test
}
