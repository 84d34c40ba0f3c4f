package protocol_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/blockstore"
	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/dispatcher"
	"github.com/J-Pabon/ouisync/pkg/index"
	"github.com/J-Pabon/ouisync/pkg/missingparts"
	"github.com/J-Pabon/ouisync/pkg/protocol"
	"github.com/J-Pabon/ouisync/pkg/store"
)

func openTempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(config.Config{Temp: true}, crypto.RepositoryID{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedOneBlockRepository builds a complete root -> inner -> leaf -> block
// tree in s, owned by a freshly generated writer key, and returns that key.
func seedOneBlockRepository(t *testing.T, ctx context.Context, s *store.Store) crypto.WriteKey {
	t.Helper()
	db := s.DB()

	key, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	content := []byte("a block worth fetching")
	blockID := crypto.BlockIDOf(content)
	var tag [crypto.TagSize]byte
	var nonce [12]byte
	require.NoError(t, blockstore.Put(ctx, db, blockstore.Block{ID: blockID, Content: content, AuthTag: tag, Nonce: nonce}))

	locator := crypto.LocatorHash(crypto.HashBytes([]byte("only-locator")))
	leaf := index.LeafNode{Locator: locator, BlockID: blockID, IsMissing: false}
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

	// Summaries cascade upward from where they're actually computed (leaf
	// presence, inner completeness); starting the update at the leaf layer
	// lets it propagate all the way to the root in one call.
	_, err = index.UpdateSummaries(ctx, db, leafSetHash)
	require.NoError(t, err)

	return key
}

// TestSessionReplicatesCompleteRepositoryToEmptyPeer exercises the full
// server->client flow end to end: a peer with one complete branch gossips
// its root, the other side walks the tree and pulls the single missing
// block, converging to a matching, complete local copy.
func TestSessionReplicatesCompleteRepositoryToEmptyPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seeded := openTempStore(t)
	empty := openTempStore(t)

	writerKey := seedOneBlockRepository(t, ctx, seeded)

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	dispA := dispatcher.New(zerolog.Nop())
	dispB := dispatcher.New(zerolog.Nop())
	defer dispA.Close()
	defer dispB.Close()
	dispA.Bind(connA)
	dispB.Bind(connB)

	var channel dispatcher.MessageChannel
	channel[0] = 1

	streamA := dispA.Open(channel)
	streamB := dispB.Open(channel)

	trackerA := missingparts.NewTracker[crypto.BlockID](nil)
	trackerB := missingparts.NewTracker[crypto.BlockID](nil)

	sessionA := protocol.NewSession(seeded.DB(), streamA, trackerA, nil, crypto.RepositoryID{}, zerolog.Nop())
	sessionB := protocol.NewSession(empty.DB(), streamB, trackerB, nil, crypto.RepositoryID{}, zerolog.Nop())

	changedA := make(chan struct{})
	changedB := make(chan struct{})

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	go sessionA.Run(runCtx, changedA)
	go sessionB.Run(runCtx, changedB)

	require.Eventually(t, func() bool {
		node, ok, err := index.LoadLatestCompleteByWriter(ctx, empty.DB(), writerKey.WriterID())
		return err == nil && ok && node.Summary.Presence == index.PresenceFull
	}, 4*time.Second, 20*time.Millisecond, "peer did not converge to a complete, fully-present replica")

	node, ok, err := index.LoadLatestCompleteByWriter(ctx, empty.DB(), writerKey.WriterID())
	require.NoError(t, err)
	require.True(t, ok)

	inner, err := index.LoadInnerChildren(ctx, empty.DB(), node.Proof.RootHash)
	require.NoError(t, err)
	require.Contains(t, inner, byte(0))

	leafSetHash := inner[0].Hash
	leaves, err := index.LoadLeafChildren(ctx, empty.DB(), leafSetHash)
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.False(t, leaves[0].IsMissing)

	block, err := blockstore.Get(ctx, empty.DB(), leaves[0].BlockID)
	require.NoError(t, err)
	assert.Equal(t, []byte("a block worth fetching"), block.Content)
}
