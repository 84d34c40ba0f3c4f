package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/dispatcher"
	"github.com/J-Pabon/ouisync/pkg/index"
	"github.com/J-Pabon/ouisync/pkg/store"
)

func openServerTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(config.Config{Temp: true}, crypto.RepositoryID{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedServerTestRoot(t *testing.T, ctx context.Context, s *store.Store) crypto.WriteKey {
	t.Helper()
	db := s.DB()

	key, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	leafSetHash := index.HashLeafSet(nil)
	require.NoError(t, index.SaveLeafChildren(ctx, db, leafSetHash, nil))

	vv := crypto.NewVersionVector().Incr(key.WriterID())
	proof := crypto.SignProof(key, vv, leafSetHash)

	_, created, err := index.CreateRoot(ctx, db, proof, index.Summary{})
	require.NoError(t, err)
	require.True(t, created)

	_, err = index.UpdateSummaries(ctx, db, leafSetHash)
	require.NoError(t, err)

	return key
}

// TestBroadcastRootsSuppressesResendOnUnchangedHash exercises the decision
// recorded for the re-broadcast open question: a changed notification that
// does not move a writer's latest-complete root hash produces no second
// RootNode response.
func TestBroadcastRootsSuppressesResendOnUnchangedHash(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := openServerTestStore(t)
	seedServerTestRoot(t, ctx, s)

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	dispA := dispatcher.New(zerolog.Nop())
	dispB := dispatcher.New(zerolog.Nop())
	defer dispA.Close()
	defer dispB.Close()
	dispA.Bind(connA)
	dispB.Bind(connB)

	var ch dispatcher.MessageChannel
	outgoing := dispA.Open(ch)
	incoming := dispB.Open(ch)

	server := newServer(s.DB(), outgoing, zerolog.Nop())

	require.NoError(t, server.broadcastRoots(ctx))

	_, err := incoming.Recv(ctx)
	require.NoError(t, err, "first broadcast must reach the peer")

	require.NoError(t, server.broadcastRoots(ctx))

	recvCtx, recvCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer recvCancel()
	_, err = incoming.Recv(recvCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "resend on an unchanged root hash must be suppressed")
}

func TestShouldBroadcastTracksPerWriterLastHash(t *testing.T) {
	server := &Server{lastBroadcast: make(map[crypto.WriterID]crypto.Hash)}

	writer := crypto.WriterID(crypto.HashBytes([]byte("writer")))
	hashA := crypto.HashBytes([]byte("a"))
	hashB := crypto.HashBytes([]byte("b"))

	assert.True(t, server.shouldBroadcast(writer, hashA))
	server.markBroadcast(writer, hashA)

	assert.False(t, server.shouldBroadcast(writer, hashA))
	assert.True(t, server.shouldBroadcast(writer, hashB))
}
