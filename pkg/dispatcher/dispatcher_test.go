package dispatcher_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/dispatcher"
)

func newPair(t *testing.T) (*dispatcher.Dispatcher, *dispatcher.Dispatcher) {
	t.Helper()
	a, b := net.Pipe()

	da := dispatcher.New(zerolog.Nop())
	db := dispatcher.New(zerolog.Nop())
	da.Bind(a)
	db.Bind(b)

	t.Cleanup(func() {
		da.Close()
		db.Close()
	})
	return da, db
}

func channel(tag byte) dispatcher.MessageChannel {
	var c dispatcher.MessageChannel
	c[0] = tag
	return c
}

func TestSendRecvRoundTrip(t *testing.T) {
	da, db := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := channel(1)
	require.NoError(t, da.Send(ctx, ch, []byte("hello")))

	stream := db.Open(ch)
	msg, err := stream.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), msg.Content)
}

func TestDistinctChannelsDoNotInterfere(t *testing.T) {
	da, db := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	chA := channel(1)
	chB := channel(2)

	require.NoError(t, da.Send(ctx, chB, []byte("for-b")))
	require.NoError(t, da.Send(ctx, chA, []byte("for-a")))

	streamA := db.Open(chA)
	msgA, err := streamA.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("for-a"), msgA.Content)

	streamB := db.Open(chB)
	msgB, err := streamB.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("for-b"), msgB.Content)
}

func TestRecvBlocksUntilContextCancelled(t *testing.T) {
	_, db := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	stream := db.Open(channel(9))
	_, err := stream.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseUnblocksPendingRecv(t *testing.T) {
	da, db := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream := db.Open(channel(5))

	done := make(chan error, 1)
	go func() {
		_, err := stream.Recv(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	da.Close()
	db.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestStatsCountBytesSentAndReceived(t *testing.T) {
	da, db := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := channel(1)
	require.NoError(t, da.Send(ctx, ch, []byte("hello")))

	stream := db.Open(ch)
	_, err := stream.Recv(ctx)
	require.NoError(t, err)

	assert.Positive(t, da.Stats().BytesSent)
	assert.Positive(t, db.Stats().BytesReceived)
	assert.Equal(t, da.Stats().BytesSent, db.Stats().BytesReceived)
}

func TestSendFailsWithNoSinkBound(t *testing.T) {
	d := dispatcher.New(zerolog.Nop())
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := d.Send(ctx, channel(1), []byte("x"))
	assert.Error(t, err)
}
