package transport_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/transport"
)

func TestTCPRoundTrip(t *testing.T) {
	endpoint := config.Endpoint{Proto: config.ProtoTCP, Family: config.FamilyV4, Address: "127.0.0.1:0"}

	ln, err := transport.Listen(endpoint)
	require.NoError(t, err)
	defer ln.Close()

	dialEndpoint := endpoint
	dialEndpoint.Address = ln.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		stream, err := ln.Accept(ctx)
		if err != nil {
			serverDone <- err
			return
		}
		defer stream.Close()
		buf := make([]byte, len("ping"))
		if _, err := io.ReadFull(stream, buf); err != nil {
			serverDone <- err
			return
		}
		if string(buf) != "ping" {
			serverDone <- assert.AnError
			return
		}
		_, err = stream.Write([]byte("pong"))
		serverDone <- err
	}()

	clientStream, err := transport.Dial(ctx, dialEndpoint)
	require.NoError(t, err)
	defer clientStream.Close()

	_, err = clientStream.Write([]byte("ping"))
	require.NoError(t, err)

	reply := make([]byte, len("pong"))
	_, err = io.ReadFull(clientStream, reply)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(reply))

	require.NoError(t, <-serverDone)
}

func TestListenRejectsUnknownProtocol(t *testing.T) {
	_, err := transport.Listen(config.Endpoint{Proto: "SCTP", Family: config.FamilyV4, Address: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestDialRejectsInvalidEndpoint(t *testing.T) {
	_, err := transport.Dial(context.Background(), config.Endpoint{Proto: config.ProtoTCP, Family: config.FamilyV4})
	assert.Error(t, err)
}
