package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/dispatcher"
	"github.com/J-Pabon/ouisync/pkg/protocol"
	"github.com/J-Pabon/ouisync/pkg/transport"
)

// TestConnectorDialAndAcceptReachActiveAndRegister exercises the full
// per-connection state machine over a real TCP loopback: a listening
// Connector accepts and handshakes an inbound connection while a dialing
// Connector drives the outbound side, and both sides end up registering
// each other's runtime id once the handshake completes.
func TestConnectorDialAndAcceptReachActiveAndRegister(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listenEndpoint := config.Endpoint{Proto: config.ProtoTCP, Family: config.FamilyV4, Address: "127.0.0.1:0"}
	ln, err := transport.Listen(listenEndpoint)
	require.NoError(t, err)
	listenEndpoint.Address = ln.Addr().String()
	ln.Close()
	dialEndpoint := config.Endpoint{Proto: config.ProtoTCP, Family: config.FamilyV4, Address: listenEndpoint.Address}

	serverKey, err := crypto.GenerateWriteKey()
	require.NoError(t, err)
	clientKey, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	serverConnector := &protocol.Connector{
		Local:    serverKey,
		Permit:   protocol.NewConnectionPermit(),
		Registry: protocol.NewRegistry(nil),
		Disp:     dispatcher.New(zerolog.Nop()),
		Log:      zerolog.Nop(),
	}
	clientConnector := &protocol.Connector{
		Local:    clientKey,
		Permit:   protocol.NewConnectionPermit(),
		Registry: protocol.NewRegistry(nil),
		Disp:     dispatcher.New(zerolog.Nop()),
		Log:      zerolog.Nop(),
	}
	defer serverConnector.Disp.Close()
	defer clientConnector.Disp.Close()

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	// AcceptLoop needs its own listener bound to the same address; re-listen
	// now that the probe above freed the ephemeral port.
	go func() {
		serverConnector.AcceptLoop(runCtx, listenEndpoint)
	}()
	time.Sleep(20 * time.Millisecond)

	go func() {
		clientConnector.DialLoop(runCtx, dialEndpoint)
	}()

	require.Eventually(t, func() bool {
		return clientConnector.Registry.Contains(serverKey.WriterID())
	}, 3*time.Second, 20*time.Millisecond, "client never registered the server's runtime id")

	require.Eventually(t, func() bool {
		return serverConnector.Registry.Contains(clientKey.WriterID())
	}, 3*time.Second, 20*time.Millisecond, "server never registered the client's runtime id")

	runCancel()

	require.Eventually(t, func() bool {
		return len(clientConnector.Registry.Snapshot()) == 0 && len(serverConnector.Registry.Snapshot()) == 0
	}, 3*time.Second, 20*time.Millisecond, "registries did not clear out after cancellation")
}
