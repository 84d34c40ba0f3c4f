package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/dispatcher"
	"github.com/J-Pabon/ouisync/pkg/events"
	"github.com/J-Pabon/ouisync/pkg/transport"
)

// Connector drives peer connections through the §4.6 per-connection state
// machine: dial or accept, Handshake, bind the authenticated stream onto a
// Dispatcher, and publish the connection's lifetime through a Registry.
// Outbound attempts that fail before reaching StateActive retry with
// Backoff; a ConnectionPermit ensures at most one outbound attempt to a
// given address is ever in flight at once.
type Connector struct {
	Local    crypto.WriteKey
	Permit   *ConnectionPermit
	Registry *Registry
	Disp     *dispatcher.Dispatcher
	Broker   *events.Broker
	Log      zerolog.Logger
}

// DialLoop repeatedly dials address via transport.Dial until it produces a
// connection that reaches StateActive, then stays in this call until that
// connection drops, at which point it dials again. It returns only when ctx
// is done, or immediately if an outbound attempt to address is already in
// flight elsewhere.
func (c *Connector) DialLoop(ctx context.Context, endpoint config.Endpoint) error {
	address := endpoint.Address
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		release, ok := c.Permit.AcquireOutbound(address)
		if !ok {
			c.Log.Debug().Str("address", address).Msg("outbound attempt already in flight, skipping")
			return nil
		}

		stream, err := transport.Dial(ctx, endpoint)
		if err != nil {
			release()
			c.Log.Debug().Err(err).Str("address", address).Int("attempt", attempt).Msg("dial failed")
			if !c.sleepBackoff(ctx, attempt) {
				return ctx.Err()
			}
			attempt++
			continue
		}

		if err := c.run(ctx, stream, address); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.Log.Debug().Err(err).Str("address", address).Int("attempt", attempt).Msg("connection ended")
		}
		release()

		if err := ctx.Err(); err != nil {
			return err
		}
		attempt = 0
	}
}

// AcceptLoop binds endpoint with transport.Listen and runs the inbound half
// of the state machine for every connection it accepts, until ctx is done
// or the listener itself fails.
func (c *Connector) AcceptLoop(ctx context.Context, endpoint config.Endpoint) error {
	ln, err := transport.Listen(endpoint)
	if err != nil {
		return fmt.Errorf("protocol: connector: listen %s: %w", endpoint.Address, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		stream, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("protocol: connector: accept on %s: %w", endpoint.Address, err)
		}

		go func() {
			if err := c.run(ctx, stream, endpoint.Address); err != nil {
				c.Log.Debug().Err(err).Str("address", endpoint.Address).Msg("inbound connection ended")
			}
		}()
	}
}

// run takes one freshly dialed or accepted stream from StateConnecting
// through StateHandshaking to StateActive, registers it, and blocks until
// it drops (or ctx ends), releasing it from the Registry before returning.
func (c *Connector) run(ctx context.Context, stream transport.Stream, address string) error {
	peerID, err := Handshake(ctx, stream, c.Local)
	if err != nil {
		stream.Close()
		var mismatch *Mismatch
		if errors.As(err, &mismatch) && c.Broker != nil {
			c.Broker.Publish(events.Event{
				Type: events.EventProtocolVersionMismatch,
				Payload: events.ProtocolVersionMismatchPayload{
					PeerVersion: mismatch.PeerVersion,
					OurVersion:  mismatch.OurVersion,
				},
			})
		}
		return fmt.Errorf("protocol: connector: handshake: %w", err)
	}

	wrapped, closed := wrapNotifyingClose(stream)
	c.Disp.Bind(wrapped)

	c.Registry.Join(PeerInfo{RuntimeID: peerID, Address: address, State: StateActive})
	c.publishPeerSetChange(peerID, true)

	select {
	case <-closed:
	case <-ctx.Done():
	}

	c.Registry.Leave(peerID)
	c.publishPeerSetChange(peerID, false)

	return ctx.Err()
}

func (c *Connector) publishPeerSetChange(peerID crypto.WriterID, connected bool) {
	if c.Broker == nil {
		return
	}
	c.Broker.Publish(events.Event{
		Type:    events.EventPeerSetChange,
		Payload: events.PeerSetChangePayload{RuntimeID: peerID, Connected: connected},
	})
}

func (c *Connector) sleepBackoff(ctx context.Context, attempt int) bool {
	select {
	case <-time.After(Backoff(attempt)):
		return true
	case <-ctx.Done():
		return false
	}
}

// notifyingCloser wraps a transport.Stream so that run learns when the Dispatcher drops it, without the Dispatcher itself
// needing to expose any per-stream lifecycle hook.
type notifyingCloser struct {
	io.ReadWriteCloser
	once   sync.Once
	closed chan struct{}
}

func wrapNotifyingClose(s transport.Stream) (io.ReadWriteCloser, <-chan struct{}) {
	n := &notifyingCloser{ReadWriteCloser: s, closed: make(chan struct{})}
	return n, n.closed
}

func (n *notifyingCloser) Close() error {
	err := n.ReadWriteCloser.Close()
	n.once.Do(func() { close(n.closed) })
	return err
}
