package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/errs"
)

// keepAliveInterval is how often a QUIC connection sends a PING frame to
// keep NAT mappings alive, independent of pkg/dispatcher's own keep-alive.
const keepAliveInterval = 15 * time.Second

// Stream is one full-duplex byte connection to a peer, suitable for binding
// directly to a pkg/dispatcher.Dispatcher.
type Stream = io.ReadWriteCloser

// Listener accepts inbound Streams on a bound local endpoint.
type Listener interface {
	Accept(ctx context.Context) (Stream, error)
	Addr() net.Addr
	Close() error
}

// Listen binds endpoint and returns a Listener for accepting inbound
// connections from peers.
func Listen(endpoint config.Endpoint) (Listener, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	switch endpoint.Proto {
	case config.ProtoTCP:
		return listenTCP(endpoint)
	case config.ProtoQUIC:
		return listenQUIC(endpoint)
	default:
		return nil, fmt.Errorf("transport: unsupported protocol %q: %w", endpoint.Proto, errs.OperationNotSupported)
	}
}

// Dial opens an outbound Stream to endpoint.
func Dial(ctx context.Context, endpoint config.Endpoint) (Stream, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	switch endpoint.Proto {
	case config.ProtoTCP:
		return dialTCP(ctx, endpoint)
	case config.ProtoQUIC:
		return dialQUIC(ctx, endpoint)
	default:
		return nil, fmt.Errorf("transport: unsupported protocol %q: %w", endpoint.Proto, errs.OperationNotSupported)
	}
}

func networkFor(family config.Family, base string) string {
	if family == config.FamilyV6 {
		return base + "6"
	}
	return base + "4"
}
