package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/J-Pabon/ouisync/pkg/config"
)

type quicListener struct {
	ln *quic.Listener
}

func listenQUIC(endpoint config.Endpoint) (Listener, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, err
	}

	network := networkFor(endpoint.Family, "udp")
	addr, err := net.ResolveUDPAddr(network, endpoint.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve quic bind address: %w", err)
	}
	udpConn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}

	ln, err := (&quic.Transport{Conn: udpConn}).Listen(tlsConf, &quic.Config{KeepAlivePeriod: keepAliveInterval})
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("transport: listen quic: %w", err)
	}
	return &quicListener{ln: ln}, nil
}

func (l *quicListener) Accept(ctx context.Context) (Stream, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept quic connection: %w", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept quic stream: %w", err)
	}
	return stream, nil
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }
func (l *quicListener) Close() error   { return l.ln.Close() }

func dialQUIC(ctx context.Context, endpoint config.Endpoint) (Stream, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, err
	}

	conn, err := quic.DialAddr(ctx, endpoint.Address, tlsConf, &quic.Config{KeepAlivePeriod: keepAliveInterval})
	if err != nil {
		return nil, fmt.Errorf("transport: dial quic: %w", err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open quic stream: %w", err)
	}
	return stream, nil
}
