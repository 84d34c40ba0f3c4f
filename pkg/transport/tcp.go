package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/J-Pabon/ouisync/pkg/config"
)

type tcpListener struct {
	ln net.Listener
}

func listenTCP(endpoint config.Endpoint) (Listener, error) {
	ln, err := net.Listen(networkFor(endpoint.Family, "tcp"), endpoint.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp: %w", err)
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (Stream, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("transport: accept tcp: %w", r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }
func (l *tcpListener) Close() error   { return l.ln.Close() }

func dialTCP(ctx context.Context, endpoint config.Endpoint) (Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, networkFor(endpoint.Family, "tcp"), endpoint.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp: %w", err)
	}
	return conn, nil
}
