package protocol

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/dispatcher"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/events"
	"github.com/J-Pabon/ouisync/pkg/missingparts"
)

// Session runs one repository's Client and Server over a single
// dispatcher.ContentStream. Both halves exchange Request and Response
// messages on the same channel (one per repository, per peer), so exactly
// one goroutine reads from the stream and demultiplexes by message kind;
// Client and Server never call Recv themselves.
type Session struct {
	stream *dispatcher.ContentStream
	client *Client
	server *Server
	log    zerolog.Logger
}

// NewSession wires a Client and Server for one repository against a peer,
// sharing stream for both directions of traffic.
func NewSession(
	db *sql.DB,
	stream *dispatcher.ContentStream,
	tracker *missingparts.Tracker[crypto.BlockID],
	broker *events.Broker,
	repositoryID crypto.RepositoryID,
	log zerolog.Logger,
) *Session {
	return &Session{
		stream: stream,
		client: newClient(db, stream, tracker, broker, repositoryID, log),
		server: newServer(db, stream, log),
		log:    log.With().Str("component", "session").Logger(),
	}
}

// Run drives the session until ctx is cancelled or one of its component
// loops fails. changed signals that the local index gained new complete
// content the server should (re-)broadcast.
func (s *Session) Run(ctx context.Context, changed <-chan struct{}) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.server.broadcastLoop(ctx, changed) })
	g.Go(func() error { return s.client.pullLoop(ctx) })
	g.Go(func() error { return s.recvLoop(ctx) })

	err := g.Wait()
	s.client.trackerClnt.Drop()
	return err
}

// recvLoop is the session's one and only reader of stream. A malformed
// message (bad kind, undecodable payload, a hash or signature that fails
// verification downstream) is treated as fatal: the session, and with it
// the underlying connection, is torn down rather than resynchronized,
// since there is no way to know how much of the peer's framing state is
// still trustworthy.
func (s *Session) recvLoop(ctx context.Context) error {
	for {
		msg, err := s.stream.Recv(ctx)
		if err != nil {
			return err
		}

		kind, err := PeekKind(msg.Content)
		if err != nil {
			return fmt.Errorf("protocol: session: %w", err)
		}

		switch kind {
		case KindRequest:
			req, err := DecodeRequest(msg.Content)
			if err != nil {
				return fmt.Errorf("protocol: session: %w", err)
			}
			if err := s.server.handleRequest(ctx, req); err != nil {
				return err
			}
		case KindResponse:
			resp, err := DecodeResponse(msg.Content)
			if err != nil {
				return fmt.Errorf("protocol: session: %w", err)
			}
			if err := s.client.handleResponse(ctx, resp); err != nil {
				return err
			}
		default:
			return fmt.Errorf("protocol: session: unknown message kind %d: %w", kind, errs.Malformed)
		}
	}
}
