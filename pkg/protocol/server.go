package protocol

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/J-Pabon/ouisync/pkg/blockstore"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/dispatcher"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/index"
)

// Server is the serving half of one repository's protocol session: it
// gossips this replica's complete branch roots and answers ChildNodes/Block
// requests from the local database.
type Server struct {
	db     *sql.DB
	stream *dispatcher.ContentStream
	log    zerolog.Logger

	lastBroadcastMu sync.Mutex
	lastBroadcast   map[crypto.WriterID]crypto.Hash
}

func newServer(db *sql.DB, stream *dispatcher.ContentStream, log zerolog.Logger) *Server {
	return &Server{
		db:            db,
		stream:        stream,
		log:           log.With().Str("role", "server").Logger(),
		lastBroadcast: make(map[crypto.WriterID]crypto.Hash),
	}
}

// broadcastLoop sends a RootNode for every complete local branch on start,
// then re-sends on every index-change notification whose branch's
// latest-complete root hash actually moved since the last thing we sent for
// that writer. A notification that touches some other writer, or completes
// without advancing a writer's latest-complete snapshot, produces no
// redundant resend.
func (s *Server) broadcastLoop(ctx context.Context, changed <-chan struct{}) error {
	if err := s.broadcastRoots(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			if err := s.broadcastRoots(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Server) broadcastRoots(ctx context.Context) error {
	roots, err := index.LoadAllLatestComplete(ctx, s.db)
	if err != nil {
		return fmt.Errorf("protocol: server: load complete roots: %w", err)
	}

	for _, root := range roots {
		if !s.shouldBroadcast(root.Proof.Writer, root.Proof.RootHash) {
			continue
		}

		resp := &Response{Tag: RespRootNode}
		resp.RootNode.Proof = EncodeProof(root.Proof)
		resp.RootNode.Summary = encodeSummary(root.Summary)
		if err := s.send(ctx, resp); err != nil {
			return err
		}
		s.markBroadcast(root.Proof.Writer, root.Proof.RootHash)
	}
	return nil
}

// shouldBroadcast reports whether hash differs from the last root hash this
// Server sent for writer, so that an index-change notification which
// leaves a writer's latest-complete snapshot unchanged produces no
// redundant RootNode resend.
func (s *Server) shouldBroadcast(writer crypto.WriterID, hash crypto.Hash) bool {
	s.lastBroadcastMu.Lock()
	defer s.lastBroadcastMu.Unlock()
	last, ok := s.lastBroadcast[writer]
	return !ok || last != hash
}

func (s *Server) markBroadcast(writer crypto.WriterID, hash crypto.Hash) {
	s.lastBroadcastMu.Lock()
	s.lastBroadcast[writer] = hash
	s.lastBroadcastMu.Unlock()
}

func (s *Server) handleRequest(ctx context.Context, req Request) error {
	switch req.Tag {
	case ReqChildNodes:
		return s.answerChildNodes(ctx, req.ParentHash)
	case ReqBlock:
		return s.answerBlock(ctx, req.BlockID)
	default:
		return fmt.Errorf("protocol: server: unknown request tag %d: %w", req.Tag, errs.Malformed)
	}
}

// answerChildNodes reads inner then leaf children under hash; exactly one
// of the two collections is ever non-empty for a given parent hash.
func (s *Server) answerChildNodes(ctx context.Context, hash crypto.Hash) error {
	inner, err := index.LoadInnerChildren(ctx, s.db, hash)
	if err != nil {
		return fmt.Errorf("protocol: server: load inner children: %w", err)
	}
	if len(inner) > 0 {
		children := make(map[byte]crypto.Hash, len(inner))
		for bucket, node := range inner {
			children[bucket] = node.Hash
		}
		return s.send(ctx, &Response{Tag: RespInnerNodes, ParentHash: hash, InnerNodes: children})
	}

	leaves, err := index.LoadLeafChildren(ctx, s.db, hash)
	if err != nil {
		return fmt.Errorf("protocol: server: load leaf children: %w", err)
	}
	if len(leaves) == 0 {
		s.log.Debug().Str("hash", hash.String()).Msg("child nodes requested for unknown hash, skipping")
		return nil
	}

	wire := make([]WireLeafNode, len(leaves))
	for i, l := range leaves {
		wire[i] = WireLeafNode{Locator: l.Locator, BlockID: l.BlockID, IsMissing: l.IsMissing}
	}
	return s.send(ctx, &Response{Tag: RespLeafNodes, ParentHash: hash, LeafNodes: wire})
}

// answerBlock reads id from the local block store. A missing block is
// logged and silently skipped; the client recovers by retrying once it
// learns of the block through a newer snapshot (§4.6 open question: a
// "not-here" reply would let it prune faster, but the source silently
// drops and this implementation follows it).
func (s *Server) answerBlock(ctx context.Context, id crypto.BlockID) error {
	block, err := blockstore.Get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			s.log.Debug().Str("block", id.String()).Msg("block requested but not stored, skipping")
			return nil
		}
		return fmt.Errorf("protocol: server: read block: %w", err)
	}

	return s.send(ctx, &Response{Tag: RespBlock, Block: WireBlock{
		ID:      id,
		Content: block.Content,
		AuthTag: block.AuthTag,
		Nonce:   block.Nonce,
	}})
}

func (s *Server) send(ctx context.Context, resp *Response) error {
	content, err := EncodeMessage(KindResponse, resp)
	if err != nil {
		return fmt.Errorf("protocol: server: encode response: %w", err)
	}
	if err := s.stream.Send(ctx, content); err != nil {
		return fmt.Errorf("protocol: server: send response: %w", err)
	}
	return nil
}

func encodeSummary(s index.Summary) WireSummary {
	return WireSummary{IsComplete: s.IsComplete, Presence: byte(s.Presence), PresentCount: s.PresentCount}
}

func decodeSummary(w WireSummary) index.Summary {
	return index.Summary{IsComplete: w.IsComplete, Presence: index.BlockPresenceKind(w.Presence), PresentCount: w.PresentCount}
}
