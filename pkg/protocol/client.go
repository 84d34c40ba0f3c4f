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
	"github.com/J-Pabon/ouisync/pkg/events"
	"github.com/J-Pabon/ouisync/pkg/index"
	"github.com/J-Pabon/ouisync/pkg/missingparts"
)

// Client is the pulling half of one repository's protocol session: it
// adopts RootNodes a peer announces, walks their index tree, and fetches
// whatever blocks it does not already have.
type Client struct {
	db           *sql.DB
	stream       *dispatcher.ContentStream
	tracker      *missingparts.Tracker[crypto.BlockID]
	trackerClnt  *missingparts.Client[crypto.BlockID]
	broker       *events.Broker
	repositoryID crypto.RepositoryID
	log          zerolog.Logger

	requestedMu sync.Mutex
	requested   map[crypto.Hash]struct{}

	pendingMu sync.Mutex
	pending   map[crypto.BlockID]*missingparts.PartPromise[crypto.BlockID]
}

func newClient(
	db *sql.DB,
	stream *dispatcher.ContentStream,
	tracker *missingparts.Tracker[crypto.BlockID],
	broker *events.Broker,
	repositoryID crypto.RepositoryID,
	log zerolog.Logger,
) *Client {
	return &Client{
		db:           db,
		stream:       stream,
		tracker:      tracker,
		trackerClnt:  tracker.NewClient(),
		broker:       broker,
		repositoryID: repositoryID,
		log:          log.With().Str("role", "client").Logger(),
		requested:    make(map[crypto.Hash]struct{}),
		pending:      make(map[crypto.BlockID]*missingparts.PartPromise[crypto.BlockID]),
	}
}

// pullLoop repeatedly accepts an approved, required, not-yet-accepted block
// offer and issues a Request::Block for it. It runs for the lifetime of the
// session; only ctx cancellation (including the session cancelling it when
// a sibling loop fails) ends it.
func (c *Client) pullLoop(ctx context.Context) error {
	for {
		promise, err := c.trackerClnt.Accept(ctx)
		if err != nil {
			return err
		}

		blockID := promise.Part()
		c.pendingMu.Lock()
		c.pending[blockID] = promise
		c.pendingMu.Unlock()

		req := &Request{Tag: ReqBlock, BlockID: blockID}
		content, err := EncodeMessage(KindRequest, req)
		if err != nil {
			return fmt.Errorf("protocol: client: encode block request: %w", err)
		}
		if err := c.stream.Send(ctx, content); err != nil {
			return fmt.Errorf("protocol: client: send block request: %w", err)
		}
	}
}

func (c *Client) handleResponse(ctx context.Context, resp Response) error {
	switch resp.Tag {
	case RespRootNode:
		return c.handleRootNode(ctx, resp)
	case RespInnerNodes:
		return c.handleInnerNodes(ctx, resp.ParentHash, resp.InnerNodes)
	case RespLeafNodes:
		return c.handleLeafNodes(ctx, resp.ParentHash, resp.LeafNodes)
	case RespBlock:
		return c.handleBlock(ctx, resp.Block)
	default:
		return fmt.Errorf("protocol: client: unknown response tag %d: %w", resp.Tag, errs.Malformed)
	}
}

// handleRootNode verifies and upserts an announced root. A stale root
// (one whose version vector is equal to or older than its writer's latest
// stored root)
// is expected traffic, not an error: it is logged and ignored. A bad
// signature is malformed traffic and closes the connection.
func (c *Client) handleRootNode(ctx context.Context, resp Response) error {
	proof, err := resp.RootNode.Proof.Decode()
	if err != nil {
		return fmt.Errorf("protocol: client: %w", err)
	}

	_, created, err := index.CreateRoot(ctx, c.db, proof, index.Summary{})
	if err != nil {
		if errors.Is(err, errs.EntryExists) {
			c.log.Debug().Str("writer", proof.Writer.String()).Msg("stale root, ignoring")
			return nil
		}
		return fmt.Errorf("protocol: client: create root: %w", err)
	}
	if !created {
		return nil
	}

	return c.requestChildren(ctx, proof.RootHash)
}

func (c *Client) handleInnerNodes(ctx context.Context, parentHash crypto.Hash, children map[byte]crypto.Hash) error {
	if index.HashInnerLayer(children) != parentHash {
		return fmt.Errorf("protocol: client: inner node collection hash mismatch: %w", errs.Malformed)
	}
	if err := index.SaveInnerChildren(ctx, c.db, parentHash, children); err != nil {
		return fmt.Errorf("protocol: client: save inner children: %w", err)
	}
	for _, childHash := range children {
		if err := c.requestChildren(ctx, childHash); err != nil {
			return err
		}
	}
	if _, err := index.UpdateSummaries(ctx, c.db, parentHash); err != nil {
		return fmt.Errorf("protocol: client: update summaries: %w", err)
	}
	return nil
}

func (c *Client) handleLeafNodes(ctx context.Context, parentHash crypto.Hash, wire []WireLeafNode) error {
	leaves := make([]index.LeafNode, len(wire))
	for i, l := range wire {
		leaves[i] = index.LeafNode{ParentHash: parentHash, Locator: l.Locator, BlockID: l.BlockID, IsMissing: true}
	}
	if index.HashLeafSet(leaves) != parentHash {
		return fmt.Errorf("protocol: client: leaf set hash mismatch: %w", errs.Malformed)
	}
	if err := index.SaveLeafChildren(ctx, c.db, parentHash, leaves); err != nil {
		return fmt.Errorf("protocol: client: save leaf children: %w", err)
	}

	for _, l := range leaves {
		exists, err := blockstore.Exists(ctx, c.db, l.BlockID)
		if err != nil {
			return fmt.Errorf("protocol: client: check block presence: %w", err)
		}
		if exists {
			if err := index.MarkBlockPresentByID(ctx, c.db, l.BlockID); err != nil {
				return fmt.Errorf("protocol: client: mark block present: %w", err)
			}
			continue
		}
		c.tracker.Require(l.BlockID)
		c.trackerClnt.Offer(l.BlockID, missingparts.Approved)
	}

	if _, err := index.UpdateSummaries(ctx, c.db, parentHash); err != nil {
		return fmt.Errorf("protocol: client: update summaries: %w", err)
	}
	return nil
}

// handleBlock persists a fetched block, completes its promise, and flips
// is_missing wherever the index references it. Authentication of the
// plaintext (AEAD tag verified under the nonce implied by the locator and
// the read key) happens when the repository layer actually opens the blob,
// not here: a blind replica holding only ciphertext has no read key to
// check it against, so this layer can only move bytes, not vouch for them.
func (c *Client) handleBlock(ctx context.Context, wire WireBlock) error {
	c.pendingMu.Lock()
	promise, ok := c.pending[wire.ID]
	delete(c.pending, wire.ID)
	c.pendingMu.Unlock()
	if !ok {
		// Not something we asked for (duplicate/unsolicited response); drop it.
		return nil
	}

	block := blockstore.Block{ID: wire.ID, Content: wire.Content, AuthTag: wire.AuthTag, Nonce: wire.Nonce}
	if err := blockstore.Put(ctx, c.db, block); err != nil {
		promise.Drop()
		return fmt.Errorf("protocol: client: store block: %w", err)
	}
	if err := index.MarkBlockPresentByID(ctx, c.db, wire.ID); err != nil {
		promise.Drop()
		return fmt.Errorf("protocol: client: mark block present: %w", err)
	}

	parents, err := index.ParentHashesForBlock(ctx, c.db, wire.ID)
	if err != nil {
		promise.Drop()
		return fmt.Errorf("protocol: client: load block parents: %w", err)
	}
	for _, parent := range parents {
		if _, err := index.UpdateSummaries(ctx, c.db, parent); err != nil {
			promise.Drop()
			return fmt.Errorf("protocol: client: update summaries: %w", err)
		}
	}

	promise.Complete()

	if c.broker != nil {
		c.broker.Publish(events.Event{
			Type: events.EventRepositoryChanged,
			Payload: events.RepositoryChangedPayload{
				RepositoryID: c.repositoryID,
				Cause:        events.CauseBlockReceived,
				BlockID:      wire.ID,
			},
		})
	}
	return nil
}

// requestChildren asks the peer for hash's children unless hash is the
// reserved empty hash (trivially complete, nothing to fetch) or a request
// for it is already outstanding.
func (c *Client) requestChildren(ctx context.Context, hash crypto.Hash) error {
	if hash == index.EmptyHash {
		return nil
	}

	c.requestedMu.Lock()
	if _, already := c.requested[hash]; already {
		c.requestedMu.Unlock()
		return nil
	}
	c.requested[hash] = struct{}{}
	c.requestedMu.Unlock()

	content, err := EncodeMessage(KindRequest, &Request{Tag: ReqChildNodes, ParentHash: hash})
	if err != nil {
		return fmt.Errorf("protocol: client: encode child nodes request: %w", err)
	}
	if err := c.stream.Send(ctx, content); err != nil {
		return fmt.Errorf("protocol: client: send child nodes request: %w", err)
	}
	return nil
}
