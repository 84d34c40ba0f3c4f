package repository

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/J-Pabon/ouisync/pkg/blockstore"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
)

// BlockSize is the fixed plaintext size of every block of a blob, the last
// one included: each block is sealed from a full BlockSize buffer.
const BlockSize = 32 * 1024

// headerSize is the size of the head block's nonce_prefix ‖ length_u64
// prefix, present only in block index 0.
const headerSize = crypto.NoncePrefixSize + 8

// headBlockCapacity is how much of a blob's own content the head block can
// carry after its header.
const headBlockCapacity = BlockSize - headerSize

// blobCore holds one open blob's state: its length, the per-index plaintext
// cache, and which indices are dirty. Each OpenBlob or CreateBlob call
// creates a new blobCore; handles opened separately on the same blob do not
// share one, and the branch keeps no cache of them.
type blobCore struct {
	mu sync.Mutex

	branch  *Branch
	blobID  crypto.Hash
	key     crypto.BlockKey
	prefix  crypto.NoncePrefix
	isNew   bool

	length       uint64
	lengthDirty  bool
	blockIDsDirty bool

	blocks map[uint64][]byte // absolute block index -> plaintext, loaded/written lazily
	dirty  map[uint64]bool

	refCount int
}

// newBlobID generates a fresh random blob identifier. Blob ids are opaque
// handles, not content hashes: a blob mutates, so its address cannot be
// derived from its (changing) content the way a block's is.
func newBlobID() (crypto.Hash, error) {
	var id crypto.Hash
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("repository: generate blob id: %w", err)
	}
	return id, nil
}

func newCore(branch *Branch, blobID crypto.Hash, isNew bool) (*blobCore, error) {
	prefix, err := crypto.NewNoncePrefix()
	if err != nil {
		return nil, err
	}
	return &blobCore{
		branch: branch,
		blobID: blobID,
		key:    crypto.DeriveBlockKey(branch.readKey, blobID),
		prefix: prefix,
		isNew:  isNew,
		blocks: make(map[uint64][]byte),
		dirty:  make(map[uint64]bool),
	}, nil
}

// locator computes the locator for an absolute block index: 0 is the head,
// i>=1 are continuations.
func (c *blobCore) locator(blockIndex uint64) crypto.LocatorHash {
	return crypto.DeriveLocator(c.branch.readKey, c.blobID, blockIndex)
}

// loadHead fetches and decrypts the head block, populating length and
// prefix from its header. If the blob does not exist yet (isNew), this is
// a no-op: length starts at 0 and the core's own freshly generated prefix
// stands.
func (c *blobCore) loadHead(ctx context.Context) error {
	if c.isNew {
		return nil
	}
	content, err := c.loadBlock(ctx, 0)
	if err != nil {
		return err
	}
	if len(content) < headerSize {
		return fmt.Errorf("repository: blob %s: head block too short: %w", c.blobID, errs.Malformed)
	}
	copy(c.prefix[:], content[:crypto.NoncePrefixSize])
	c.length = binary.BigEndian.Uint64(content[crypto.NoncePrefixSize:headerSize])
	return nil
}

// loadBlock returns the plaintext of absolute block index, from the dirty
// cache if present, otherwise by resolving its locator and decrypting it.
func (c *blobCore) loadBlock(ctx context.Context, blockIndex uint64) ([]byte, error) {
	if content, ok := c.blocks[blockIndex]; ok {
		return content, nil
	}

	blockID, ok, err := c.branch.ResolveLocator(ctx, c.locator(blockIndex))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("repository: blob %s: block %d: %w", c.blobID, blockIndex, errs.NotFound)
	}

	stored, err := blockstore.Get(ctx, c.branch.db, blockID)
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.OpenBlockWithNonce(c.key, stored.Nonce, stored.Content, stored.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("repository: blob %s: block %d: %w", c.blobID, blockIndex, err)
	}

	c.blocks[blockIndex] = plaintext
	return plaintext, nil
}

func (c *blobCore) blockCount() uint64 {
	if c.length <= headBlockCapacity {
		return 1
	}
	remaining := c.length - headBlockCapacity
	return 1 + (remaining+BlockSize-1)/BlockSize
}

// capacityOf returns how many logical content bytes absolute block index
// can hold. Every block is physically sealed at the full BlockSize; the
// head block's buffer additionally reserves headerSize bytes at the front
// for nonce_prefix ‖ length_u64, which is why its content capacity is
// smaller than a continuation block's.
func capacityOf(blockIndex uint64) uint64 {
	if blockIndex == 0 {
		return headBlockCapacity
	}
	return BlockSize
}

// contentOffset returns where, within a block's full BlockSize-sized
// physical buffer, its logical content begins.
func contentOffset(blockIndex uint64) int {
	if blockIndex == 0 {
		return headerSize
	}
	return 0
}

// offsetOf returns the blob-relative byte offset where absolute block
// index's content begins.
func offsetOf(blockIndex uint64) uint64 {
	if blockIndex == 0 {
		return 0
	}
	return headBlockCapacity + (blockIndex-1)*BlockSize
}

func blockIndexOf(offset uint64) uint64 {
	if offset < headBlockCapacity {
		return 0
	}
	return 1 + (offset-headBlockCapacity)/BlockSize
}
