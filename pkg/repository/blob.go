package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/J-Pabon/ouisync/pkg/blockstore"
	"github.com/J-Pabon/ouisync/pkg/crypto"
)

// Blob is one open handle onto a logical byte sequence addressed by a head
// locator, with its own blobCore and its own read/write cursor.
type Blob struct {
	core   *blobCore
	cursor uint64
}

// OpenBlob opens an existing blob identified by blobID on branch.
func OpenBlob(ctx context.Context, branch *Branch, blobID crypto.Hash) (*Blob, error) {
	core, err := newCore(branch, blobID, false)
	if err != nil {
		return nil, err
	}
	if err := core.loadHead(ctx); err != nil {
		return nil, err
	}
	core.refCount++
	return &Blob{core: core}, nil
}

// CreateBlob creates a new, empty blob on branch and returns a handle to
// it. The blob is not visible to anyone else until Flush.
func CreateBlob(branch *Branch) (*Blob, error) {
	blobID, err := newBlobID()
	if err != nil {
		return nil, err
	}
	core, err := newCore(branch, blobID, true)
	if err != nil {
		return nil, err
	}
	core.refCount++
	core.lengthDirty = true
	core.blockIDsDirty = true
	return &Blob{core: core}, nil
}

// ID returns the blob's locator seed.
func (b *Blob) ID() crypto.Hash { return b.core.blobID }

// Len returns the blob's current logical length.
func (b *Blob) Len() uint64 { return b.core.length }

// Read reads the blob's logical content from the current cursor into buf,
// returning io.EOF once the cursor is at the end.
func (b *Blob) Read(ctx context.Context, buf []byte) (int, error) {
	if b.cursor >= b.core.length {
		return 0, io.EOF
	}

	total := 0
	for total < len(buf) && b.cursor < b.core.length {
		idx := blockIndexOf(b.cursor)
		content, err := b.core.loadBlock(ctx, idx)
		if err != nil {
			return total, err
		}
		within := contentOffset(idx) + int(b.cursor-offsetOf(idx))
		remaining := b.core.length - b.cursor
		want := len(buf) - total
		if uint64(want) > remaining {
			want = int(remaining)
		}
		n := copy(buf[total:total+want], content[within:])
		total += n
		b.cursor += uint64(n)
	}
	return total, nil
}

// Write implements writing into the blob at the current cursor, extending
// its length if the cursor plus the write runs past the current end.
// Written content is held in memory until Flush.
func (b *Blob) Write(ctx context.Context, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		idx := blockIndexOf(b.cursor)
		capacity := capacityOf(idx)
		withinContent := b.cursor - offsetOf(idx)
		within := contentOffset(idx) + int(withinContent)

		content, err := b.loadOrInitBlock(ctx, idx)
		if err != nil {
			return total, err
		}

		want := len(buf) - total
		if uint64(want) > capacity-withinContent {
			want = int(capacity - withinContent)
		}
		n := copy(content[within:within+want], buf[total:total+want])
		b.core.blocks[idx] = content
		b.core.dirty[idx] = true

		total += n
		b.cursor += uint64(n)
		if b.cursor > b.core.length {
			b.core.length = b.cursor
			b.core.lengthDirty = true
		}
	}
	return total, nil
}

// loadOrInitBlock returns absolute block index's full physical
// BlockSize-sized buffer, creating it zeroed if it does not exist yet
// (writing past the current end of the blob).
func (b *Blob) loadOrInitBlock(ctx context.Context, blockIndex uint64) ([]byte, error) {
	if offsetOf(blockIndex) >= b.core.length {
		b.core.blockIDsDirty = true
		return make([]byte, BlockSize), nil
	}
	return b.core.loadBlock(ctx, blockIndex)
}

// Seek repositions the cursor, following io.Seeker's whence semantics.
func (b *Blob) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(b.cursor)
	case io.SeekEnd:
		base = int64(b.core.length)
	default:
		return 0, fmt.Errorf("repository: seek: invalid whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("repository: seek: negative position")
	}
	b.cursor = uint64(pos)
	return pos, nil
}

// Truncate sets the blob's logical length, discarding any block content
// past the new length and marking the head length header dirty.
func (b *Blob) Truncate(length uint64) {
	if length == b.core.length {
		return
	}
	lastKept := blockIndexOf(length)
	for idx := range b.core.blocks {
		if idx > lastKept {
			delete(b.core.blocks, idx)
			delete(b.core.dirty, idx)
		}
	}
	if length < b.core.length {
		b.core.blockIDsDirty = true
	}
	b.core.length = length
	b.core.lengthDirty = true
	if b.cursor > length {
		b.cursor = length
	}
}

// Flush encrypts and writes every dirty block to the block store and
// commits the updated locator -> block id mapping through the branch in a
// single new snapshot. A flush of a blob with no dirty blocks and an
// unchanged length is a no-op that touches neither the block store nor the
// index.
func (b *Blob) Flush(ctx context.Context) error {
	c := b.core
	if len(c.dirty) == 0 && !c.lengthDirty {
		return nil
	}

	if c.lengthDirty {
		if err := b.rewriteHeader(ctx); err != nil {
			return err
		}
	}

	updates := make(map[crypto.LocatorHash]*crypto.BlockID, len(c.dirty))
	for idx := range c.dirty {
		content := c.blocks[idx]
		blockID := crypto.BlockIDOf(content)
		ciphertext, tag, err := crypto.SealBlock(c.key, c.prefix, idx, content)
		if err != nil {
			return fmt.Errorf("repository: flush blob %s: %w", c.blobID, err)
		}
		var nonce [blockstore.NonceSize]byte
		copy(nonce[:crypto.NoncePrefixSize], c.prefix[:])
		binary.BigEndian.PutUint64(nonce[crypto.NoncePrefixSize:], idx)

		if err := blockstore.Put(ctx, c.branch.db, blockstore.Block{
			ID:      blockID,
			Nonce:   nonce,
			Content: ciphertext,
			AuthTag: tag,
		}); err != nil {
			return fmt.Errorf("repository: flush blob %s: %w", c.blobID, err)
		}

		locator := c.locator(idx)
		updates[locator] = &blockID
	}

	if _, err := c.branch.Commit(ctx, updates); err != nil {
		return fmt.Errorf("repository: flush blob %s: %w", c.blobID, err)
	}

	c.dirty = make(map[uint64]bool)
	c.lengthDirty = false
	c.blockIDsDirty = false
	c.isNew = false
	return nil
}

// rewriteHeader re-encodes the head block's nonce_prefix ‖ length_u64
// header in place, marking the head block dirty so Flush re-seals it.
func (b *Blob) rewriteHeader(ctx context.Context) error {
	content, err := b.loadOrInitBlock(ctx, 0)
	if err != nil {
		return err
	}
	copy(content[:crypto.NoncePrefixSize], b.core.prefix[:])
	binary.BigEndian.PutUint64(content[crypto.NoncePrefixSize:headerSize], b.core.length)
	b.core.blocks[0] = content
	b.core.dirty[0] = true
	return nil
}

// Fork copies this blob's ownership into target's locator namespace,
// reusing already-present blocks: only the leaf mappings differ, never the
// block content itself, since blocks are content-addressed.
func (b *Blob) Fork(ctx context.Context, target *Branch) (*Blob, error) {
	forked, err := newCore(target, b.core.blobID, false)
	if err != nil {
		return nil, err
	}
	forked.prefix = b.core.prefix
	forked.length = b.core.length
	forked.refCount = 1

	updates := make(map[crypto.LocatorHash]*crypto.BlockID)
	count := b.core.blockCount()
	for idx := uint64(0); idx < count; idx++ {
		blockID, ok, err := b.core.branch.ResolveLocator(ctx, b.core.locator(idx))
		if err != nil {
			return nil, fmt.Errorf("repository: fork blob %s: %w", b.core.blobID, err)
		}
		if !ok {
			continue // not yet fetched locally; the fork will fetch it like any other missing block
		}
		id := blockID
		updates[forked.locator(idx)] = &id
	}

	if _, err := target.Commit(ctx, updates); err != nil {
		return nil, fmt.Errorf("repository: fork blob %s: %w", b.core.blobID, err)
	}

	return &Blob{core: forked}, nil
}

// Close releases this handle's reference on its core.
func (b *Blob) Close() {
	b.core.refCount--
}
