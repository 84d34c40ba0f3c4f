package blockstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/store"
)

// NonceSize is the size of a full per-block nonce (prefix ‖ block index), as
// stored alongside each block row.
const NonceSize = 12

// Block is one stored block row: ciphertext, the nonce it was sealed under,
// and its authentication tag. The store never decrypts it.
type Block struct {
	ID      crypto.BlockID
	Nonce   [NonceSize]byte
	Content []byte
	AuthTag [crypto.TagSize]byte
}

// Put inserts a block, identified by its plaintext hash. Putting the same
// id twice is a no-op: block ids are content-derived, so a second put of
// the same id necessarily carries identical content.
func Put(ctx context.Context, q store.Querier, b Block) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO blocks(id, nonce, content, auth_tag) VALUES(?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		b.ID.Bytes(), b.Nonce[:], b.Content, b.AuthTag[:])
	if err != nil {
		return fmt.Errorf("blockstore: put %s: %w", b.ID, err)
	}
	return nil
}

// Get returns the stored block for id, or errs.NotFound if absent.
func Get(ctx context.Context, q store.Querier, id crypto.BlockID) (Block, error) {
	var (
		nonce   []byte
		content []byte
		tag     []byte
	)
	row := q.QueryRowContext(ctx, `SELECT nonce, content, auth_tag FROM blocks WHERE id = ?`, id.Bytes())
	if err := row.Scan(&nonce, &content, &tag); err != nil {
		if err == sql.ErrNoRows {
			return Block{}, fmt.Errorf("blockstore: get %s: %w", id, errs.NotFound)
		}
		return Block{}, fmt.Errorf("blockstore: get %s: %w", id, err)
	}

	b := Block{ID: id, Content: content}
	copy(b.Nonce[:], nonce)
	copy(b.AuthTag[:], tag)
	return b, nil
}

// Exists reports whether a block with the given id is stored.
func Exists(ctx context.Context, q store.Querier, id crypto.BlockID) (bool, error) {
	var one int
	row := q.QueryRowContext(ctx, `SELECT 1 FROM blocks WHERE id = ? LIMIT 1`, id.Bytes())
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blockstore: exists %s: %w", id, err)
	}
	return true, nil
}

// Remove deletes a block. It does not check whether a leaf node still
// references the block, and no garbage collector in this module calls it.
func Remove(ctx context.Context, q store.Querier, id crypto.BlockID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id.Bytes()); err != nil {
		return fmt.Errorf("blockstore: remove %s: %w", id, err)
	}
	return nil
}
