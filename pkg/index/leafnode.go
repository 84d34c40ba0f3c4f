package index

import (
	"context"
	"fmt"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/store"
)

// LoadLeafChildren returns the leaf nodes stored under parentHash, ordered
// by locator hash.
func LoadLeafChildren(ctx context.Context, q store.Querier, parentHash crypto.Hash) ([]LeafNode, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT locator_hash, block_id, is_missing FROM leaf_nodes
		  WHERE parent_hash = ? ORDER BY locator_hash`,
		parentHash[:])
	if err != nil {
		return nil, fmt.Errorf("index: load leaf children of %s: %w", parentHash, err)
	}
	defer rows.Close()

	var out []LeafNode
	for rows.Next() {
		var (
			locatorBytes []byte
			blockBytes   []byte
			isMissing    int
		)
		if err := rows.Scan(&locatorBytes, &blockBytes, &isMissing); err != nil {
			return nil, fmt.Errorf("index: load leaf children of %s: %w", parentHash, err)
		}
		var l LeafNode
		l.ParentHash = parentHash
		copy(l.Locator[:], locatorBytes)
		copy(l.BlockID[:], blockBytes)
		l.IsMissing = isMissing != 0
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: load leaf children of %s: %w", parentHash, err)
	}
	return out, nil
}

// SaveLeafChildren writes a full leaf set under parentHash, replacing
// whatever was there before. Each leaf's IsMissing flag is written as
// given.
func SaveLeafChildren(ctx context.Context, q store.Querier, parentHash crypto.Hash, leaves []LeafNode) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM leaf_nodes WHERE parent_hash = ?`, parentHash[:]); err != nil {
		return fmt.Errorf("index: save leaf children of %s: %w", parentHash, err)
	}
	for _, l := range leaves {
		_, err := q.ExecContext(ctx,
			`INSERT INTO leaf_nodes(parent_hash, locator_hash, block_id, is_missing) VALUES(?, ?, ?, ?)`,
			parentHash[:], l.Locator[:], l.BlockID[:], boolToInt(l.IsMissing))
		if err != nil {
			return fmt.Errorf("index: save leaf children of %s: %w", parentHash, err)
		}
	}
	return nil
}

// MarkBlockPresent flips a leaf's is_missing flag to false once its block
// has been verified to be in the block store. Returns errs.NotFound if no
// such leaf exists.
func MarkBlockPresent(ctx context.Context, q store.Querier, parentHash crypto.Hash, locator crypto.LocatorHash) error {
	res, err := q.ExecContext(ctx,
		`UPDATE leaf_nodes SET is_missing = 0 WHERE parent_hash = ? AND locator_hash = ?`,
		parentHash[:], locator[:])
	if err != nil {
		return fmt.Errorf("index: mark block present: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("index: mark block present: %w", err)
	} else if n == 0 {
		return fmt.Errorf("index: mark block present: %w", errs.NotFound)
	}
	return nil
}

// MarkBlockMissing flips a leaf's is_missing flag back to true, e.g. after
// the underlying block was garbage collected.
func MarkBlockMissing(ctx context.Context, q store.Querier, parentHash crypto.Hash, locator crypto.LocatorHash) error {
	_, err := q.ExecContext(ctx,
		`UPDATE leaf_nodes SET is_missing = 1 WHERE parent_hash = ? AND locator_hash = ?`,
		parentHash[:], locator[:])
	if err != nil {
		return fmt.Errorf("index: mark block missing: %w", err)
	}
	return nil
}

// ParentHashesForBlock returns the distinct leaf-set hashes of every leaf
// row referencing blockID. The same block id can be referenced from more
// than one leaf set (content dedup across writers or snapshots), so a
// freshly-fetched block's presence can affect more than one subtree's
// summary.
func ParentHashesForBlock(ctx context.Context, q store.Querier, blockID crypto.BlockID) ([]crypto.Hash, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT parent_hash FROM leaf_nodes WHERE block_id = ?`, blockID.Bytes())
	if err != nil {
		return nil, fmt.Errorf("index: parent hashes for block %s: %w", blockID, err)
	}
	defer rows.Close()

	var out []crypto.Hash
	for rows.Next() {
		var hashBytes []byte
		if err := rows.Scan(&hashBytes); err != nil {
			return nil, fmt.Errorf("index: parent hashes for block %s: %w", blockID, err)
		}
		var h crypto.Hash
		copy(h[:], hashBytes)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: parent hashes for block %s: %w", blockID, err)
	}
	return out, nil
}

// MarkBlockPresentByID flips is_missing to false for every leaf row
// referencing blockID, across every leaf set that references it.
func MarkBlockPresentByID(ctx context.Context, q store.Querier, blockID crypto.BlockID) error {
	_, err := q.ExecContext(ctx, `UPDATE leaf_nodes SET is_missing = 0 WHERE block_id = ?`, blockID.Bytes())
	if err != nil {
		return fmt.Errorf("index: mark block present by id %s: %w", blockID, err)
	}
	return nil
}
