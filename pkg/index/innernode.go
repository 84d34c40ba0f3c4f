package index

import (
	"context"
	"fmt"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/store"
)

// LoadInnerChildren returns the inner-node children stored under
// parentHash, keyed by bucket. Empty if parentHash has leaf children
// instead, or no children at all.
func LoadInnerChildren(ctx context.Context, q store.Querier, parentHash crypto.Hash) (map[byte]InnerNode, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT bucket, hash, is_complete, block_presence, block_presence_count
		   FROM inner_nodes WHERE parent_hash = ?`,
		parentHash[:])
	if err != nil {
		return nil, fmt.Errorf("index: load inner children of %s: %w", parentHash, err)
	}
	defer rows.Close()

	out := make(map[byte]InnerNode)
	for rows.Next() {
		var (
			bucket       int
			hashBytes    []byte
			isComplete   int
			presence     int
			presentCount int
		)
		if err := rows.Scan(&bucket, &hashBytes, &isComplete, &presence, &presentCount); err != nil {
			return nil, fmt.Errorf("index: load inner children of %s: %w", parentHash, err)
		}
		var hash crypto.Hash
		copy(hash[:], hashBytes)
		out[byte(bucket)] = InnerNode{
			ParentHash: parentHash,
			Bucket:     byte(bucket),
			Hash:       hash,
			Summary: Summary{
				IsComplete:   isComplete != 0,
				Presence:     BlockPresenceKind(presence),
				PresentCount: presentCount,
			},
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: load inner children of %s: %w", parentHash, err)
	}
	return out, nil
}

// SaveInnerChildren writes a full bucket->hash children map under
// parentHash, replacing whatever was there before. Summaries are left at
// their zero value (incomplete, no presence); UpdateSummaries fills them in
// once the children's own subtrees are known.
func SaveInnerChildren(ctx context.Context, q store.Querier, parentHash crypto.Hash, children map[byte]crypto.Hash) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM inner_nodes WHERE parent_hash = ?`, parentHash[:]); err != nil {
		return fmt.Errorf("index: save inner children of %s: %w", parentHash, err)
	}
	for bucket, hash := range children {
		_, err := q.ExecContext(ctx,
			`INSERT INTO inner_nodes(parent_hash, bucket, hash) VALUES(?, ?, ?)`,
			parentHash[:], int(bucket), hash[:])
		if err != nil {
			return fmt.Errorf("index: save inner children of %s: %w", parentHash, err)
		}
	}
	return nil
}
