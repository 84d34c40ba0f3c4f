package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/store"
)

// UpdateSummaries recomputes (is_complete, block_presence) for every row
// whose hash column equals hash, then, if the summary actually changed,
// continues upward to every parent hash that references it. Idempotent:
// calling it twice in a row with nothing changed in between performs no
// writes on the second call and returns false both times after the first.
//
// It returns whether hash newly became complete (false -> true) as a
// result of this call; it does not report completeness transitions of
// ancestors visited during propagation.
func UpdateSummaries(ctx context.Context, q store.Querier, hash crypto.Hash) (bool, error) {
	newSummary, err := computeSummary(ctx, q, hash)
	if err != nil {
		return false, err
	}

	oldSummary, found, err := getSummaryByHash(ctx, q, hash)
	if err != nil {
		return false, err
	}
	if !found {
		// Nothing references this hash as a parent pointer yet (e.g. called
		// right after writing children but before the parent row exists).
		// There is nothing to update or propagate, so nothing became complete.
		return false, nil
	}

	if oldSummary == newSummary {
		return false, nil
	}

	if err := applySummary(ctx, q, hash, newSummary); err != nil {
		return false, err
	}

	parents, err := loadParentHashes(ctx, q, hash)
	if err != nil {
		return false, err
	}
	for _, parent := range parents {
		if _, err := UpdateSummaries(ctx, q, parent); err != nil {
			return false, err
		}
	}

	return !oldSummary.IsComplete && newSummary.IsComplete, nil
}

// computeSummary derives the summary of the subtree rooted at hash purely
// from its own children, without consulting any cached summary for hash
// itself.
func computeSummary(ctx context.Context, q store.Querier, hash crypto.Hash) (Summary, error) {
	if hash == EmptyHash {
		return EmptySummary, nil
	}

	innerChildren, err := LoadInnerChildren(ctx, q, hash)
	if err != nil {
		return Summary{}, err
	}
	if len(innerChildren) > 0 {
		return combineChildSummaries(innerChildren), nil
	}

	leaves, err := LoadLeafChildren(ctx, q, hash)
	if err != nil {
		return Summary{}, err
	}
	if len(leaves) > 0 {
		present := 0
		for _, l := range leaves {
			if !l.IsMissing {
				present++
			}
		}
		presence := PresenceSome
		switch {
		case present == 0:
			presence = PresenceNone
		case present == len(leaves):
			presence = PresenceFull
		}
		return Summary{IsComplete: true, Presence: presence, PresentCount: present}, nil
	}

	// No children rows at all: this subtree hasn't been fetched yet.
	return Summary{IsComplete: false, Presence: PresenceNone}, nil
}

func combineChildSummaries(children map[byte]InnerNode) Summary {
	complete := true
	allFull := true
	allNone := true
	total := 0

	for _, c := range children {
		if !c.Summary.IsComplete {
			complete = false
		}
		total += c.Summary.PresentCount
		if c.Summary.Presence != PresenceFull {
			allFull = false
		}
		if c.Summary.Presence != PresenceNone {
			allNone = false
		}
	}

	presence := PresenceSome
	switch {
	case allFull:
		presence = PresenceFull
	case allNone:
		presence = PresenceNone
	}

	return Summary{IsComplete: complete, Presence: presence, PresentCount: total}
}

func getSummaryByHash(ctx context.Context, q store.Querier, hash crypto.Hash) (Summary, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT is_complete, block_presence, block_presence_count FROM root_nodes WHERE hash = ? LIMIT 1`,
		hash[:])
	s, found, err := scanSummary(row)
	if err != nil || found {
		return s, found, err
	}

	row = q.QueryRowContext(ctx,
		`SELECT is_complete, block_presence, block_presence_count FROM inner_nodes WHERE hash = ? LIMIT 1`,
		hash[:])
	return scanSummary(row)
}

func scanSummary(row *sql.Row) (Summary, bool, error) {
	var isComplete, presence, presentCount int
	err := row.Scan(&isComplete, &presence, &presentCount)
	if err == sql.ErrNoRows {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("index: scan summary: %w", err)
	}
	return Summary{
		IsComplete:   isComplete != 0,
		Presence:     BlockPresenceKind(presence),
		PresentCount: presentCount,
	}, true, nil
}

func applySummary(ctx context.Context, q store.Querier, hash crypto.Hash, s Summary) error {
	_, err := q.ExecContext(ctx,
		`UPDATE root_nodes SET is_complete = ?, block_presence = ?, block_presence_count = ? WHERE hash = ?`,
		boolToInt(s.IsComplete), int(s.Presence), s.PresentCount, hash[:])
	if err != nil {
		return fmt.Errorf("index: apply summary to root %s: %w", hash, err)
	}

	_, err = q.ExecContext(ctx,
		`UPDATE inner_nodes SET is_complete = ?, block_presence = ?, block_presence_count = ? WHERE hash = ?`,
		boolToInt(s.IsComplete), int(s.Presence), s.PresentCount, hash[:])
	if err != nil {
		return fmt.Errorf("index: apply summary to inner %s: %w", hash, err)
	}
	return nil
}

func loadParentHashes(ctx context.Context, q store.Querier, hash crypto.Hash) ([]crypto.Hash, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT parent_hash FROM inner_nodes WHERE hash = ?`, hash[:])
	if err != nil {
		return nil, fmt.Errorf("index: load parent hashes of %s: %w", hash, err)
	}
	defer rows.Close()

	var out []crypto.Hash
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("index: load parent hashes of %s: %w", hash, err)
		}
		var h crypto.Hash
		copy(h[:], b)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: load parent hashes of %s: %w", hash, err)
	}
	return out, nil
}
