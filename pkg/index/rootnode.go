package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/store"
)

// CreateRoot inserts a new RootNode for proof.Writer unless a row for
// (writer_id, hash) already exists, in which case it returns the existing
// row and created=false. The proof's signature is verified first; a new
// proof whose version vector is equal to or older than that writer's latest
// stored root is rejected as stale with errs.EntryExists (a concurrent one
// is accepted).
func CreateRoot(ctx context.Context, q store.Querier, proof crypto.Proof, summary Summary) (RootNode, bool, error) {
	if err := proof.Verify(); err != nil {
		return RootNode{}, false, fmt.Errorf("index: create root: %w", err)
	}

	if existing, ok, err := loadRootByWriterHash(ctx, q, proof.Writer, proof.RootHash); err != nil {
		return RootNode{}, false, err
	} else if ok {
		return existing, false, nil
	}

	if latest, ok, err := LoadLatestByWriter(ctx, q, proof.Writer); err != nil {
		return RootNode{}, false, err
	} else if ok {
		cmp := latest.Proof.VersionVector.Compare(proof.VersionVector)
		if cmp == crypto.Equal || cmp == crypto.Greater {
			return RootNode{}, false, fmt.Errorf("index: create root: version vector does not advance: %w", errs.EntryExists)
		}
	}

	vv := proof.VersionVector.Encode()
	res, err := q.ExecContext(ctx,
		`INSERT INTO root_nodes(writer_id, version_vector, hash, signature, is_complete, block_presence, block_presence_count)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(writer_id, hash) DO NOTHING`,
		proof.Writer.Bytes(), vv, proof.RootHash[:], proof.Signature[:],
		boolToInt(summary.IsComplete), int(summary.Presence), summary.PresentCount)
	if err != nil {
		return RootNode{}, false, fmt.Errorf("index: create root: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return RootNode{}, false, fmt.Errorf("index: create root: %w", err)
	}
	if affected == 0 {
		existing, ok, err := loadRootByWriterHash(ctx, q, proof.Writer, proof.RootHash)
		if err != nil {
			return RootNode{}, false, err
		}
		if !ok {
			return RootNode{}, false, fmt.Errorf("index: create root: conflict resolution found no row: %w", errs.Malformed)
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return RootNode{}, false, fmt.Errorf("index: create root: %w", err)
	}

	return RootNode{SnapshotID: id, Proof: proof, Summary: summary}, true, nil
}

// LoadLatestByWriter returns the highest-snapshot-id root for writer,
// complete or not.
func LoadLatestByWriter(ctx context.Context, q store.Querier, writer crypto.WriterID) (RootNode, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT snapshot_id, version_vector, hash, signature, is_complete, block_presence, block_presence_count
		   FROM root_nodes WHERE writer_id = ? ORDER BY snapshot_id DESC LIMIT 1`,
		writer.Bytes())
	return scanRoot(row, writer)
}

// LoadLatestCompleteByWriter returns the highest-snapshot-id complete root
// for writer.
func LoadLatestCompleteByWriter(ctx context.Context, q store.Querier, writer crypto.WriterID) (RootNode, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT snapshot_id, version_vector, hash, signature, is_complete, block_presence, block_presence_count
		   FROM root_nodes WHERE writer_id = ? AND is_complete = 1 ORDER BY snapshot_id DESC LIMIT 1`,
		writer.Bytes())
	return scanRoot(row, writer)
}

// LoadAllLatestComplete returns one latest-complete root per writer.
func LoadAllLatestComplete(ctx context.Context, q store.Querier) ([]RootNode, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT r.snapshot_id, r.writer_id, r.version_vector, r.hash, r.signature,
		        r.is_complete, r.block_presence, r.block_presence_count
		   FROM root_nodes r
		   JOIN (
		        SELECT writer_id, MAX(snapshot_id) AS snapshot_id
		          FROM root_nodes WHERE is_complete = 1 GROUP BY writer_id
		   ) latest ON latest.writer_id = r.writer_id AND latest.snapshot_id = r.snapshot_id`)
	if err != nil {
		return nil, fmt.Errorf("index: load all latest complete: %w", err)
	}
	defer rows.Close()

	var out []RootNode
	for rows.Next() {
		var (
			id           int64
			writerBytes  []byte
			vvBytes      []byte
			hashBytes    []byte
			sigBytes     []byte
			isComplete   int
			presence     int
			presentCount int
		)
		if err := rows.Scan(&id, &writerBytes, &vvBytes, &hashBytes, &sigBytes, &isComplete, &presence, &presentCount); err != nil {
			return nil, fmt.Errorf("index: load all latest complete: %w", err)
		}
		n, err := decodeRoot(id, writerBytes, vvBytes, hashBytes, sigBytes, isComplete, presence, presentCount)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: load all latest complete: %w", err)
	}
	return out, nil
}

// UpdateProof replaces an existing root's version vector and signature in
// place. The writer id and hash are immutable; attempting to change either
// is a programming error, not a runtime one, and is rejected as Malformed.
func UpdateProof(ctx context.Context, q store.Querier, snapshotID int64, existingWriter crypto.WriterID, existingHash crypto.Hash, newProof crypto.Proof) error {
	if newProof.Writer != existingWriter || newProof.RootHash != existingHash {
		return fmt.Errorf("index: update proof: writer id and hash are immutable: %w", errs.Malformed)
	}
	if err := newProof.Verify(); err != nil {
		return fmt.Errorf("index: update proof: %w", err)
	}

	_, err := q.ExecContext(ctx,
		`UPDATE root_nodes SET version_vector = ?, signature = ? WHERE snapshot_id = ?`,
		newProof.VersionVector.Encode(), newProof.Signature[:], snapshotID)
	if err != nil {
		return fmt.Errorf("index: update proof: %w", err)
	}
	return nil
}

// RemoveRecursively deletes a snapshot; pkg/store's triggers cascade
// the delete to every inner/leaf row reachable only from it.
func RemoveRecursively(ctx context.Context, q store.Querier, snapshotID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM root_nodes WHERE snapshot_id = ?`, snapshotID); err != nil {
		return fmt.Errorf("index: remove recursively: %w", err)
	}
	return nil
}

// RemoveRecursivelyAllOlder deletes every snapshot for writer strictly
// older than keepSnapshotID.
func RemoveRecursivelyAllOlder(ctx context.Context, q store.Querier, writer crypto.WriterID, keepSnapshotID int64) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM root_nodes WHERE writer_id = ? AND snapshot_id < ?`,
		writer.Bytes(), keepSnapshotID)
	if err != nil {
		return fmt.Errorf("index: remove recursively all older: %w", err)
	}
	return nil
}

func loadRootByWriterHash(ctx context.Context, q store.Querier, writer crypto.WriterID, hash crypto.Hash) (RootNode, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT snapshot_id, version_vector, hash, signature, is_complete, block_presence, block_presence_count
		   FROM root_nodes WHERE writer_id = ? AND hash = ?`,
		writer.Bytes(), hash[:])
	return scanRoot(row, writer)
}

func scanRoot(row *sql.Row, writer crypto.WriterID) (RootNode, bool, error) {
	var (
		id           int64
		vvBytes      []byte
		hashBytes    []byte
		sigBytes     []byte
		isComplete   int
		presence     int
		presentCount int
	)
	err := row.Scan(&id, &vvBytes, &hashBytes, &sigBytes, &isComplete, &presence, &presentCount)
	if err == sql.ErrNoRows {
		return RootNode{}, false, nil
	}
	if err != nil {
		return RootNode{}, false, fmt.Errorf("index: scan root: %w", err)
	}
	n, err := decodeRoot(id, writer.Bytes(), vvBytes, hashBytes, sigBytes, isComplete, presence, presentCount)
	return n, err == nil, err
}

func decodeRoot(id int64, writerBytes, vvBytes, hashBytes, sigBytes []byte, isComplete, presence, presentCount int) (RootNode, error) {
	var writer crypto.WriterID
	copy(writer[:], writerBytes)

	vv, err := crypto.DecodeVersionVector(vvBytes)
	if err != nil {
		return RootNode{}, fmt.Errorf("index: decode root %d: %w", id, err)
	}

	var hash crypto.Hash
	copy(hash[:], hashBytes)
	var sig crypto.Signature
	copy(sig[:], sigBytes)

	return RootNode{
		SnapshotID: id,
		Proof: crypto.Proof{
			Writer:        writer,
			VersionVector: vv,
			RootHash:      hash,
			Signature:     sig,
		},
		Summary: Summary{
			IsComplete:   isComplete != 0,
			Presence:     BlockPresenceKind(presence),
			PresentCount: presentCount,
		},
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
