/*
Package crypto implements the cryptographic primitives the replication core
is built on: per-block authenticated encryption, a keyed content hash used
both for block ids and for locator encoding, Ed25519 writer signing keys,
and version vectors.

# Block encryption

Each block is encrypted independently with ChaCha20-Poly1305
(golang.org/x/crypto/chacha20poly1305). The nonce is built from a per-blob
nonce prefix plus the block's 0-based index within the blob, so two blocks
never reuse a nonce under the same key as long as each blob picks a fresh
random prefix; the repository layer also stores each block's nonce in its
block row.

	nonce = nonce_prefix (4 bytes) ‖ big-endian block_index (8 bytes)

SealBlock and OpenBlock return/accept the ciphertext and the 16-byte Poly1305
tag separately, matching the on-disk block row layout described in the
repository's external interfaces (id, nonce, content, auth_tag).

# Content hashing

BLAKE2b-256 (also from golang.org/x/crypto) stands in for the project's
"BLAKE3-style keyed hash": same hash family, same ability to run keyed, same
32-byte digest. HashBytes computes an unkeyed digest (used for block ids,
which must be computable by anyone who has the plaintext); HashKeyed runs
the same primitive keyed (used for locators, so that a replica holding only
the repository's blind secrets cannot correlate two locators to the same
blob position).

# Signing

Branches are identified by an Ed25519 public key (WriterID) and snapshots are
signed with the corresponding private key. No third-party Ed25519 package
appears anywhere in this project's dependency set; crypto/ed25519 is used
directly, the same way the rest of this codebase reaches for standard
library crypto primitives rather than wrapping them.

# Version vectors

VersionVector is a writer-id -> counter map with the partial order defined
in the data model: a <= b iff a[w] <= b[w] for every w. Internally it is
backed by an ordered map so that iteration order is stable for logging and
debugging, while Encode always produces the canonical, writer-id-sorted
byte form used for signing and for the wire format.
*/
package crypto
