package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/J-Pabon/ouisync/pkg/errs"
)

// SignatureSize is the size of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// WriteKeySeedSize is the size of the seed WriteKeyFromSeed and WriteKey.Seed
// use to deterministically derive/export a write keypair.
const WriteKeySeedSize = ed25519.SeedSize

// Signature is an Ed25519 signature over a Proof's signing bytes.
type Signature [SignatureSize]byte

// WriteKey is a branch's signing keypair. Its public half is the branch's
// WriterID.
type WriteKey struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateWriteKey creates a fresh random write keypair.
func GenerateWriteKey() (WriteKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return WriteKey{}, fmt.Errorf("crypto: generate write key: %w", err)
	}
	return WriteKey{public: pub, private: priv}, nil
}

// WriteKeyFromSeed deterministically derives a write keypair from a 32-byte
// seed, e.g. one stretched from a user password.
func WriteKeyFromSeed(seed []byte) (WriteKey, error) {
	if len(seed) != ed25519.SeedSize {
		return WriteKey{}, fmt.Errorf("crypto: write key seed must be %d bytes: %w", ed25519.SeedSize, errs.Malformed)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return WriteKey{public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// WriterID returns the public half of the keypair.
func (k WriteKey) WriterID() WriterID {
	var id WriterID
	copy(id[:], k.public)
	return id
}

// Seed returns the 32-byte seed WriteKeyFromSeed would need to reconstruct
// this keypair, for embedding in a write-mode share token.
func (k WriteKey) Seed() []byte {
	return k.private.Seed()
}

// Sign signs message with the keypair's private key.
func (k WriteKey) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// VerifySignature reports whether sig is a valid signature of message under
// writer's public key.
func VerifySignature(writer WriterID, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(writer[:]), message, sig[:])
}

// Proof binds a branch's root hash and version vector to a signature from
// the branch's writer, so that any replica holding only the read key can
// still verify a snapshot came from its legitimate writer without being
// able to forge one.
type Proof struct {
	Writer        WriterID
	VersionVector VersionVector
	RootHash      Hash
	Signature     Signature
}

// signingBytes is the canonical byte sequence a Proof's signature covers:
// the version vector's canonical encoding followed by the root hash.
func signingBytes(vv VersionVector, rootHash Hash) []byte {
	buf := vv.Encode()
	return append(buf, rootHash[:]...)
}

// SignProof builds a Proof for (vv, rootHash), signed by key.
func SignProof(key WriteKey, vv VersionVector, rootHash Hash) Proof {
	return Proof{
		Writer:        key.WriterID(),
		VersionVector: vv,
		RootHash:      rootHash,
		Signature:     key.Sign(signingBytes(vv, rootHash)),
	}
}

// Verify reports whether the proof's signature is valid for its own writer,
// version vector and root hash. Returns errs.Malformed (wrapped) if not.
func (p Proof) Verify() error {
	if !VerifySignature(p.Writer, signingBytes(p.VersionVector, p.RootHash), p.Signature) {
		return fmt.Errorf("crypto: proof signature invalid: %w", errs.Malformed)
	}
	return nil
}
