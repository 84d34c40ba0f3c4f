package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/J-Pabon/ouisync/pkg/errs"
)

const (
	// BlockKeySize is the size of a per-blob block encryption key.
	BlockKeySize = chacha20poly1305.KeySize

	// NoncePrefixSize is the size of the random prefix stored once per blob
	// and combined with each block's index to form that block's nonce.
	NoncePrefixSize = 4

	// TagSize is the size of the Poly1305 authentication tag returned
	// alongside every sealed block.
	TagSize = chacha20poly1305.Overhead
)

// BlockKey is a per-blob symmetric key used to seal/open every block that
// belongs to that blob.
type BlockKey [BlockKeySize]byte

// NoncePrefix is the random, per-blob half of every block's nonce.
type NoncePrefix [NoncePrefixSize]byte

// NewNoncePrefix generates a fresh random nonce prefix for a new blob.
func NewNoncePrefix() (NoncePrefix, error) {
	var p NoncePrefix
	if _, err := rand.Read(p[:]); err != nil {
		return p, fmt.Errorf("crypto: generate nonce prefix: %w", err)
	}
	return p, nil
}

func deriveNonce(prefix NoncePrefix, blockIndex uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	copy(nonce[:NoncePrefixSize], prefix[:])
	binary.BigEndian.PutUint64(nonce[NoncePrefixSize:], blockIndex)
	return nonce
}

// SealBlock encrypts plaintext under key, with the nonce reconstructed from
// prefix and blockIndex. It returns the ciphertext and the authentication
// tag as separate slices, matching the on-disk block row layout.
func SealBlock(key BlockKey, prefix NoncePrefix, blockIndex uint64, plaintext []byte) (ciphertext []byte, tag [TagSize]byte, err error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, tag, fmt.Errorf("crypto: init aead: %w", err)
	}
	nonce := deriveNonce(prefix, blockIndex)
	sealed := aead.Seal(nil, nonce[:], plaintext, nil)
	ciphertext = sealed[:len(sealed)-TagSize]
	copy(tag[:], sealed[len(sealed)-TagSize:])
	return ciphertext, tag, nil
}

// OpenBlock decrypts and authenticates a block sealed by SealBlock. It
// returns errs.Crypto (wrapped) if authentication fails.
func OpenBlock(key BlockKey, prefix NoncePrefix, blockIndex uint64, ciphertext []byte, tag [TagSize]byte) ([]byte, error) {
	nonce := deriveNonce(prefix, blockIndex)
	return OpenBlockWithNonce(key, nonce, ciphertext, tag)
}

// OpenBlockWithNonce decrypts and authenticates a block given its full,
// already-known 12-byte nonce, rather than reconstructing the nonce from a
// prefix and block index. A blob's head block stores its own nonce prefix
// as part of its plaintext content, so opening it can only happen once the
// nonce the block was actually sealed under is already in hand (read off
// the stored block row) — the prefix is not yet known until after this
// call succeeds.
func OpenBlockWithNonce(key BlockKey, nonce [chacha20poly1305.NonceSize]byte, ciphertext []byte, tag [TagSize]byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: init aead: %w", err)
	}
	combined := make([]byte, 0, len(ciphertext)+TagSize)
	combined = append(combined, ciphertext...)
	combined = append(combined, tag[:]...)
	plaintext, err := aead.Open(nil, nonce[:], combined, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: open block: %w", errs.Crypto)
	}
	return plaintext, nil
}
