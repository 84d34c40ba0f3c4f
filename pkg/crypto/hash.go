package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

var (
	repositoryIDDomain = []byte("ouisync-repository-id")
	infoHashDomain     = []byte("ouisync-info-hash")
	locatorDomain      = []byte("ouisync-locator")
	blockKeyDomain     = []byte("ouisync-block-key")
)

// HashBytes computes the unkeyed BLAKE2b-256 digest of data. Used for block
// ids, which any holder of the plaintext must be able to recompute.
func HashBytes(data ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic("crypto: blake2b.New256(nil) failed: " + err.Error())
	}
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashKeyed computes the keyed BLAKE2b-256 digest of data under key. key may
// be up to 64 bytes; this package always passes 32-byte keys.
func HashKeyed(key []byte, data ...[]byte) Hash {
	h, err := blake2b.New256(key)
	if err != nil {
		panic("crypto: blake2b.New256(key) failed: " + err.Error())
	}
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// BlockIDOf returns the content id of a block's plaintext.
func BlockIDOf(plaintext []byte) BlockID {
	return BlockID(HashBytes(plaintext))
}

// DeriveRepositoryID derives a repository id from a 32-byte seed.
// AccessSecrets.RepositoryID always passes the read key (which write access
// derives from the write key), so write and read holders of the same
// repository derive the same id.
func DeriveRepositoryID(seed []byte) RepositoryID {
	return RepositoryID(HashKeyed(repositoryIDDomain, seed))
}

// InfoHashOf derives the 20-byte discovery key for a repository id.
func InfoHashOf(id RepositoryID) InfoHash {
	full := HashKeyed(infoHashDomain, id[:])
	var out InfoHash
	copy(out[:], full[:InfoHashSize])
	return out
}

// DeriveBlockKey derives the symmetric key used to seal/open every block of
// the blob identified by blobID, keyed with the repository's read key. Any
// holder of the read key can derive it; it is never stored.
func DeriveBlockKey(readKey []byte, blobID Hash) BlockKey {
	digest := HashKeyed(readKey, blockKeyDomain, blobID[:])
	var key BlockKey
	copy(key[:], digest[:])
	return key
}

// DeriveLocator computes the locator for the block at index blockIndex
// within the blob identified by blobID, keyed with the repository's read
// key so that a blind replica cannot correlate locators to blob positions.
func DeriveLocator(readKey []byte, blobID Hash, blockIndex uint64) LocatorHash {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], blockIndex)
	return LocatorHash(HashKeyed(readKey, locatorDomain, blobID[:], idx[:]))
}
