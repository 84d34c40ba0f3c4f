package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/J-Pabon/ouisync/pkg/crypto"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := crypto.HashBytes([]byte("hello"))
	b := crypto.HashBytes([]byte("hello"))
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
}

func TestHashBytesDiffersByInput(t *testing.T) {
	a := crypto.HashBytes([]byte("hello"))
	b := crypto.HashBytes([]byte("world"))
	assert.NotEqual(t, a, b)
}

func TestHashKeyedDiffersFromUnkeyed(t *testing.T) {
	unkeyed := crypto.HashBytes([]byte("payload"))
	keyed := crypto.HashKeyed([]byte("some-32-byte-key-material-here!"), []byte("payload"))
	assert.NotEqual(t, unkeyed, keyed)
}

func TestDeriveLocatorIsKeyedByReadKey(t *testing.T) {
	blobID := crypto.HashBytes([]byte("blob-1"))

	keyA := []byte("read-key-aaaaaaaaaaaaaaaaaaaaaaa")
	keyB := []byte("read-key-bbbbbbbbbbbbbbbbbbbbbbb")

	locA := crypto.DeriveLocator(keyA, blobID, 0)
	locB := crypto.DeriveLocator(keyB, blobID, 0)
	assert.NotEqual(t, locA, locB, "different read keys must not correlate to the same locator")

	locA2 := crypto.DeriveLocator(keyA, blobID, 0)
	assert.Equal(t, locA, locA2, "locator derivation must be deterministic")

	locA1 := crypto.DeriveLocator(keyA, blobID, 1)
	assert.NotEqual(t, locA, locA1, "different block indices must not collide")
}

func TestDeriveBlockKeyIsDeterministicAndBlobScoped(t *testing.T) {
	readKey := []byte("read-key-aaaaaaaaaaaaaaaaaaaaaaa")
	blobA := crypto.HashBytes([]byte("blob-a"))
	blobB := crypto.HashBytes([]byte("blob-b"))

	keyA := crypto.DeriveBlockKey(readKey, blobA)
	keyA2 := crypto.DeriveBlockKey(readKey, blobA)
	assert.Equal(t, keyA, keyA2)

	keyB := crypto.DeriveBlockKey(readKey, blobB)
	assert.NotEqual(t, keyA, keyB)
}

func TestRepositoryIDAndInfoHashDerivation(t *testing.T) {
	seed := []byte("a-32-byte-seed-value-goes-here!")
	id := crypto.DeriveRepositoryID(seed)
	assert.Len(t, id.Bytes(), crypto.HashSize)

	infoHash := crypto.InfoHashOf(id)
	assert.Len(t, infoHash.Bytes(), crypto.InfoHashSize)

	id2 := crypto.DeriveRepositoryID(seed)
	assert.Equal(t, id, id2)
}
