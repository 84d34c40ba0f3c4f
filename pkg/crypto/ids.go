package crypto

import (
	"encoding/hex"
)

const (
	// HashSize is the digest size of the BLAKE2b-256 hash used throughout
	// this package.
	HashSize = 32

	// DeviceIDSize is the size of a device id (spec: "128-bit random value").
	DeviceIDSize = 16

	// InfoHashSize is the size of a BitTorrent-style info hash, used as the
	// discovery key derived from a repository id.
	InfoHashSize = 20
)

// Hash is a 32-byte BLAKE2b-256 digest.
type Hash [HashSize]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) IsZero() bool { return h == Hash{} }

// BlockID identifies a block by the BLAKE2b-256 hash of its plaintext.
type BlockID Hash

func (id BlockID) String() string { return Hash(id).String() }
func (id BlockID) Bytes() []byte  { return id[:] }
func (id BlockID) IsZero() bool   { return Hash(id).IsZero() }

// LocatorHash identifies a block's position within a blob: the keyed hash
// of (blob id, block index), keyed with the repository's read key so that a
// blind replica cannot tell which locator belongs to which blob.
type LocatorHash Hash

func (l LocatorHash) String() string { return Hash(l).String() }
func (l LocatorHash) Bytes() []byte  { return l[:] }

// WriterID identifies a branch: the Ed25519 public key of its write keypair.
type WriterID Hash

func (id WriterID) String() string { return Hash(id).String() }
func (id WriterID) Bytes() []byte  { return id[:] }
func (id WriterID) IsZero() bool   { return Hash(id).IsZero() }

// RepositoryID identifies a repository, derived from its read key (which
// write access derives from the write key).
type RepositoryID Hash

func (id RepositoryID) String() string { return Hash(id).String() }
func (id RepositoryID) Bytes() []byte  { return id[:] }

// InfoHash is the 20-byte discovery key derived from a RepositoryID, sized
// to slot into DHT/BitTorrent-style discovery machinery (itself out of
// scope here; only the derivation is).
type InfoHash [InfoHashSize]byte

func (h InfoHash) String() string { return hex.EncodeToString(h[:]) }
func (h InfoHash) Bytes() []byte  { return h[:] }

// DeviceID identifies a device. Generated once per installation and
// persisted by pkg/localstate.
type DeviceID [DeviceIDSize]byte

func (id DeviceID) String() string { return hex.EncodeToString(id[:]) }
func (id DeviceID) Bytes() []byte  { return id[:] }
func (id DeviceID) IsZero() bool   { return id == DeviceID{} }
