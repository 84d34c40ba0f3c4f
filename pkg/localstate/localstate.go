package localstate

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/J-Pabon/ouisync/pkg/crypto"
)

var (
	bucketDevice          = []byte("device")
	bucketRepositories    = []byte("repositories")
	bucketSelfConnections = []byte("self_connections")
)

var deviceIDKey = []byte("device_id")

// RegisteredRepository is one entry in the local device's list of
// repositories it has opened before, enough to reopen it without the caller
// supplying its database path or access secrets again. Token is a
// sharetoken-encoded capability string; it is opaque to localstate.
type RegisteredRepository struct {
	Name   string `json:"name"`
	DBPath string `json:"db_path"`
	Token  string `json:"token"`
}

// Store persists local, device-scoped state: its own id, the repositories
// it has registered, and addresses already confirmed to be itself.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the local device store at
// <dataDir>/device.db.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "device.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("localstate: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDevice, bucketRepositories, bucketSelfConnections} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("localstate: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DeviceID returns this installation's device id, generating and persisting
// a fresh random one the first time it is called.
func (s *Store) DeviceID() (crypto.DeviceID, error) {
	var id crypto.DeviceID

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevice)
		if stored := b.Get(deviceIDKey); stored != nil {
			copy(id[:], stored)
			return nil
		}

		generated := uuid.New()
		copy(id[:], generated[:])
		return b.Put(deviceIDKey, id[:])
	})
	return id, err
}

// RegisterRepository records name -> (dbPath, token), upserting if name is
// already registered.
func (s *Store) RegisterRepository(name, dbPath, token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRepositories)
		data, err := json.Marshal(RegisteredRepository{Name: name, DBPath: dbPath, Token: token})
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

// UnregisterRepository removes name from the registered list. Idempotent.
func (s *Store) UnregisterRepository(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRepositories).Delete([]byte(name))
	})
}

// RegisteredRepositories lists every repository this device has registered.
func (s *Store) RegisteredRepositories() ([]RegisteredRepository, error) {
	var out []RegisteredRepository
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRepositories).ForEach(func(_, v []byte) error {
			var r RegisteredRepository
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// MarkSelfConnection records that address was observed to be our own
// runtime id, so that IsSelfConnection reports it from then on.
func (s *Store) MarkSelfConnection(address string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSelfConnections).Put([]byte(address), []byte{1})
	})
}

// IsSelfConnection reports whether address was previously marked via
// MarkSelfConnection.
func (s *Store) IsSelfConnection(address string) (bool, error) {
	var known bool
	err := s.db.View(func(tx *bolt.Tx) error {
		known = tx.Bucket(bucketSelfConnections).Get([]byte(address)) != nil
		return nil
	})
	return known, err
}
