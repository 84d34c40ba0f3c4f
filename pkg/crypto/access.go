package crypto

// AccessMode is the level of access a holder of a repository's secrets has.
// Modes are totally ordered: write implies read implies blind.
type AccessMode int

const (
	// ModeBlind grants only the ability to store and forward encrypted
	// blocks without reading their plaintext or metadata.
	ModeBlind AccessMode = iota
	// ModeRead grants the ability to decrypt and read content.
	ModeRead
	// ModeWrite grants the ability to sign and publish new snapshots.
	ModeWrite
)

func (m AccessMode) String() string {
	switch m {
	case ModeBlind:
		return "blind"
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// AccessSecrets bundles the secrets a replica holds for one repository. The
// zero value grants no access.
type AccessSecrets struct {
	writeKey *WriteKey
	readKey  *[32]byte
}

// NewWriteAccess builds full write access from a write keypair.
func NewWriteAccess(key WriteKey) AccessSecrets {
	return AccessSecrets{writeKey: &key}
}

// NewReadAccess builds read-only access from a 32-byte read key.
func NewReadAccess(readKey [32]byte) AccessSecrets {
	return AccessSecrets{readKey: &readKey}
}

// NewBlindAccess builds blind access: no keys at all.
func NewBlindAccess() AccessSecrets {
	return AccessSecrets{}
}

// Mode reports the highest access level these secrets grant.
func (s AccessSecrets) Mode() AccessMode {
	switch {
	case s.writeKey != nil:
		return ModeWrite
	case s.readKey != nil:
		return ModeRead
	default:
		return ModeBlind
	}
}

func (s AccessSecrets) CanWrite() bool { return s.Mode() >= ModeWrite }
func (s AccessSecrets) CanRead() bool  { return s.Mode() >= ModeRead }

// WriteKey returns the write keypair and true if s grants write access.
func (s AccessSecrets) WriteKey() (WriteKey, bool) {
	if s.writeKey == nil {
		return WriteKey{}, false
	}
	return *s.writeKey, true
}

// ReadKey returns the read key and true if s grants at least read access.
// A write key deterministically derives its repository's read key, so
// full-access secrets also satisfy read-key callers.
func (s AccessSecrets) ReadKey() ([32]byte, bool) {
	if s.readKey != nil {
		return *s.readKey, true
	}
	if s.writeKey != nil {
		return HashKeyed([]byte("ouisync-read-key"), s.writeKey.public), true
	}
	return [32]byte{}, false
}

// RepositoryID derives the repository id these secrets open. It is always
// derived from the read key (write access derives its read key first) so
// that write, read and blind holders of secrets for the same repository
// agree on its id.
func (s AccessSecrets) RepositoryID() (RepositoryID, bool) {
	readKey, ok := s.ReadKey()
	if !ok {
		return RepositoryID{}, false
	}
	return DeriveRepositoryID(readKey[:]), true
}
