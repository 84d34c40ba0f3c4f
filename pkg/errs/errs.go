/*
Package errs defines the sentinel error kinds shared across the replication
core, matching the taxonomy in the project's error-handling design: a small,
closed set of semantic kinds rather than one type per failure site.

Callers compare with errors.Is, and every layer boundary wraps with
fmt.Errorf("...: %w", err) so a caller far from the failure can still test
for e.g. errs.NotFound without caring which package raised it.
*/
package errs

import "errors"

var (
	// NotFound means an entry, block, or snapshot is absent. Recoverable:
	// callers typically return a sentinel value rather than propagate it.
	NotFound = errors.New("not found")

	// EntryExists means a directory insertion did not strictly dominate the
	// version vector it would replace.
	EntryExists = errors.New("entry already exists")

	// EntryIsDirectory means an operation expected a file but found a directory.
	EntryIsDirectory = errors.New("entry is a directory")

	// EntryNotDirectory means an operation expected a directory but found a file.
	EntryNotDirectory = errors.New("entry is not a directory")

	// PermissionDenied means the operation needs a higher access mode than
	// the held AccessSecrets grants.
	PermissionDenied = errors.New("permission denied")

	// Malformed means deserialization failed, a hash did not match its
	// claimed content, or a signature did not verify.
	Malformed = errors.New("malformed data")

	// Crypto means an AEAD open failed. Treated like data corruption.
	Crypto = errors.New("decryption failed")

	// ProtocolVersionMismatch means the peer's handshake advertised a
	// protocol version we don't support. Fatal for the connection, not for
	// the process.
	ProtocolVersionMismatch = errors.New("protocol version mismatch")

	// OperationNotSupported means the operation has no meaning on the
	// current platform or configuration.
	OperationNotSupported = errors.New("operation not supported")

	// ChannelClosed means a dispatcher ContentStream's channel was closed,
	// either explicitly or because the owning connection dropped.
	ChannelClosed = errors.New("channel closed")
)
