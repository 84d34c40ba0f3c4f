package protocol

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
)

// Magic is the 4-byte prefix every handshake begins with.
var Magic = [4]byte{'O', 'U', 'I', 'S'}

// Version is this build's protocol version. A peer advertising a strictly
// greater version triggers a protocol_version_mismatch event and the
// connection is rejected; a peer advertising an equal or lesser version is
// accepted (we remain able to speak its dialect).
const Version uint32 = 1

// challengeSize is the size of the random nonce each side signs to prove
// possession of its claimed runtime private key.
const challengeSize = 32

type hello struct {
	RuntimeID crypto.WriterID
	Challenge [challengeSize]byte
}

type proofMsg struct {
	Signature crypto.Signature
}

// Mismatch reports a protocol version mismatch detected during handshake.
type Mismatch struct {
	PeerVersion uint32
	OurVersion  uint32
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("protocol: peer version %d > ours %d", m.PeerVersion, m.OurVersion)
}

func (m *Mismatch) Unwrap() error { return errs.ProtocolVersionMismatch }

// Handshake performs the mutual MAGIC ‖ version ‖ runtime-id exchange over
// stream (§4.6, §6). local is this process's runtime identity: an Ed25519
// keypair generated once at startup, not tied to any one repository.
//
// On success it returns the authenticated peer runtime id. On a version
// mismatch it returns a *Mismatch (wrapping errs.ProtocolVersionMismatch);
// any other error means the handshake bytes were malformed or the peer
// failed to prove possession of its claimed key, and the connection must be
// dropped.
func Handshake(ctx context.Context, stream io.ReadWriter, local crypto.WriteKey) (crypto.WriterID, error) {
	type result struct {
		peer crypto.WriterID
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		peer, err := handshake(stream, local)
		ch <- result{peer, err}
	}()

	select {
	case r := <-ch:
		return r.peer, r.err
	case <-ctx.Done():
		return crypto.WriterID{}, ctx.Err()
	}
}

func handshake(stream io.ReadWriter, local crypto.WriteKey) (crypto.WriterID, error) {
	var prefix [8]byte
	copy(prefix[:4], Magic[:])
	binary.BigEndian.PutUint32(prefix[4:], Version)
	if _, err := stream.Write(prefix[:]); err != nil {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: write prefix: %w", err)
	}

	var peerPrefix [8]byte
	if _, err := io.ReadFull(stream, peerPrefix[:]); err != nil {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: read prefix: %w", err)
	}
	if !bytes.Equal(peerPrefix[:4], Magic[:]) {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: bad magic: %w", errs.Malformed)
	}
	peerVersion := binary.BigEndian.Uint32(peerPrefix[4:])
	if peerVersion > Version {
		return crypto.WriterID{}, &Mismatch{PeerVersion: peerVersion, OurVersion: Version}
	}

	var localChallenge [challengeSize]byte
	if _, err := rand.Read(localChallenge[:]); err != nil {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: generate challenge: %w", err)
	}

	if err := writeLengthPrefixed(stream, hello{RuntimeID: local.WriterID(), Challenge: localChallenge}); err != nil {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: send hello: %w", err)
	}

	var peerHello hello
	if err := readLengthPrefixed(stream, &peerHello); err != nil {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: receive hello: %w", err)
	}

	sig := local.Sign(peerHello.Challenge[:])
	if err := writeLengthPrefixed(stream, proofMsg{Signature: sig}); err != nil {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: send proof: %w", err)
	}

	var peerProof proofMsg
	if err := readLengthPrefixed(stream, &peerProof); err != nil {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: receive proof: %w", err)
	}

	if !crypto.VerifySignature(peerHello.RuntimeID, localChallenge[:], peerProof.Signature) {
		return crypto.WriterID{}, fmt.Errorf("protocol: handshake: peer failed to prove runtime key: %w", errs.Malformed)
	}

	return peerHello.RuntimeID, nil
}

const maxHandshakeMessageSize = 4096

func writeLengthPrefixed(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var lengthPrefix [2]byte
	binary.BigEndian.PutUint16(lengthPrefix[:], uint16(buf.Len()))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func readLengthPrefixed(r io.Reader, v any) error {
	var lengthPrefix [2]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint16(lengthPrefix[:])
	if int(length) > maxHandshakeMessageSize {
		return fmt.Errorf("handshake message too large: %w", errs.Malformed)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}

	dec := codec.NewDecoder(bytes.NewReader(payload), &msgpackHandle)
	return dec.Decode(v)
}
