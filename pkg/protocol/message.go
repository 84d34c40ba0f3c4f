package protocol

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
)

var msgpackHandle codec.MsgpackHandle

// Kind is the one-byte discriminant a framed message's content starts
// with, distinguishing a Request from a Response.
type Kind byte

const (
	KindRequest Kind = iota
	KindResponse
)

// RequestTag distinguishes the variants of Request.
type RequestTag byte

const (
	ReqChildNodes RequestTag = iota
	ReqBlock
)

// Request is a client->server ask for index children or a block's content.
type Request struct {
	Tag        RequestTag
	ParentHash crypto.Hash `codec:",omitempty"`
	BlockID    crypto.BlockID `codec:",omitempty"`
}

// ResponseTag distinguishes the variants of Response.
type ResponseTag byte

const (
	RespRootNode ResponseTag = iota
	RespInnerNodes
	RespLeafNodes
	RespBlock
)

// WireProof is crypto.Proof's wire form. VersionVector is carried in its
// canonical sorted (writer_id, counter)-pair encoding (§6), the same bytes
// crypto.Proof.Verify checks the signature against.
type WireProof struct {
	Writer        crypto.WriterID
	VersionVector []byte
	RootHash      crypto.Hash
	Signature     crypto.Signature
}

func EncodeProof(p crypto.Proof) WireProof {
	return WireProof{
		Writer:        p.Writer,
		VersionVector: p.VersionVector.Encode(),
		RootHash:      p.RootHash,
		Signature:     p.Signature,
	}
}

func (w WireProof) Decode() (crypto.Proof, error) {
	vv, err := crypto.DecodeVersionVector(w.VersionVector)
	if err != nil {
		return crypto.Proof{}, fmt.Errorf("protocol: decode proof: %w", err)
	}
	return crypto.Proof{Writer: w.Writer, VersionVector: vv, RootHash: w.RootHash, Signature: w.Signature}, nil
}

// WireSummary is index.Summary's wire form; the client and server convert
// between the two at the boundary.
type WireSummary struct {
	IsComplete   bool
	Presence     byte
	PresentCount int
}

// WireLeafNode is index.LeafNode's wire form.
type WireLeafNode struct {
	Locator   crypto.LocatorHash
	BlockID   crypto.BlockID
	IsMissing bool
}

// WireBlock is a fetched block's wire form. AuthTag is carried so the
// caller can reassemble a complete blockstore.Block. The protocol layer
// performs no check on Content: it does not compare a hash of Content with
// ID. Decryption and auth-tag verification happen in the repository layer
// once a reader with the read key actually opens the blob.
type WireBlock struct {
	ID      crypto.BlockID
	Content []byte
	AuthTag [crypto.TagSize]byte
	Nonce   [12]byte
}

// Response is a server->client answer to one Request. ParentHash identifies
// which ChildNodes request an InnerNodes/LeafNodes response answers, since a
// client can have more than one such request outstanding at once.
type Response struct {
	Tag        ResponseTag
	ParentHash crypto.Hash `codec:",omitempty"`

	RootNode struct {
		Proof   WireProof
		Summary WireSummary
	} `codec:",omitempty"`

	InnerNodes map[byte]crypto.Hash `codec:",omitempty"`
	LeafNodes  []WireLeafNode       `codec:",omitempty"`
	Block      WireBlock            `codec:",omitempty"`
}

// EncodeMessage renders kind and payload (a *Request or *Response) as one
// message content blob: a one-byte discriminant followed by msgpack.
func EncodeMessage(kind Kind, payload any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(kind))
	enc := codec.NewEncoder(&buf, &msgpackHandle)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("protocol: encode message: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRequest decodes content as a Request. content must have come from
// EncodeMessage(KindRequest, ...).
func DecodeRequest(content []byte) (Request, error) {
	var req Request
	if err := decodeTagged(content, KindRequest, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeResponse decodes content as a Response.
func DecodeResponse(content []byte) (Response, error) {
	var resp Response
	if err := decodeTagged(content, KindResponse, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// PeekKind returns content's leading discriminant without decoding the rest.
func PeekKind(content []byte) (Kind, error) {
	if len(content) < 1 {
		return 0, fmt.Errorf("protocol: empty message content: %w", errs.Malformed)
	}
	return Kind(content[0]), nil
}

func decodeTagged(content []byte, want Kind, out any) error {
	if len(content) < 1 {
		return fmt.Errorf("protocol: empty message content: %w", errs.Malformed)
	}
	if Kind(content[0]) != want {
		return fmt.Errorf("protocol: message kind %d, want %d: %w", content[0], want, errs.Malformed)
	}
	dec := codec.NewDecoder(bytes.NewReader(content[1:]), &msgpackHandle)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("protocol: decode message: %w", errs.Malformed)
	}
	return nil
}
