package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/protocol"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	req := &protocol.Request{Tag: protocol.ReqBlock, BlockID: crypto.BlockIDOf([]byte("block"))}

	content, err := protocol.EncodeMessage(protocol.KindRequest, req)
	require.NoError(t, err)

	kind, err := protocol.PeekKind(content)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindRequest, kind)

	decoded, err := protocol.DecodeRequest(content)
	require.NoError(t, err)
	assert.Equal(t, *req, decoded)
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	key, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	vv := crypto.NewVersionVector().Incr(key.WriterID())
	rootHash := crypto.HashBytes([]byte("root"))
	proof := crypto.SignProof(key, vv, rootHash)

	resp := &protocol.Response{Tag: protocol.RespRootNode}
	resp.RootNode.Proof = protocol.EncodeProof(proof)
	resp.RootNode.Summary = protocol.WireSummary{IsComplete: true, Presence: 2, PresentCount: 3}

	content, err := protocol.EncodeMessage(protocol.KindResponse, resp)
	require.NoError(t, err)

	decoded, err := protocol.DecodeResponse(content)
	require.NoError(t, err)
	assert.Equal(t, resp.RootNode.Summary, decoded.RootNode.Summary)

	decodedProof, err := decoded.RootNode.Proof.Decode()
	require.NoError(t, err)
	assert.Equal(t, proof.Writer, decodedProof.Writer)
	assert.Equal(t, proof.RootHash, decodedProof.RootHash)
	assert.Equal(t, proof.Signature, decodedProof.Signature)
	assert.Equal(t, crypto.Equal, proof.VersionVector.Compare(decodedProof.VersionVector))
}

func TestResponseCarriesParentHashForChildNodeReplies(t *testing.T) {
	hash := crypto.HashBytes([]byte("parent"))
	resp := &protocol.Response{
		Tag:        protocol.RespInnerNodes,
		ParentHash: hash,
		InnerNodes: map[byte]crypto.Hash{0: crypto.HashBytes([]byte("child"))},
	}

	content, err := protocol.EncodeMessage(protocol.KindResponse, resp)
	require.NoError(t, err)

	decoded, err := protocol.DecodeResponse(content)
	require.NoError(t, err)
	assert.Equal(t, hash, decoded.ParentHash)
	assert.Equal(t, resp.InnerNodes, decoded.InnerNodes)
}

func TestDecodeRequestRejectsWrongKind(t *testing.T) {
	content, err := protocol.EncodeMessage(protocol.KindResponse, &protocol.Response{})
	require.NoError(t, err)

	_, err = protocol.DecodeRequest(content)
	assert.ErrorIs(t, err, errs.Malformed)
}

func TestPeekKindRejectsEmptyContent(t *testing.T) {
	_, err := protocol.PeekKind(nil)
	assert.ErrorIs(t, err, errs.Malformed)
}
