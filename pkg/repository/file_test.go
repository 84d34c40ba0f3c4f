package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/repository"
)

// TestSingleWriterWriteReadRoundTrip exercises the single-writer scenario:
// create /hello.txt, write content, flush, then reopen and read it back with
// the expected version vector visible on the directory entry.
func TestSingleWriterWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, branch, key := openTestBranch(t)
	writer := key.WriterID()

	root, err := repository.CreateRoot(branch)
	require.NoError(t, err)

	file, err := repository.CreateFile(root, "hello.txt", writer)
	require.NoError(t, err)

	_, err = file.Write(ctx, []byte("hi"))
	require.NoError(t, err)

	vv := crypto.NewVersionVector().Incr(writer)
	require.NoError(t, file.Flush(ctx, vv))
	file.Close()

	reopenedRoot, err := repository.OpenRoot(ctx, branch)
	require.NoError(t, err)

	entry, ok := reopenedRoot.Entry("hello.txt", writer)
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.VersionVector.Get(writer))

	reopenedFile, err := repository.OpenFile(ctx, reopenedRoot, "hello.txt", writer)
	require.NoError(t, err)
	defer reopenedFile.Close()

	buf := make([]byte, 2)
	n, err := reopenedFile.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("hi"), buf)
}

// TestForkAcrossWritersReusesBlocks exercises forking a file created by one
// writer into a second writer's branch: the forked copy must read back the
// same content without re-sealing any block (the block ids it resolves to
// are identical to the original's).
func TestForkAcrossWritersReusesBlocks(t *testing.T) {
	ctx := context.Background()
	s, branchA, keyA := openTestBranch(t)
	writerA := keyA.WriterID()

	keyB, err := crypto.GenerateWriteKey()
	require.NoError(t, err)
	writerB := keyB.WriterID()
	branchB := repository.OpenBranch(s.DB(), writerB, mustReadKey(t, keyA), &keyB)

	rootA, err := repository.CreateRoot(branchA)
	require.NoError(t, err)

	fileA, err := repository.CreateFile(rootA, "shared.txt", writerA)
	require.NoError(t, err)
	_, err = fileA.Write(ctx, []byte("shared content"))
	require.NoError(t, err)

	vvA := crypto.NewVersionVector().Incr(writerA)
	require.NoError(t, fileA.Flush(ctx, vvA))

	rootB, err := repository.CreateRoot(branchB)
	require.NoError(t, err)

	vvB := crypto.NewVersionVector().Incr(writerB)
	forkedFile, err := fileA.Fork(ctx, branchB, rootB, vvB)
	require.NoError(t, err)
	defer forkedFile.Close()

	require.NoError(t, rootB.Flush(ctx, vvB))

	buf := make([]byte, len("shared content"))
	n, err := forkedFile.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, []byte("shared content"), buf)

	entry, ok := rootB.Entry("shared.txt", writerB)
	require.True(t, ok)
	assert.Equal(t, fileA.Len(), forkedFile.Len())
	assert.NotEqual(t, crypto.Hash{}, entry.BlobID)
}

func mustReadKey(t *testing.T, key crypto.WriteKey) []byte {
	t.Helper()
	access := crypto.NewWriteAccess(key)
	readKey, ok := access.ReadKey()
	require.True(t, ok)
	return readKey[:]
}
