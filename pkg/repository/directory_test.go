package repository_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
	"github.com/J-Pabon/ouisync/pkg/repository"
)

func TestDirectoryInsertRejectsNonAdvancingVersionVector(t *testing.T) {
	_, branch, key := openTestBranch(t)
	dir, err := repository.CreateRoot(branch)
	require.NoError(t, err)

	writer := key.WriterID()
	vv1 := crypto.NewVersionVector().Incr(writer)
	require.NoError(t, dir.Insert("a.txt", writer, repository.EntryFile, crypto.Hash{1}, vv1))

	err = dir.Insert("a.txt", writer, repository.EntryFile, crypto.Hash{2}, vv1)
	assert.ErrorIs(t, err, errs.EntryExists)
}

func TestDirectoryInsertPreservesConcurrentEntries(t *testing.T) {
	_, branch, keyA := openTestBranch(t)
	dir, err := repository.CreateRoot(branch)
	require.NoError(t, err)

	keyB, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	vvA := crypto.NewVersionVector().Incr(keyA.WriterID())
	vvB := crypto.NewVersionVector().Incr(keyB.WriterID())

	require.NoError(t, dir.Insert("a.txt", keyA.WriterID(), repository.EntryFile, crypto.Hash{1}, vvA))
	require.NoError(t, dir.Insert("a.txt", keyB.WriterID(), repository.EntryFile, crypto.Hash{2}, vvB))

	versions := dir.Versions("a.txt")
	assert.Len(t, versions, 2, "concurrent entries from distinct writers must both survive")
}

func TestDirectoryInsertDropsDominatedConcurrentEntry(t *testing.T) {
	_, branch, keyA := openTestBranch(t)
	dir, err := repository.CreateRoot(branch)
	require.NoError(t, err)

	keyB, err := crypto.GenerateWriteKey()
	require.NoError(t, err)

	vvB := crypto.NewVersionVector().Incr(keyB.WriterID())
	require.NoError(t, dir.Insert("a.txt", keyB.WriterID(), repository.EntryFile, crypto.Hash{2}, vvB))

	// A's new entry causally descends from B's (merge then increment), so it
	// dominates B's entry and B's concurrent entry is dropped.
	vvA := vvB.Merge(crypto.NewVersionVector()).Incr(keyA.WriterID())
	require.NoError(t, dir.Insert("a.txt", keyA.WriterID(), repository.EntryFile, crypto.Hash{1}, vvA))

	versions := dir.Versions("a.txt")
	assert.Len(t, versions, 1)
	_, stillThere := versions[keyB.WriterID()]
	assert.False(t, stillThere, "B's dominated entry should have been dropped")
}

func TestDirectoryRemoveTombstonesEntry(t *testing.T) {
	_, branch, key := openTestBranch(t)
	dir, err := repository.CreateRoot(branch)
	require.NoError(t, err)

	writer := key.WriterID()
	vv1 := crypto.NewVersionVector().Incr(writer)
	require.NoError(t, dir.Insert("a.txt", writer, repository.EntryFile, crypto.Hash{1}, vv1))

	vv2 := vv1.Incr(writer)
	require.NoError(t, dir.Remove("a.txt", writer, vv2))

	_, ok := dir.Entry("a.txt", writer)
	assert.False(t, ok, "a tombstoned entry must not be visible through Entry")
}

func TestDirectoryRenameMovesEntry(t *testing.T) {
	_, branch, key := openTestBranch(t)
	dir, err := repository.CreateRoot(branch)
	require.NoError(t, err)

	writer := key.WriterID()
	vv1 := crypto.NewVersionVector().Incr(writer)
	require.NoError(t, dir.Insert("old.txt", writer, repository.EntryFile, crypto.Hash{1}, vv1))

	vv2 := vv1.Incr(writer)
	require.NoError(t, dir.Rename("old.txt", "new.txt", writer, vv2))

	_, ok := dir.Entry("old.txt", writer)
	assert.False(t, ok)

	entry, ok := dir.Entry("new.txt", writer)
	require.True(t, ok)
	assert.Equal(t, crypto.Hash{1}, entry.BlobID)
}
