package localstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/localstate"
)

func openTestStore(t *testing.T) *localstate.Store {
	t.Helper()
	s, err := localstate.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeviceIDIsGeneratedOnceAndPersists(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.DeviceID()
	require.NoError(t, err)
	assert.False(t, id1.IsZero())

	id2, err := s.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestRegisterAndListRepositories(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RegisterRepository("docs", "/data/docs.db", "ouisync://write/docs"))
	require.NoError(t, s.RegisterRepository("photos", "/data/photos.db", "ouisync://write/photos"))

	repos, err := s.RegisteredRepositories()
	require.NoError(t, err)
	assert.Len(t, repos, 2)

	require.NoError(t, s.UnregisterRepository("docs"))
	repos, err = s.RegisteredRepositories()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "photos", repos[0].Name)
}

func TestSelfConnectionCache(t *testing.T) {
	s := openTestStore(t)

	known, err := s.IsSelfConnection("127.0.0.1:1234")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, s.MarkSelfConnection("127.0.0.1:1234"))

	known, err = s.IsSelfConnection("127.0.0.1:1234")
	require.NoError(t, err)
	assert.True(t, known)
}
