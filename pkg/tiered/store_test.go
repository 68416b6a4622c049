package tiered

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/security"
)

func TestPutGetRoundTripUnsealed(t *testing.T) {
	s, err := New(t.TempDir(), 1, nil)
	require.NoError(t, err)
	defer s.Close()

	ref, err := s.Put([]byte("hello tiered world"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, ref.FileID)
	assert.EqualValues(t, 0, ref.Offset)

	got, err := s.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "hello tiered world", string(got))
}

func TestPutGetRoundTripSealed(t *testing.T) {
	key := security.DeriveKeyFromClusterID("cluster-a")
	s, err := New(t.TempDir(), 2, key)
	require.NoError(t, err)
	defer s.Close()

	ref, err := s.Put([]byte("secret payload"))
	require.NoError(t, err)

	got, err := s.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "secret payload", string(got))
}

func TestSealedStoreCannotBeReadWithWrongKey(t *testing.T) {
	dir := t.TempDir()
	keyA := security.DeriveKeyFromClusterID("cluster-a")
	keyB := security.DeriveKeyFromClusterID("cluster-b")

	writer, err := New(dir, 3, keyA)
	require.NoError(t, err)
	ref, err := writer.Put([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader, err := New(dir, 3, keyB)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Get(ref)
	assert.Error(t, err)
}

func TestMultiplePutsAreIndependentlyAddressable(t *testing.T) {
	s, err := New(t.TempDir(), 4, nil)
	require.NoError(t, err)
	defer s.Close()

	refA, err := s.Put([]byte("first"))
	require.NoError(t, err)
	refB, err := s.Put([]byte("second-longer-payload"))
	require.NoError(t, err)

	gotA, err := s.Get(refA)
	require.NoError(t, err)
	gotB, err := s.Get(refB)
	require.NoError(t, err)
	assert.Equal(t, "first", string(gotA))
	assert.Equal(t, "second-longer-payload", string(gotB))
}

func TestReopenStoreReadsPriorPayloads(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, 5, nil)
	require.NoError(t, err)
	ref, err := s1.Put([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := New(dir, 5, nil)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))
}
