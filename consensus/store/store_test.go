package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/storage"
)

func TestStoreSaveLoadValidatorsRoundTrip(t *testing.T) {
	s := New(storage.NewMemDB())

	_, ok, err := s.LoadValidators()
	require.NoError(t, err)
	require.False(t, ok)

	want := []Validator{
		{Address: []byte{0x01}, PubKey: []byte{0xaa, 0xbb}, Power: 10, Moniker: "node-a"},
		{Address: []byte{0x02}, PubKey: []byte{0xcc, 0xdd}, Power: 20, Moniker: "node-b"},
	}
	require.NoError(t, s.SaveValidators(want))

	got, ok, err := s.LoadValidators()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestStoreSaveValidatorsRequiresDB(t *testing.T) {
	var s *Store
	require.Error(t, s.SaveValidators(nil))

	uninitialised := &Store{}
	_, _, err := uninitialised.LoadValidators()
	require.Error(t, err)
}
