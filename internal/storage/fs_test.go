package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put("/certificates/r1.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	require.Equal(t, "certificates/r1.pdf", key)

	rc, err := s.Get(key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "%PDF", string(b))

	_, err = s.Put(key, strings.NewReader("%PDF-2"))
	require.NoError(t, err, "overwrite")

	_, err = s.Get("certificates/missing.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	for _, k := range []string{"", "../etc/passwd", "a/../../b", "/"} {
		_, err := s.Put(k, strings.NewReader("x"))
		require.Error(t, err, k)
	}
}
