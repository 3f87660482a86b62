package sftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNListOrder(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "b.txt", "bb")
	writeLocal(t, srv, "a.txt", "aaaa")
	writeLocal(t, srv, "z/c.txt", "c")

	s.SetListOrder(Asc(SortFilename))
	names, ok := s.NList(".", false)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a.txt", "b.txt"}, names)

	names, ok = s.NList("", true)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "z/c.txt", "a.txt", "b.txt"}, names)

	s.SetListOrder(Desc(SortFilename))
	names, _ = s.NList(".", false)
	assert.Equal(t, []string{"z", "b.txt", "a.txt"}, names)

	s.SetListOrder(Desc(SortSize), Asc(SortFilename))
	names, _ = s.NList(".", false)
	assert.Equal(t, []string{"z", "a.txt", "b.txt"}, names)
}

func TestNListCaseInsensitive(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "B.txt", "")
	writeLocal(t, srv, "a.txt", "")
	writeLocal(t, srv, "C.txt", "")

	s.SetListOrder(Asc(SortFilename))
	names, ok := s.NList(".", false)
	require.True(t, ok)
	assert.Equal(t, []string{"a.txt", "B.txt", "C.txt"}, names)
}

func TestNListUnsorted(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "b.txt", "")
	writeLocal(t, srv, "a.txt", "")

	names, ok := s.NList(".", false)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
	assert.NotContains(t, names, ".")
	assert.NotContains(t, names, "..")
}

func TestSetListOrderIgnoresUnknown(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "b.txt", "")
	writeLocal(t, srv, "a.txt", "")

	s.SetListOrder(Asc("colour"), Asc(SortFilename))
	names, ok := s.NList(".", false)
	require.True(t, ok)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestRawList(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "b.txt", "bb")
	writeLocal(t, srv, "sub/a.txt", "aaaa")

	s.SetListOrder(Asc(SortFilename))
	entries, ok := s.RawList(".", true)
	require.True(t, ok)
	require.Len(t, entries, 3)
	assert.Equal(t, "sub", entries[0].Name)
	assert.True(t, entries[0].Stat.IsDir())
	assert.Equal(t, "sub/a.txt", entries[1].Name)
	assert.EqualValues(t, 4, entries[1].Stat.Size)
	assert.Equal(t, "b.txt", entries[2].Name)
	assert.EqualValues(t, 2, entries[2].Stat.Size)

	_, ok = s.RawList("missing", false)
	assert.False(t, ok)
	assert.Error(t, s.Err())
}
