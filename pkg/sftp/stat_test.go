package sftp

import (
	"errors"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStat(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "data.txt", "0123456789")
	writeLocal(t, srv, "dir/x", "")

	st, ok := s.Stat("data.txt")
	require.True(t, ok)
	assert.Equal(t, "data.txt", st.Name)
	assert.EqualValues(t, 10, st.Size)
	assert.Equal(t, "file", st.Type())
	assert.EqualValues(t, os.Getuid(), st.UID)

	st, ok = s.Stat("dir")
	require.True(t, ok)
	assert.True(t, st.IsDir())
	assert.Equal(t, "dir", st.Type())

	_, ok = s.Stat("missing")
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), os.ErrNotExist)
	var connErr *ConnectionError
	require.True(t, errors.As(s.Err(), &connErr))
	assert.Equal(t, "stat", connErr.Op)
}

func TestFileHelpers(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "data.txt", "0123456789")
	writeLocal(t, srv, "dir/x", "")

	assert.True(t, s.FileExists("data.txt"))
	assert.True(t, s.FileExists("dir"))
	assert.False(t, s.FileExists("nope"))

	assert.True(t, s.IsFile("data.txt"))
	assert.False(t, s.IsFile("dir"))
	assert.True(t, s.IsDir("dir"))
	assert.False(t, s.IsDir("data.txt"))
	assert.False(t, s.IsDir("nope"))
	assert.False(t, s.IsLink("data.txt"))

	size, ok := s.FileSize("data.txt")
	require.True(t, ok)
	assert.EqualValues(t, 10, size)

	perms, ok := s.FilePerms("data.txt")
	require.True(t, ok)
	assert.Equal(t, os.FileMode(0644), perms.Perm())

	owner, ok := s.FileOwner("data.txt")
	require.True(t, ok)
	assert.EqualValues(t, os.Getuid(), owner)
	group, ok := s.FileGroup("data.txt")
	require.True(t, ok)
	assert.EqualValues(t, os.Getgid(), group)

	fi, err := os.Stat(path.Join(srv.Root(), "data.txt"))
	require.NoError(t, err)
	mtime, ok := s.FileMTime("data.txt")
	require.True(t, ok)
	assert.Equal(t, fi.ModTime().Unix(), mtime.Unix())
	_, ok = s.FileATime("data.txt")
	assert.True(t, ok)

	typ, ok := s.FileType("dir")
	require.True(t, ok)
	assert.Equal(t, "dir", typ)

	_, ok = s.FileSize("nope")
	assert.False(t, ok)
	_, ok = s.FileType("nope")
	assert.False(t, ok)
}

func TestReadableWritable(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "data.txt", "0123456789")

	ok, err := s.IsReadable("data.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsWritable("data.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0123456789", readLocal(t, srv, "data.txt"))

	ok, err = s.IsReadable("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.IsWritable("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.FileExists("nope"))
}

func TestStatCache(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "data.txt", "0123456789")

	size, ok := s.FileSize("data.txt")
	require.True(t, ok)
	assert.EqualValues(t, 10, size)

	// changed behind the back of the session
	writeLocal(t, srv, "data.txt", "01234")
	size, _ = s.FileSize("data.txt")
	assert.EqualValues(t, 10, size)

	s.ClearStatCache()
	size, _ = s.FileSize("data.txt")
	assert.EqualValues(t, 5, size)

	s.SetStatCache(false)
	writeLocal(t, srv, "data.txt", "012")
	size, _ = s.FileSize("data.txt")
	assert.EqualValues(t, 3, size)
}

func TestStatCacheInvalidatedByMutation(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "data.txt", "0123456789")

	require.True(t, s.FileExists("data.txt"))
	ok, err := s.Delete("data.txt", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, s.FileExists("data.txt"))
}

func TestTruncate(t *testing.T) {
	s, srv := login(t)
	writeLocal(t, srv, "data.txt", "0123456789")

	size, _ := s.FileSize("data.txt")
	require.EqualValues(t, 10, size)
	require.True(t, s.Truncate("data.txt", 0))
	size, ok := s.FileSize("data.txt")
	require.True(t, ok)
	assert.EqualValues(t, 0, size)

	require.True(t, s.Truncate("data.txt", 4))
	assert.Equal(t, "\x00\x00\x00\x00", readLocal(t, srv, "data.txt"))

	assert.False(t, s.Truncate("nope/data.txt", 0))
	assert.Error(t, s.Err())
}
