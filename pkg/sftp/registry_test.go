package sftp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLazy(t *testing.T) {
	r := NewRegistry()
	built := 0
	r.Register("test", func() (*Session, error) {
		built++
		return NewSession(), nil
	})
	assert.Equal(t, 0, built)

	s1, err := r.Session("test")
	require.NoError(t, err)
	s2, err := r.Session("test")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, built)

	_, err = r.Session("other")
	assert.Error(t, err)

	r.Close()
	s3, err := r.Session("test")
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
	assert.Equal(t, 2, built)
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("test", func() (*Session, error) { return nil, boom })
	_, err := r.Session("test")
	assert.ErrorIs(t, err, boom)
}

func TestDefaultRegistry(t *testing.T) {
	srv := startServer(t)
	Init(NewLoginFactory(testUser, testPassword, serverOpts(srv)))
	defer Teardown()

	s, err := Default()
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated())
	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, 1, srv.Logins())

	Teardown()
	assert.False(t, s.IsAuthenticated())
}

func TestLoginFactoryRejected(t *testing.T) {
	srv := startServer(t)
	r := NewRegistry()
	r.Register(DefaultName, NewLoginFactory(testUser, "wrong", serverOpts(srv)))

	_, err := r.Session(DefaultName)
	var authErr *AuthenticationError
	assert.True(t, errors.As(err, &authErr))
}
