package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/je4/sftpsession/v2/pkg/sftptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "tester"
	testPassword = "t3st"
)

func startServer(t *testing.T) *sftptest.Server {
	t.Helper()
	srv, err := sftptest.NewServer(t.TempDir(), testUser, testPassword)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func testConfig(t *testing.T, password string) *ssh.ClientConfig {
	t.Helper()
	config, err := NewPasswordConfig(testUser, password, "", 5*time.Second)
	require.NoError(t, err)
	return config
}

func TestConnectionSFTPClient(t *testing.T) {
	srv := startServer(t)
	conn, err := NewConnection(srv.Addr(), testUser, testConfig(t, testPassword), 0, 0, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.Alive())
	assert.Equal(t, srv.Addr(), conn.Address())
	assert.Equal(t, testUser, conn.User())

	client, err := conn.NewSFTPClient()
	require.NoError(t, err)
	defer client.Close()
	fi, err := client.Stat(srv.Root())
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	require.NoError(t, conn.Close())
	assert.False(t, conn.Alive())
}

func TestConnectionAuthError(t *testing.T) {
	srv := startServer(t)
	_, err := NewConnection(srv.Addr(), testUser, testConfig(t, "wrong"), 0, 0, nil)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 0, srv.Logins())
}

func TestConnectionRefused(t *testing.T) {
	srv := startServer(t)
	addr := srv.Addr()
	require.NoError(t, srv.Close())

	_, err := NewConnection(addr, testUser, testConfig(t, testPassword), 0, 0, nil)
	require.Error(t, err)
	assert.False(t, IsAuthError(err))
}

func TestPoolReuse(t *testing.T) {
	srv := startServer(t)
	pool := NewConnectionPool(nil)
	defer pool.Close()
	config := testConfig(t, testPassword)

	c1, err := pool.GetConnection(srv.Addr(), testUser, testPassword, config, 0, 0)
	require.NoError(t, err)
	c2, err := pool.GetConnection(srv.Addr(), testUser, testPassword, config, 0, 0)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, srv.Logins())
	assert.Equal(t, PoolStats{Connections: 1, References: 2}, pool.Stats())

	require.NoError(t, pool.Release(c1))
	assert.True(t, c2.Alive())
	assert.Equal(t, PoolStats{Connections: 1, References: 1}, pool.Stats())

	require.NoError(t, pool.Release(c2))
	assert.False(t, c2.Alive())
	assert.Equal(t, PoolStats{}, pool.Stats())
}

func TestPoolSeparatesCredentials(t *testing.T) {
	srv := startServer(t)
	pool := NewConnectionPool(nil)
	defer pool.Close()

	c1, err := pool.GetConnection(srv.Addr(), testUser, testPassword, testConfig(t, testPassword), 0, 0)
	require.NoError(t, err)
	_, err = pool.GetConnection(srv.Addr(), testUser, "wrong", testConfig(t, "wrong"), 0, 0)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, PoolStats{Connections: 1, References: 1}, pool.Stats())

	require.NoError(t, pool.Close())
	assert.False(t, c1.Alive())
	assert.Equal(t, PoolStats{}, pool.Stats())
}

func TestPoolRedialsDeadConnection(t *testing.T) {
	srv := startServer(t)
	pool := NewConnectionPool(nil)
	defer pool.Close()
	config := testConfig(t, testPassword)

	c1, err := pool.GetConnection(srv.Addr(), testUser, testPassword, config, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := pool.GetConnection(srv.Addr(), testUser, testPassword, config, 0, 0)
	require.NoError(t, err)
	assert.True(t, c2.Alive())
	assert.Equal(t, 2, srv.Logins())
	assert.Equal(t, PoolStats{Connections: 1, References: 1}, pool.Stats())
}

func TestClientConfigPrivateKey(t *testing.T) {
	srv := startServer(t)
	keyFile, pub, err := sftptest.NewKeyFile(t.TempDir())
	require.NoError(t, err)
	srv.AuthorizeKey(pub)

	config, err := NewClientConfig(testUser, "", []string{keyFile}, "", 5*time.Second)
	require.NoError(t, err)
	require.Len(t, config.Auth, 1)
	conn, err := NewConnection(srv.Addr(), testUser, config, 0, 0, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, conn.Alive())
	assert.Equal(t, 1, srv.Logins())

	config, err = NewClientConfig(testUser, testPassword, []string{keyFile}, "", 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, config.Auth, 3)
}

func TestClientConfigBadKey(t *testing.T) {
	_, err := NewClientConfig(testUser, "", []string{filepath.Join(t.TempDir(), "missing")}, "", time.Second)
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken")
	require.NoError(t, os.WriteFile(broken, []byte("not a key"), 0600))
	_, err = NewClientConfig(testUser, "", []string{broken}, "", time.Second)
	assert.Error(t, err)
}
