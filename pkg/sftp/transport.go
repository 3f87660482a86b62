package sftp

import (
	"os"
	"strings"
	"time"

	"github.com/goph/emperror"
	xssh "github.com/je4/sftpsession/v2/pkg/ssh"
	"github.com/op/go-logging"
	"github.com/pkg/sftp"
)

// Transport is the part of an sftp client a Session relies on.
// *sftp.Client satisfies it.
type Transport interface {
	Getwd() (string, error)
	RealPath(path string) (string, error)
	Stat(p string) (os.FileInfo, error)
	Lstat(p string) (os.FileInfo, error)
	ReadDir(p string) ([]os.FileInfo, error)
	Truncate(path string, size int64) error
	Chtimes(path string, atime time.Time, mtime time.Time) error
	Chown(path string, uid, gid int) error
	Chmod(path string, mode os.FileMode) error
	ReadLink(p string) (string, error)
	Symlink(oldname, newname string) error
	Mkdir(path string) error
	RemoveDirectory(path string) error
	Remove(path string) error
	Rename(oldname, newname string) error
	Open(path string) (*sftp.File, error)
	OpenFile(path string, f int) (*sftp.File, error)
	Close() error
}

var _ Transport = (*sftp.Client)(nil)

// Dialer constructs an authenticated transport. Implementations signal
// rejected credentials with an error wrapping *ssh.AuthError of package
// github.com/je4/sftpsession/v2/pkg/ssh.
type Dialer interface {
	Dial(address, user, password string, timeout time.Duration) (Transport, error)
}

// SSHDialer opens an sftp subsystem over an ssh connection. With a Pool the
// ssh connection is shared between all transports for the same user and
// address. PrivateKeys are offered before the password.
type SSHDialer struct {
	Pool                 *xssh.ConnectionPool
	PrivateKeys          []string
	KnownHosts           string
	MaxClientConcurrency int
	MaxPacketSize        int
	Log                  *logging.Logger
}

type sshTransport struct {
	*sftp.Client
	release func() error
}

func (t *sshTransport) Close() error {
	err := t.Client.Close()
	if rerr := t.release(); err == nil {
		err = rerr
	}
	return err
}

func (d *SSHDialer) Dial(address, user, password string, timeout time.Duration) (Transport, error) {
	config, err := xssh.NewClientConfig(user, password, d.PrivateKeys, d.KnownHosts, timeout)
	if err != nil {
		return nil, err
	}

	var conn *xssh.Connection
	var release func() error
	if d.Pool != nil {
		secret := strings.Join(append([]string{password}, d.PrivateKeys...), "\x00")
		conn, err = d.Pool.GetConnection(address, user, secret, config, d.MaxClientConcurrency, d.MaxPacketSize)
		if err != nil {
			return nil, err
		}
		release = func() error { return d.Pool.Release(conn) }
	} else {
		conn, err = xssh.NewConnection(address, user, config, d.MaxClientConcurrency, d.MaxPacketSize, d.Log)
		if err != nil {
			return nil, err
		}
		release = conn.Close
	}

	client, err := conn.NewSFTPClient()
	if err != nil {
		release()
		return nil, emperror.Wrapf(err, "cannot open sftp subsystem on %s@%s", user, address)
	}
	return &sshTransport{Client: client, release: release}, nil
}
