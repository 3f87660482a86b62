package ssh

import (
	"errors"
	"strings"

	"github.com/goph/emperror"
	"github.com/op/go-logging"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// AuthError is returned when the server completed the handshake but rejected
// every offered authentication method.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error it wraps) is an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

type Connection struct {
	client               *ssh.Client
	config               *ssh.ClientConfig
	address              string
	log                  *logging.Logger
	maxClientConcurrency int
	maxPacketSize        int
}

func NewConnection(address, user string, config *ssh.ClientConfig, maxClientConcurrency, maxPacketSize int, log *logging.Logger) (*Connection, error) {
	// create copy of config with user
	newConfig := &ssh.ClientConfig{
		Config:            config.Config,
		User:              user,
		Auth:              config.Auth,
		HostKeyCallback:   config.HostKeyCallback,
		BannerCallback:    config.BannerCallback,
		ClientVersion:     config.ClientVersion,
		HostKeyAlgorithms: config.HostKeyAlgorithms,
		Timeout:           config.Timeout,
	}

	if log == nil {
		log = logging.MustGetLogger("ssh")
	}
	sc := &Connection{
		client:               nil,
		log:                  log,
		config:               newConfig,
		address:              address,
		maxClientConcurrency: maxClientConcurrency,
		maxPacketSize:        maxPacketSize,
	}
	// connect
	if err := sc.Connect(); err != nil {
		return nil, emperror.Wrapf(err, "cannot connect to %s@%s", user, address)
	}
	return sc, nil
}

func (sc *Connection) Connect() error {
	client, err := ssh.Dial("tcp", sc.address, sc.config)
	if err != nil {
		// x/crypto/ssh has no typed client side auth error
		if strings.Contains(err.Error(), "unable to authenticate") {
			return &AuthError{Err: emperror.Wrapf(err, "authentication as %s at %v rejected", sc.config.User, sc.address)}
		}
		return emperror.Wrapf(err, "unable to connect to %v", sc.address)
	}
	sc.client = client
	sc.log.Debugf("ssh connection to %s@%s established", sc.config.User, sc.address)
	return nil
}

// Alive sends a keepalive request and reports whether the server answered.
func (sc *Connection) Alive() bool {
	if sc.client == nil {
		return false
	}
	_, _, err := sc.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

func (sc *Connection) Address() string { return sc.address }

func (sc *Connection) User() string { return sc.config.User }

func (sc *Connection) Close() error {
	if sc.client == nil {
		return nil
	}
	err := sc.client.Close()
	sc.client = nil
	if err != nil {
		return emperror.Wrapf(err, "cannot close ssh connection to %s", sc.address)
	}
	sc.log.Debugf("ssh connection to %s@%s closed", sc.config.User, sc.address)
	return nil
}

func (sc *Connection) clientOptions() []sftp.ClientOption {
	var opts []sftp.ClientOption
	if sc.maxPacketSize > 0 {
		opts = append(opts, sftp.MaxPacket(sc.maxPacketSize))
	}
	if sc.maxClientConcurrency > 0 {
		opts = append(opts, sftp.MaxConcurrentRequestsPerFile(sc.maxClientConcurrency))
	}
	return opts
}

// NewSFTPClient opens a new sftp subsystem channel on the connection.
// A broken connection is redialed once.
func (sc *Connection) NewSFTPClient() (*sftp.Client, error) {
	if sc.client == nil {
		if err := sc.Connect(); err != nil {
			return nil, err
		}
	}
	sftpclient, err := sftp.NewClient(sc.client, sc.clientOptions()...)
	if err != nil {
		sc.log.Infof("cannot get sftp subsystem - reconnecting to %s@%s", sc.config.User, sc.address)
		sc.client.Close()
		if err := sc.Connect(); err != nil {
			return nil, emperror.Wrapf(err, "cannot connect with ssh to %s@%s", sc.config.User, sc.address)
		}
		sftpclient, err = sftp.NewClient(sc.client, sc.clientOptions()...)
		if err != nil {
			return nil, emperror.Wrapf(err, "cannot create sftp client on %s@%s", sc.config.User, sc.address)
		}
	}
	return sftpclient, nil
}
