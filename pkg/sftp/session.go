package sftp

import (
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	xssh "github.com/je4/sftpsession/v2/pkg/ssh"
	"github.com/op/go-logging"
)

const (
	DefaultHost    = "localhost"
	DefaultPort    = 22
	DefaultTimeout = 10 * time.Second

	defaultStatCacheSize = 1024
)

// Session owns at most one transport to a remote sftp server and exposes
// file and directory operations on it.
//
// Operations follow one of two conventions. Operations returning an error
// report transport failures as *ConnectionError and server side refusals
// (missing file, permission denied) as a false result. Operations without an
// error return report every failure as a false result; the cause is available
// through Err.
//
// A Session is not safe for concurrent use.
type Session struct {
	host    string
	port    int
	timeout time.Duration
	user    string

	transport Transport
	dialer    Dialer
	cwd       string

	statCache    bool
	cache        gcache.Cache
	canonicalize bool
	order        []SortKey
	stages       []TransferStage
	concurrency  int

	log *logging.Logger
	err error
}

type Option func(*Session)

func WithDialer(dialer Dialer) Option {
	return func(s *Session) { s.dialer = dialer }
}

func WithLogger(log *logging.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithUploadConcurrency sets the number of parallel write requests per
// upload. Zero uses the maximum of the sftp client.
func WithUploadConcurrency(concurrency int) Option {
	return func(s *Session) { s.concurrency = concurrency }
}

func WithStatCacheSize(size int) Option {
	return func(s *Session) { s.cache = gcache.New(size).LRU().Build() }
}

// NewSession creates an unauthenticated session. Without WithDialer, Login
// dials a dedicated ssh connection.
func NewSession(opts ...Option) *Session {
	s := &Session{
		statCache:    true,
		canonicalize: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.MustGetLogger("sftp")
	}
	if s.cache == nil {
		s.cache = gcache.New(defaultStatCacheSize).LRU().Build()
	}
	if s.dialer == nil {
		s.dialer = &SSHDialer{Log: s.log}
	}
	return s
}

type loginOptions struct {
	host    string
	port    int
	timeout time.Duration
}

type LoginOption func(*loginOptions)

func WithHost(host string) LoginOption {
	return func(o *loginOptions) { o.host = host }
}

func WithPort(port int) LoginOption {
	return func(o *loginOptions) { o.port = port }
}

func WithTimeout(timeout time.Duration) LoginOption {
	return func(o *loginOptions) { o.timeout = timeout }
}

// Login connects to host:port (default localhost:22, 10s timeout) and
// authenticates with username and password. An existing transport is released
// first. Rejected credentials return *AuthenticationError, everything else
// that prevents the transport from being built returns *ConnectionError.
func (s *Session) Login(username, password string, opts ...LoginOption) error {
	lo := loginOptions{host: DefaultHost, port: DefaultPort, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&lo)
	}
	s.err = nil
	if s.transport != nil {
		s.ResetConnection()
	}
	if lo.host == "" || lo.port <= 0 || lo.port > 65535 {
		return &ConnectionError{Op: "login", Err: fmt.Errorf("invalid address %q port %d", lo.host, lo.port)}
	}
	address := net.JoinHostPort(lo.host, strconv.Itoa(lo.port))

	transport, err := s.dialer.Dial(address, username, password, lo.timeout)
	if err != nil {
		if xssh.IsAuthError(err) {
			s.log.Warningf("login as %s at %s rejected", username, address)
			return &AuthenticationError{User: username, Address: address, Err: err}
		}
		s.log.Warningf("cannot connect to %s: %v", address, err)
		return &ConnectionError{Op: "login", Path: address, Err: err}
	}
	cwd, err := transport.Getwd()
	if err != nil {
		transport.Close()
		return &ConnectionError{Op: "login", Path: address, Err: err}
	}

	s.transport = transport
	s.host, s.port, s.timeout, s.user = lo.host, lo.port, lo.timeout, username
	s.cwd = cwd
	s.cache.Purge()
	s.log.Infof("logged in as %s at %s", username, address)
	return nil
}

// ResetConnection releases the transport. The session must login again
// before further use.
func (s *Session) ResetConnection() *Session {
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Warningf("cannot close transport to %s:%d: %v", s.host, s.port, err)
		}
		s.log.Infof("connection to %s:%d reset", s.host, s.port)
	}
	s.transport = nil
	s.cwd = ""
	s.cache.Purge()
	return s
}

func (s *Session) IsAuthenticated() bool { return s.transport != nil }

// Err returns the cause of the most recent false result, or nil.
func (s *Session) Err() error { return s.err }

func (s *Session) SetStatCache(enabled bool) *Session {
	s.statCache = enabled
	if !enabled {
		s.cache.Purge()
	}
	return s
}

func (s *Session) ClearStatCache() *Session {
	s.cache.Purge()
	return s
}

// SetPathCanonicalization toggles cleaning of paths. Relative paths are
// always joined to the working directory; when disabled, "." and ".."
// segments are left for the server to resolve.
func (s *Session) SetPathCanonicalization(enabled bool) *Session {
	s.canonicalize = enabled
	return s
}

// SetTransferStages sets the stages wrapping the data stream of every
// following upload (StartReader) and download (StartWriter).
func (s *Session) SetTransferStages(stages ...TransferStage) *Session {
	s.stages = stages
	return s
}

// Pwd returns the remote working directory.
func (s *Session) Pwd() (string, bool) {
	if s.begin("pwd", "") != nil {
		return "", false
	}
	return s.cwd, true
}

// RealPath asks the server for the canonical absolute form of p.
func (s *Session) RealPath(p string) (string, error) {
	if err := s.begin("realpath", p); err != nil {
		return "", err
	}
	rp, err := s.transport.RealPath(s.resolve(p))
	if err != nil {
		return "", s.connErr("realpath", p, err)
	}
	return rp, nil
}

// Chdir changes the remote working directory. A missing or non directory
// target is an error.
func (s *Session) Chdir(dir string) error {
	if err := s.begin("chdir", dir); err != nil {
		return err
	}
	target := dir
	if !path.IsAbs(target) {
		target = path.Join(s.cwd, target)
	}
	target = path.Clean(target)
	st, err := s.stat(target, true)
	if err != nil {
		return s.connErr("chdir", dir, err)
	}
	if !st.IsDir() {
		return s.connErr("chdir", dir, fmt.Errorf("not a directory"))
	}
	s.cwd = target
	return nil
}

func (s *Session) resolve(p string) string {
	if p == "" {
		p = "."
	}
	if !s.canonicalize {
		if path.IsAbs(p) {
			return p
		}
		return strings.TrimSuffix(s.cwd, "/") + "/" + p
	}
	if !path.IsAbs(p) {
		p = path.Join(s.cwd, p)
	}
	return path.Clean(p)
}

// begin resets the error of the previous operation and checks the transport.
func (s *Session) begin(op, p string) error {
	s.err = nil
	if s.transport == nil {
		s.err = &ConnectionError{Op: op, Path: p, Err: ErrNotConnected}
		return s.err
	}
	s.log.Debugf("%s %s", op, p)
	return nil
}

// fail records the cause of a false result.
func (s *Session) fail(op, p string, err error) {
	s.err = &ConnectionError{Op: op, Path: p, Err: err}
	s.log.Debugf("%s %s failed: %v", op, p, err)
}

func (s *Session) connErr(op, p string, err error) error {
	s.err = &ConnectionError{Op: op, Path: p, Err: err}
	s.log.Warningf("%v", s.err)
	return s.err
}

// result maps err to the error returning convention: server refusals become
// false, transport failures become *ConnectionError.
func (s *Session) result(op, p string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if isStatusFailure(err) {
		s.fail(op, p, err)
		return false, nil
	}
	return false, s.connErr(op, p, err)
}
