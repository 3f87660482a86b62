// Package sftptest provides an in-process SSH server with an sftp subsystem
// for tests. Files are served from the local filesystem; clients should use
// absolute paths below Root().
package sftptest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/goph/emperror"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig
	root     string
	logins   atomic.Int32
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	keys     [][]byte
	closed   bool
}

// NewServer starts a server on a random loopback port for a single user. The
// user logs in with password or with a key added by AuthorizeKey.
func NewServer(root, user, password string) (*Server, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, emperror.Wrap(err, "cannot generate host key")
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, emperror.Wrap(err, "cannot create host key signer")
	}

	s := &Server{
		root:  root,
		conns: map[net.Conn]struct{}{},
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if conn.User() == user && string(pass) == password {
				s.logins.Add(1)
				return &ssh.Permissions{}, nil
			}
			return nil, emperror.Wrapf(errPermissionDenied, "password rejected for %s", conn.User())
		},
	}
	s.config.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
		if conn.User() == user && s.authorized(key) {
			s.logins.Add(1)
			return &ssh.Permissions{}, nil
		}
		return nil, emperror.Wrapf(errPermissionDenied, "public key rejected for %s", conn.User())
	}
	s.config.AddHostKey(signer)

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, emperror.Wrap(err, "cannot listen on loopback")
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

type serverError string

func (e serverError) Error() string { return string(e) }

const errPermissionDenied = serverError("permission denied")

func (s *Server) Root() string { return s.root }

// Addr returns host:port of the listener.
func (s *Server) Addr() string { return s.listener.Addr().String() }

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	p, _ := strconv.Atoi(port)
	return p
}

// AuthorizeKey lets the user log in with the private key of pub.
func (s *Server) AuthorizeKey(pub ssh.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, pub.Marshal())
}

func (s *Server) authorized(key ssh.PublicKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if bytes.Equal(k, key.Marshal()) {
			return true
		}
	}
	return false
}

// Logins returns the number of successful authentications so far.
func (s *Server) Logins() int { return int(s.logins.Load()) }

func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go s.serveChannel(channel, requests)
	}
}

func (s *Server) serveChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer s.wg.Done()
	defer channel.Close()

	subsystem := make(chan bool, 1)
	go func() {
		started := false
		for req := range requests {
			ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
			req.Reply(ok, nil)
			if ok && !started {
				started = true
				subsystem <- true
			}
		}
		if !started {
			subsystem <- false
		}
	}()
	if !<-subsystem {
		return
	}

	server, err := sftp.NewServer(channel)
	if err != nil {
		return
	}
	server.Serve()
	server.Close()
}
