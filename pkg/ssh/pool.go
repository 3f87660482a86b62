package ssh

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/goph/emperror"
	"github.com/op/go-logging"
	"golang.org/x/crypto/ssh"
)

// ConnectionPool shares ssh connections between sftp clients. Connections are
// keyed by address, user and a hash of the secret and reference counted.
type ConnectionPool struct {
	mu          sync.Mutex
	connections map[string]*pooledConnection
	log         *logging.Logger
}

type pooledConnection struct {
	conn *Connection
	refs int
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Connections int
	References  int
}

func NewConnectionPool(log *logging.Logger) *ConnectionPool {
	if log == nil {
		log = logging.MustGetLogger("ssh")
	}
	return &ConnectionPool{
		connections: map[string]*pooledConnection{},
		log:         log,
	}
}

func connectionKey(address, user, secret string) string {
	h := sha256.New()
	h.Write([]byte(address))
	h.Write([]byte{0})
	h.Write([]byte(user))
	h.Write([]byte{0})
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// GetConnection returns a live connection for user@address, dialing a new one
// if none is pooled or the pooled one does not answer keepalives.
// Every successful call must be paired with Release.
func (p *ConnectionPool) GetConnection(address, user, secret string, config *ssh.ClientConfig, maxClientConcurrency, maxPacketSize int) (*Connection, error) {
	key := connectionKey(address, user, secret)

	p.mu.Lock()
	defer p.mu.Unlock()

	if pc, ok := p.connections[key]; ok {
		if pc.conn.Alive() {
			pc.refs++
			return pc.conn, nil
		}
		p.log.Infof("pooled connection to %s@%s is dead - dropping", user, address)
		pc.conn.Close()
		delete(p.connections, key)
	}

	conn, err := NewConnection(address, user, config, maxClientConcurrency, maxPacketSize, p.log)
	if err != nil {
		return nil, err
	}
	p.connections[key] = &pooledConnection{conn: conn, refs: 1}
	return conn, nil
}

// Release drops one reference and closes the connection when none are left.
func (p *ConnectionPool) Release(conn *Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, pc := range p.connections {
		if pc.conn != conn {
			continue
		}
		pc.refs--
		if pc.refs > 0 {
			return nil
		}
		delete(p.connections, key)
		return pc.conn.Close()
	}
	// not pooled (anymore)
	return conn.Close()
}

func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Connections: len(p.connections)}
	for _, pc := range p.connections {
		stats.References += pc.refs
	}
	return stats
}

// Close closes all pooled connections regardless of their references.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, pc := range p.connections {
		if err := pc.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.connections, key)
	}
	if len(errs) > 0 {
		return emperror.Wrapf(errs[0], "cannot close %d pooled connections", len(errs))
	}
	return nil
}
