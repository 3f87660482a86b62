package sftp

import (
	"errors"
	"fmt"
	"os"

	"github.com/pkg/sftp"
)

// ErrNotConnected is the cause of every failure on a session without an
// authenticated transport.
var ErrNotConnected = errors.New("not connected")

// AuthenticationError is returned by Login when the server rejected the
// credentials. The session stays unauthenticated.
type AuthenticationError struct {
	User    string
	Address string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication of %s at %s failed: %v", e.User, e.Address, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ConnectionError wraps any transport level or malformed input condition
// reported while connecting or while running an operation.
type ConnectionError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sftp %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sftp %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// isStatusFailure reports whether err is an answer of the server to a valid
// request (missing file, permission denied, generic failure) as opposed to a
// broken transport.
func isStatusFailure(err error) bool {
	var se *sftp.StatusError
	return errors.As(err, &se) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrExist)
}
