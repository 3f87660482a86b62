package sftp

import (
	"fmt"
	"net/url"
	"strconv"
)

// LoginURL logs in with the user, host and port of an sftp:// URL and
// returns its path. A password in the URL takes precedence over password.
func (s *Session) LoginURL(uri *url.URL, password string, opts ...LoginOption) (string, error) {
	if uri.Scheme != "sftp" {
		return "", &ConnectionError{Op: "login", Path: uri.Redacted(), Err: fmt.Errorf("invalid uri scheme %s for sftp", uri.Scheme)}
	}
	user := ""
	if uri.User != nil {
		user = uri.User.Username()
		if pw, ok := uri.User.Password(); ok {
			password = pw
		}
	}
	if host := uri.Hostname(); host != "" {
		opts = append(opts, WithHost(host))
	}
	if ps := uri.Port(); ps != "" {
		port, err := strconv.Atoi(ps)
		if err != nil {
			return "", &ConnectionError{Op: "login", Path: uri.Redacted(), Err: fmt.Errorf("invalid port %q", ps)}
		}
		opts = append(opts, WithPort(port))
	}
	if err := s.Login(user, password, opts...); err != nil {
		return "", err
	}
	return uri.Path, nil
}
