package ssh

import (
	"os"
	"time"

	"github.com/goph/emperror"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NewPasswordConfig builds a client config authenticating with password and,
// for servers that only offer it, keyboard-interactive with the same secret.
// Without a known_hosts file every host key is accepted.
func NewPasswordConfig(user, password, knownHosts string, timeout time.Duration) (*ssh.ClientConfig, error) {
	return NewClientConfig(user, password, nil, knownHosts, timeout)
}

// NewClientConfig offers the private keys in privateKeys first, then the
// password if it is not empty.
func NewClientConfig(user, password string, privateKeys []string, knownHosts string, timeout time.Duration) (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	var signer []ssh.Signer
	for _, pk := range privateKeys {
		key, err := os.ReadFile(pk)
		if err != nil {
			return nil, emperror.Wrapf(err, "cannot read private key file %s", pk)
		}
		s, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, emperror.Wrapf(err, "unable to parse private key %s", pk)
		}
		signer = append(signer, s)
	}
	if len(signer) > 0 {
		config.Auth = append(config.Auth, ssh.PublicKeys(signer...))
	}
	if password != "" || len(signer) == 0 {
		config.Auth = append(config.Auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if knownHosts != "" {
		hostKeyCallback, err := knownhosts.New(knownHosts)
		if err != nil {
			return nil, emperror.Wrapf(err, "could not create hostkeycallback function for %s", knownHosts)
		}
		config.HostKeyCallback = hostKeyCallback
	}
	return config, nil
}
