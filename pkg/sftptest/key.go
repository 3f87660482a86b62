package sftptest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/goph/emperror"
	"golang.org/x/crypto/ssh"
)

// NewKeyFile writes a fresh unencrypted ed25519 private key in OpenSSH
// format to dir and returns its path and public key.
func NewKeyFile(dir string) (string, ssh.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, emperror.Wrap(err, "cannot generate key")
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return "", nil, emperror.Wrap(err, "cannot marshal private key")
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", nil, emperror.Wrap(err, "cannot convert public key")
	}
	fp := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(fp, pem.EncodeToMemory(block), 0600); err != nil {
		return "", nil, emperror.Wrapf(err, "cannot write %s", fp)
	}
	return fp, sshPub, nil
}
