package sftp

import (
	"crypto/cipher"
	"hash"
	"io"

	"github.com/blend/go-sdk/crypto"
	logger "github.com/op/go-logging"
	"github.com/tidwall/transform"
)

// Encrypt encrypts uploads and downloads with a stream cipher and
// authenticates the cipher text with mac. The stream carries state, so an
// Encrypt serves a single transfer.
type Encrypt struct {
	stream cipher.Stream
	block  cipher.Block
	mac    hash.Hash
	iv     []byte
	logger *logger.Logger
}

func NewEncrypt(block cipher.Block, stream cipher.Stream, mac hash.Hash, iv []byte, logger *logger.Logger) *Encrypt {
	enc := &Encrypt{
		block:  block,
		stream: stream,
		mac:    mac,
		iv:     iv,
		logger: logger,
	}
	return enc
}

func (e *Encrypt) StartReader(reader io.Reader) io.Reader {
	enc := &crypto.StreamEncrypter{
		Source: reader,
		Block:  e.block,
		Stream: e.stream,
		Mac:    e.mac,
		IV:     e.iv,
	}

	var rbuf = make([]byte, 4096)
	return transform.NewTransformer(func() ([]byte, error) {
		n, err := enc.Read(rbuf)
		if n > 0 {
			return rbuf[:n], nil
		}
		return nil, err
	})
}

func (e *Encrypt) StartWriter(writer io.Writer) io.Writer {
	return &cipher.StreamWriter{
		S: e.stream,
		W: io.MultiWriter(writer, e.mac),
	}
}

func (e *Encrypt) Finish() {
	if e.logger != nil {
		e.logger.Debugf("encrypted stream mac %x", e.mac.Sum(nil))
	}
}

// Sum returns the mac of the cipher text written so far.
func (e *Encrypt) Sum() []byte {
	return e.mac.Sum(nil)
}

func (e *Encrypt) IV() []byte {
	return e.iv
}
