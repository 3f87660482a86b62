package sftp

import (
	"hash"
	"io"

	logger "github.com/op/go-logging"
)

// Checksum hashes the transferred bytes.
type Checksum struct {
	mac    hash.Hash
	logger *logger.Logger
}

func NewChecksum(mac hash.Hash, logger *logger.Logger) *Checksum {
	return &Checksum{
		mac:    mac,
		logger: logger,
	}
}

func (c *Checksum) StartReader(reader io.Reader) io.Reader {
	c.mac.Reset()
	return io.TeeReader(reader, c.mac)
}

func (c *Checksum) StartWriter(writer io.Writer) io.Writer {
	c.mac.Reset()
	return io.MultiWriter(writer, c.mac)
}

func (c *Checksum) Finish() {
	if c.logger != nil {
		c.logger.Debugf("checksum %x", c.mac.Sum(nil))
	}
}

// Sum returns the hash of the last transfer.
func (c *Checksum) Sum() []byte {
	return c.mac.Sum(nil)
}
