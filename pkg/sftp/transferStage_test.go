package sftp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumStage(t *testing.T) {
	s, srv := login(t)
	payload := []byte(strings.Repeat(twenty, 100))
	want := sha256.Sum256(payload)

	sum := NewChecksum(sha256.New(), nil)
	s.SetTransferStages(sum)
	ok, err := s.Put("data.bin", payload)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want[:], sum.Sum())
	assert.Equal(t, string(payload), readLocal(t, srv, "data.bin"))

	data, ok, err := s.Get("data.bin", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, data)
	assert.Equal(t, want[:], sum.Sum())
}

type cipherSetup struct {
	block  cipher.Block
	iv     []byte
	macKey []byte
}

func newCipherSetup(t *testing.T) *cipherSetup {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	cs := &cipherSetup{block: block, iv: make([]byte, aes.BlockSize), macKey: make([]byte, 32)}
	_, err = rand.Read(cs.iv)
	require.NoError(t, err)
	_, err = rand.Read(cs.macKey)
	require.NoError(t, err)
	return cs
}

func (cs *cipherSetup) encrypt() *Encrypt {
	return NewEncrypt(cs.block, cipher.NewCTR(cs.block, cs.iv), hmac.New(sha256.New, cs.macKey), cs.iv, nil)
}

func (cs *cipherSetup) decrypt(data []byte) []byte {
	plain := make([]byte, len(data))
	cipher.NewCTR(cs.block, cs.iv).XORKeyStream(plain, data)
	return plain
}

func (cs *cipherSetup) mac(data []byte) []byte {
	m := hmac.New(sha256.New, cs.macKey)
	m.Write(data)
	return m.Sum(nil)
}

func TestEncryptStageUpload(t *testing.T) {
	s, srv := login(t)
	payload := []byte(strings.Repeat(twenty, 500))
	cs := newCipherSetup(t)

	enc := cs.encrypt()
	s.SetTransferStages(enc)
	ok, err := s.Put("secret.bin", payload)
	require.NoError(t, err)
	require.True(t, ok)

	stored := []byte(readLocal(t, srv, "secret.bin"))
	require.Len(t, stored, len(payload))
	assert.NotEqual(t, payload, stored)
	assert.Equal(t, payload, cs.decrypt(stored))
	assert.Equal(t, cs.mac(stored), enc.Sum())
	assert.Equal(t, cs.iv, enc.IV())
}

func TestEncryptStageDownload(t *testing.T) {
	s, srv := login(t)
	payload := strings.Repeat(twenty, 500)
	writeLocal(t, srv, "plain.bin", payload)
	cs := newCipherSetup(t)

	enc := cs.encrypt()
	s.SetTransferStages(enc)
	var buf bytes.Buffer
	ok, err := s.GetTo("plain.bin", &buf, nil)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, payload, string(cs.decrypt(buf.Bytes())))
	assert.Equal(t, cs.mac(buf.Bytes()), enc.Sum())
}

func TestProgressStage(t *testing.T) {
	payload := strings.Repeat(twenty, 50)
	var calls atomic.Int32
	var complete atomic.Bool
	pm := NewProgress(int64(len(payload)), 5*time.Millisecond, func(remaining time.Duration, percent float64, estimated time.Time, done bool) {
		calls.Add(1)
		if done {
			complete.Store(true)
		}
	})

	data, err := io.ReadAll(pm.StartReader(strings.NewReader(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Eventually(t, complete.Load, time.Second, time.Millisecond)
	pm.Finish()
	assert.NotZero(t, calls.Load())

	// Finish on an idle stage returns immediately
	pm.Finish()
}

func TestProgressStageInSession(t *testing.T) {
	s, srv := login(t)
	payload := []byte(strings.Repeat(twenty, 50))

	pm := NewProgress(int64(len(payload)), time.Millisecond, func(time.Duration, float64, time.Time, bool) {})
	s.SetTransferStages(pm)
	ok, err := s.Put("data.bin", payload)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, pm.cancel)
	assert.Equal(t, string(payload), readLocal(t, srv, "data.bin"))
}
