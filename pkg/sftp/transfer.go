package sftp

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"github.com/goph/emperror"
	"github.com/machinebox/progress"
)

// ProgressFunc receives the number of bytes transferred so far. It is called
// after every chunk, before the transfer returns. Calls never overlap.
type ProgressFunc func(transferred int64)

// Transfer describes the part of a file to move. A nil *Transfer moves the
// whole file.
type Transfer struct {
	// Offset is the first byte read (download) or written (upload) remotely.
	// An upload with Offset > 0 does not truncate the remote file.
	Offset int64
	// Length limits the number of bytes moved; zero or negative means up to
	// the end.
	Length int64
	// OnProgress is optional.
	OnProgress ProgressFunc
}

func (t *Transfer) orDefault() *Transfer {
	if t == nil {
		return &Transfer{}
	}
	return t
}

func (t *Transfer) limit(r io.Reader) io.Reader {
	if t.Length > 0 {
		return io.LimitReader(r, t.Length)
	}
	return r
}

type progressWriter struct {
	*progress.Writer
	onProgress ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	if n > 0 {
		w.onProgress(w.N())
	}
	return n, err
}

type progressReader struct {
	*progress.Reader
	onProgress ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if n > 0 {
		r.onProgress(r.N())
	}
	return n, err
}

func copyWithProgress(dst io.Writer, src io.Reader, onProgress ProgressFunc) (int64, error) {
	if onProgress == nil {
		return io.Copy(dst, src)
	}
	return io.CopyBuffer(&progressWriter{Writer: progress.NewWriter(dst), onProgress: onProgress}, src, make([]byte, 32*1024))
}

func (s *Session) finishStages() {
	for _, stage := range s.stages {
		if f, ok := stage.(Finisher); ok {
			f.Finish()
		}
	}
}

// GetTo writes the remote file (or the part selected by t) to w.
func (s *Session) GetTo(remotePath string, w io.Writer, t *Transfer) (bool, error) {
	if err := s.begin("get", remotePath); err != nil {
		return false, err
	}
	t = t.orDefault()
	f, err := s.transport.Open(s.resolve(remotePath))
	if err != nil {
		return s.result("get", remotePath, err)
	}
	defer f.Close()

	if t.Offset > 0 {
		if _, err := f.Seek(t.Offset, io.SeekStart); err != nil {
			return s.result("get", remotePath, err)
		}
	}
	src := t.limit(f)
	dst := w
	for _, stage := range s.stages {
		dst = stage.StartWriter(dst)
	}
	defer s.finishStages()

	start := time.Now()
	written, err := copyWithProgress(dst, src, t.OnProgress)
	if err != nil {
		return s.result("get", remotePath, emperror.Wrapf(err, "cannot read data from %s", remotePath))
	}
	s.logThroughput("read", remotePath, written, time.Since(start))
	return true, nil
}

// Get returns the content of the remote file (or the part selected by t).
func (s *Session) Get(remotePath string, t *Transfer) ([]byte, bool, error) {
	var buf bytes.Buffer
	ok, err := s.GetTo(remotePath, &buf, t)
	if !ok {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// GetFile downloads the remote file into localPath. A partially written
// local file is removed on failure.
func (s *Session) GetFile(remotePath, localPath string, t *Transfer) (bool, error) {
	if err := s.begin("get", remotePath); err != nil {
		return false, err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return false, s.connErr("get", remotePath, emperror.Wrapf(err, "cannot create file %s", localPath))
	}
	ok, err := s.GetTo(remotePath, f, t)
	if cerr := f.Close(); cerr != nil && ok {
		ok, err = false, s.connErr("get", remotePath, emperror.Wrapf(cerr, "cannot close file %s", localPath))
	}
	if !ok {
		os.Remove(localPath)
	}
	return ok, err
}

// PutFrom uploads the content of r to remotePath. A missing parent directory
// is reported as *ConnectionError.
func (s *Session) PutFrom(remotePath string, r io.Reader, t *Transfer) (bool, error) {
	if err := s.begin("put", remotePath); err != nil {
		return false, err
	}
	t = t.orDefault()
	defer s.invalidate()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if t.Offset > 0 {
		flags = os.O_WRONLY | os.O_CREATE
	}
	f, err := s.transport.OpenFile(s.resolve(remotePath), flags)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, s.connErr("put", remotePath, emperror.Wrapf(err, "cannot create remote file %s", remotePath))
		}
		return s.result("put", remotePath, err)
	}
	if t.Offset > 0 {
		if _, err := f.Seek(t.Offset, io.SeekStart); err != nil {
			f.Close()
			return s.result("put", remotePath, err)
		}
	}

	src := t.limit(r)
	for _, stage := range s.stages {
		src = stage.StartReader(src)
	}
	if t.OnProgress != nil {
		src = &progressReader{Reader: progress.NewReader(src), onProgress: t.OnProgress}
	}
	defer s.finishStages()

	start := time.Now()
	written, err := f.ReadFromWithConcurrency(src, s.concurrency)
	if err != nil {
		f.Close()
		return s.result("put", remotePath, emperror.Wrap(err, "cannot copy data"))
	}
	if err := f.Close(); err != nil {
		return s.result("put", remotePath, emperror.Wrapf(err, "cannot close remote file %s", remotePath))
	}
	s.logThroughput("written", remotePath, written, time.Since(start))
	return true, nil
}

// Put uploads data to remotePath, replacing its content.
func (s *Session) Put(remotePath string, data []byte) (bool, error) {
	return s.PutFrom(remotePath, bytes.NewReader(data), nil)
}

// PutFile uploads the local file at localPath.
func (s *Session) PutFile(remotePath, localPath string, t *Transfer) (bool, error) {
	if err := s.begin("put", remotePath); err != nil {
		return false, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return false, s.connErr("put", remotePath, emperror.Wrapf(err, "cannot open file %s", localPath))
	}
	defer f.Close()
	return s.PutFrom(remotePath, f, t)
}

func (s *Session) logThroughput(what, remotePath string, n int64, since time.Duration) {
	secs := float64(since) / float64(time.Second)
	if secs <= 0 {
		secs = 1e-9
	}
	s.log.Debugf("%s %s: %dB %.2fs %.2fMB/s", what, remotePath, n, secs, (float64(n)/1000000)/secs)
}

// PutItem is one upload of PutMultiple. LocalPath takes precedence over Data.
type PutItem struct {
	Remote    string
	Data      []byte
	LocalPath string
	// Overwrite replaces an existing remote file; otherwise the item is skipped.
	Overwrite bool
}

type PutResult struct {
	Remote   string
	Uploaded bool
	Skipped  bool
	Err      error
}

// PutMultiple uploads every item independently and reports per item.
func (s *Session) PutMultiple(items []PutItem) []PutResult {
	results := make([]PutResult, 0, len(items))
	for _, item := range items {
		res := PutResult{Remote: item.Remote}
		if !item.Overwrite {
			if s.FileExists(item.Remote) {
				res.Skipped = true
				results = append(results, res)
				continue
			}
			if err := s.Err(); errors.Is(err, ErrNotConnected) {
				res.Err = err
				results = append(results, res)
				continue
			}
		}
		var ok bool
		var err error
		if item.LocalPath != "" {
			ok, err = s.PutFile(item.Remote, item.LocalPath, nil)
		} else {
			ok, err = s.Put(item.Remote, item.Data)
		}
		res.Uploaded = ok
		res.Err = err
		if !ok && err == nil {
			res.Err = s.Err()
		}
		results = append(results, res)
	}
	return results
}
