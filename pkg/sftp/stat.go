package sftp

import (
	"os"
	"time"

	"github.com/pkg/sftp"
)

// FileStat is the metadata of a remote file as reported by the server.
type FileStat struct {
	Name  string
	Size  int64
	Mode  os.FileMode
	UID   uint32
	GID   uint32
	ATime time.Time
	MTime time.Time
}

func newFileStat(fi os.FileInfo) *FileStat {
	st := &FileStat{
		Name:  fi.Name(),
		Size:  fi.Size(),
		Mode:  fi.Mode(),
		MTime: fi.ModTime(),
		ATime: fi.ModTime(),
	}
	if sys, ok := fi.Sys().(*sftp.FileStat); ok {
		st.UID = sys.UID
		st.GID = sys.GID
		st.ATime = time.Unix(int64(sys.Atime), 0)
	}
	return st
}

func (st *FileStat) IsDir() bool { return st.Mode.IsDir() }

// Type returns one of file, dir, link, fifo, socket, char, block or unknown.
func (st *FileStat) Type() string {
	switch t := st.Mode.Type(); {
	case t == 0:
		return "file"
	case t&os.ModeDir != 0:
		return "dir"
	case t&os.ModeSymlink != 0:
		return "link"
	case t&os.ModeNamedPipe != 0:
		return "fifo"
	case t&os.ModeSocket != 0:
		return "socket"
	case t&os.ModeCharDevice != 0:
		return "char"
	case t&os.ModeDevice != 0:
		return "block"
	default:
		return "unknown"
	}
}

func statKey(p string, follow bool) string {
	if follow {
		return "stat:" + p
	}
	return "lstat:" + p
}

// stat queries the server for the already resolved path rp, consulting the
// stat cache if enabled.
func (s *Session) stat(rp string, follow bool) (*FileStat, error) {
	key := statKey(rp, follow)
	if s.statCache {
		if v, err := s.cache.Get(key); err == nil {
			return v.(*FileStat), nil
		}
	}
	var fi os.FileInfo
	var err error
	if follow {
		fi, err = s.transport.Stat(rp)
	} else {
		fi, err = s.transport.Lstat(rp)
	}
	if err != nil {
		return nil, err
	}
	st := newFileStat(fi)
	s.remember(key, st)
	return st, nil
}

func (s *Session) remember(key string, st *FileStat) {
	if !s.statCache {
		return
	}
	if err := s.cache.Set(key, st); err != nil {
		s.log.Debugf("cannot cache %s: %v", key, err)
	}
}

// invalidate drops all cached metadata after a modifying operation.
func (s *Session) invalidate() {
	s.cache.Purge()
}

func (s *Session) statOp(op, p string, follow bool) (*FileStat, bool) {
	if s.begin(op, p) != nil {
		return nil, false
	}
	st, err := s.stat(s.resolve(p), follow)
	if err != nil {
		s.fail(op, p, err)
		return nil, false
	}
	return st, true
}

// Stat returns the metadata of p, following a terminal symbolic link.
func (s *Session) Stat(p string) (*FileStat, bool) {
	return s.statOp("stat", p, true)
}

// Lstat returns the metadata of p without following a terminal symbolic link.
func (s *Session) Lstat(p string) (*FileStat, bool) {
	return s.statOp("lstat", p, false)
}

func (s *Session) FileExists(p string) bool {
	_, ok := s.statOp("exists", p, true)
	return ok
}

func (s *Session) IsDir(p string) bool {
	st, ok := s.statOp("isdir", p, true)
	return ok && st.IsDir()
}

func (s *Session) IsFile(p string) bool {
	st, ok := s.statOp("isfile", p, true)
	return ok && st.Mode.IsRegular()
}

func (s *Session) IsLink(p string) bool {
	st, ok := s.statOp("islink", p, false)
	return ok && st.Mode&os.ModeSymlink != 0
}

func (s *Session) FileATime(p string) (time.Time, bool) {
	st, ok := s.statOp("atime", p, true)
	if !ok {
		return time.Time{}, false
	}
	return st.ATime, true
}

func (s *Session) FileMTime(p string) (time.Time, bool) {
	st, ok := s.statOp("mtime", p, true)
	if !ok {
		return time.Time{}, false
	}
	return st.MTime, true
}

// FilePerms returns the full mode including the type bits.
func (s *Session) FilePerms(p string) (os.FileMode, bool) {
	st, ok := s.statOp("perms", p, true)
	if !ok {
		return 0, false
	}
	return st.Mode, true
}

func (s *Session) FileOwner(p string) (uint32, bool) {
	st, ok := s.statOp("owner", p, true)
	if !ok {
		return 0, false
	}
	return st.UID, true
}

func (s *Session) FileGroup(p string) (uint32, bool) {
	st, ok := s.statOp("group", p, true)
	if !ok {
		return 0, false
	}
	return st.GID, true
}

func (s *Session) FileSize(p string) (int64, bool) {
	st, ok := s.statOp("size", p, true)
	if !ok {
		return 0, false
	}
	return st.Size, true
}

// FileType reports the type of p itself; a symbolic link is "link".
func (s *Session) FileType(p string) (string, bool) {
	st, ok := s.statOp("type", p, false)
	if !ok {
		return "", false
	}
	return st.Type(), true
}

// IsReadable opens p for reading.
func (s *Session) IsReadable(p string) (bool, error) {
	if err := s.begin("readable", p); err != nil {
		return false, err
	}
	f, err := s.transport.Open(s.resolve(p))
	if err != nil {
		return s.result("readable", p, err)
	}
	if err := f.Close(); err != nil {
		s.log.Debugf("cannot close %s: %v", p, err)
	}
	return true, nil
}

// IsWritable opens p for writing without truncating it.
func (s *Session) IsWritable(p string) (bool, error) {
	if err := s.begin("writable", p); err != nil {
		return false, err
	}
	f, err := s.transport.OpenFile(s.resolve(p), os.O_WRONLY)
	if err != nil {
		return s.result("writable", p, err)
	}
	if err := f.Close(); err != nil {
		s.log.Debugf("cannot close %s: %v", p, err)
	}
	return true, nil
}
