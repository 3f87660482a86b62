package sftp

import (
	"errors"
	"os"
	"path"
	"time"
)

// NoMode lets the server choose the permissions of a new directory.
const NoMode os.FileMode = 1<<32 - 1

// Truncate sets the size of p.
func (s *Session) Truncate(p string, size int64) bool {
	if s.begin("truncate", p) != nil {
		return false
	}
	defer s.invalidate()
	if err := s.transport.Truncate(s.resolve(p), size); err != nil {
		s.fail("truncate", p, err)
		return false
	}
	return true
}

// Touch sets the modification and access time of p, creating an empty file
// if p does not exist. Zero times mean now.
func (s *Session) Touch(p string, mtime, atime time.Time) (bool, error) {
	if err := s.begin("touch", p); err != nil {
		return false, err
	}
	defer s.invalidate()
	now := time.Now()
	if mtime.IsZero() {
		mtime = now
	}
	if atime.IsZero() {
		atime = now
	}
	rp := s.resolve(p)
	if _, err := s.transport.Lstat(rp); errors.Is(err, os.ErrNotExist) {
		f, err := s.transport.OpenFile(rp, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
		if err != nil {
			return s.result("touch", p, err)
		}
		if err := f.Close(); err != nil {
			return s.result("touch", p, err)
		}
	}
	return s.result("touch", p, s.transport.Chtimes(rp, atime, mtime))
}

// walk calls fn for rp and, if recursive and rp is a directory, for
// everything below it. Symbolic links are not followed.
func (s *Session) walk(rp string, recursive bool, fn func(p string, st *FileStat) error) error {
	fi, err := s.transport.Lstat(rp)
	if err != nil {
		return err
	}
	st := newFileStat(fi)
	if err := fn(rp, st); err != nil {
		return err
	}
	if !recursive || !st.IsDir() {
		return nil
	}
	children, err := s.transport.ReadDir(rp)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Name() == "." || child.Name() == ".." {
			continue
		}
		if err := s.walk(path.Join(rp, child.Name()), true, fn); err != nil {
			return err
		}
	}
	return nil
}

// Chown changes the owner of p (and everything below it if recursive).
func (s *Session) Chown(p string, uid int, recursive bool) bool {
	if s.begin("chown", p) != nil {
		return false
	}
	defer s.invalidate()
	err := s.walk(s.resolve(p), recursive, func(fp string, st *FileStat) error {
		return s.transport.Chown(fp, uid, int(st.GID))
	})
	if err != nil {
		s.fail("chown", p, err)
		return false
	}
	return true
}

// Chgrp changes the group of p (and everything below it if recursive).
func (s *Session) Chgrp(p string, gid int, recursive bool) bool {
	if s.begin("chgrp", p) != nil {
		return false
	}
	defer s.invalidate()
	err := s.walk(s.resolve(p), recursive, func(fp string, st *FileStat) error {
		return s.transport.Chown(fp, int(st.UID), gid)
	})
	if err != nil {
		s.fail("chgrp", p, err)
		return false
	}
	return true
}

// Chmod sets the permissions of p. Non recursive calls return the mode the
// server reports afterwards. Recursive calls skip symbolic links and return a
// zero mode.
func (s *Session) Chmod(mode os.FileMode, p string, recursive bool) (os.FileMode, bool, error) {
	if err := s.begin("chmod", p); err != nil {
		return 0, false, err
	}
	s.invalidate()
	rp := s.resolve(p)
	if !recursive {
		if ok, err := s.result("chmod", p, s.transport.Chmod(rp, mode)); !ok {
			return 0, false, err
		}
		st, err := s.stat(rp, true)
		if err != nil {
			ok, err := s.result("chmod", p, err)
			return 0, ok, err
		}
		return st.Mode, true, nil
	}
	err := s.walk(rp, true, func(fp string, st *FileStat) error {
		if st.Mode&os.ModeSymlink != 0 {
			return nil
		}
		return s.transport.Chmod(fp, mode)
	})
	s.invalidate()
	ok, err := s.result("chmod", p, err)
	return 0, ok, err
}

// ReadLink returns the target of the symbolic link p.
func (s *Session) ReadLink(p string) (string, error) {
	if err := s.begin("readlink", p); err != nil {
		return "", err
	}
	target, err := s.transport.ReadLink(s.resolve(p))
	if err != nil {
		return "", s.connErr("readlink", p, err)
	}
	return target, nil
}

// Symlink creates link pointing to target. The target is stored verbatim.
func (s *Session) Symlink(target, link string) (bool, error) {
	if err := s.begin("symlink", link); err != nil {
		return false, err
	}
	defer s.invalidate()
	return s.result("symlink", link, s.transport.Symlink(target, s.resolve(link)))
}

// Mkdir creates dir. With recursive, missing parents are created too and
// every created directory gets mode. An existing dir is a false result.
func (s *Session) Mkdir(dir string, mode os.FileMode, recursive bool) (bool, error) {
	if err := s.begin("mkdir", dir); err != nil {
		return false, err
	}
	defer s.invalidate()
	rp := s.resolve(dir)

	missing := []string{rp}
	if recursive {
		if _, err := s.transport.Lstat(rp); err == nil {
			return s.result("mkdir", dir, os.ErrExist)
		}
		for parent := path.Dir(rp); ; parent = path.Dir(parent) {
			if _, err := s.transport.Stat(parent); err == nil {
				break
			} else if !errors.Is(err, os.ErrNotExist) {
				return s.result("mkdir", dir, err)
			}
			missing = append(missing, parent)
			if parent == path.Dir(parent) {
				break
			}
		}
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := s.transport.Mkdir(missing[i]); err != nil {
			return s.result("mkdir", dir, err)
		}
		if mode != NoMode {
			if err := s.transport.Chmod(missing[i], mode); err != nil {
				return s.result("mkdir", dir, err)
			}
		}
	}
	return true, nil
}

// Rmdir removes the empty directory dir.
func (s *Session) Rmdir(dir string) (bool, error) {
	if err := s.begin("rmdir", dir); err != nil {
		return false, err
	}
	defer s.invalidate()
	return s.result("rmdir", dir, s.transport.RemoveDirectory(s.resolve(dir)))
}

// Delete removes p. A directory is removed with its contents if recursive,
// otherwise only if it is empty.
func (s *Session) Delete(p string, recursive bool) (bool, error) {
	if err := s.begin("delete", p); err != nil {
		return false, err
	}
	defer s.invalidate()
	rp := s.resolve(p)
	fi, err := s.transport.Lstat(rp)
	if err != nil {
		return s.result("delete", p, err)
	}
	if recursive && fi.IsDir() {
		return s.result("delete", p, s.removeTree(rp))
	}
	return s.result("delete", p, s.transport.Remove(rp))
}

func (s *Session) removeTree(rp string) error {
	children, err := s.transport.ReadDir(rp)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Name() == "." || child.Name() == ".." {
			continue
		}
		cp := path.Join(rp, child.Name())
		if child.IsDir() {
			if err := s.removeTree(cp); err != nil {
				return err
			}
			continue
		}
		if err := s.transport.Remove(cp); err != nil {
			return err
		}
	}
	return s.transport.RemoveDirectory(rp)
}

// Rename renames oldName to newName.
func (s *Session) Rename(oldName, newName string) (bool, error) {
	if err := s.begin("rename", oldName); err != nil {
		return false, err
	}
	defer s.invalidate()
	return s.result("rename", oldName, s.transport.Rename(s.resolve(oldName), s.resolve(newName)))
}
