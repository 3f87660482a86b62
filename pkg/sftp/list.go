package sftp

import (
	"cmp"
	"path"
	"slices"
	"strings"
)

// SortKey is one criterion of a listing order.
type SortKey struct {
	Field      string
	Descending bool
}

// Valid sort fields.
const (
	SortFilename    = "filename"
	SortSize        = "size"
	SortPermissions = "permissions"
	SortMode        = "mode"
	SortUID         = "uid"
	SortGID         = "gid"
	SortATime       = "atime"
	SortMTime       = "mtime"
	SortType        = "type"
)

func Asc(field string) SortKey  { return SortKey{Field: field} }
func Desc(field string) SortKey { return SortKey{Field: field, Descending: true} }

// DirectoryEntry is one row of a listing. Name is relative to the listed
// directory.
type DirectoryEntry struct {
	Name string
	Stat *FileStat
}

// SetListOrder defines how NList and RawList sort their results. With at
// least one key, directories sort before files and the keys are applied in
// order; filenames compare case insensitively. Without keys the order of the
// server is kept. Unknown fields are ignored.
func (s *Session) SetListOrder(keys ...SortKey) *Session {
	s.order = s.order[:0]
	for _, k := range keys {
		if _, ok := compareField(k.Field, &FileStat{}, &FileStat{}); !ok {
			s.log.Warningf("ignoring unknown sort field %q", k.Field)
			continue
		}
		s.order = append(s.order, k)
	}
	return s
}

// NList returns the names in dir. In recursive mode the names of the
// subdirectory contents follow their directory, joined with "/".
func (s *Session) NList(dir string, recursive bool) ([]string, bool) {
	entries, ok := s.listOp("nlist", dir, recursive)
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, true
}

// RawList is NList including the metadata of each entry.
func (s *Session) RawList(dir string, recursive bool) ([]DirectoryEntry, bool) {
	return s.listOp("rawlist", dir, recursive)
}

func (s *Session) listOp(op, dir string, recursive bool) ([]DirectoryEntry, bool) {
	if dir == "" {
		dir = "."
	}
	if s.begin(op, dir) != nil {
		return nil, false
	}
	entries, err := s.list(s.resolve(dir), "", recursive)
	if err != nil {
		s.fail(op, dir, err)
		return nil, false
	}
	return entries, true
}

func (s *Session) list(dir, prefix string, recursive bool) ([]DirectoryEntry, error) {
	infos, err := s.transport.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	stats := make([]*FileStat, 0, len(infos))
	for _, fi := range infos {
		if fi.Name() == "." || fi.Name() == ".." {
			continue
		}
		st := newFileStat(fi)
		s.remember(statKey(path.Join(dir, st.Name), false), st)
		stats = append(stats, st)
	}
	s.sortStats(stats)

	entries := make([]DirectoryEntry, 0, len(stats))
	for _, st := range stats {
		entries = append(entries, DirectoryEntry{Name: prefix + st.Name, Stat: st})
		if recursive && st.IsDir() {
			children, err := s.list(path.Join(dir, st.Name), prefix+st.Name+"/", true)
			if err != nil {
				return nil, err
			}
			entries = append(entries, children...)
		}
	}
	return entries, nil
}

func (s *Session) sortStats(stats []*FileStat) {
	if len(s.order) == 0 {
		return
	}
	slices.SortStableFunc(stats, func(a, b *FileStat) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		for _, k := range s.order {
			c, _ := compareField(k.Field, a, b)
			if c == 0 {
				continue
			}
			if k.Descending {
				return -c
			}
			return c
		}
		return 0
	})
}

func compareField(field string, a, b *FileStat) (int, bool) {
	var c int
	switch field {
	case SortFilename:
		c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case SortSize:
		c = cmp.Compare(a.Size, b.Size)
	case SortPermissions, SortMode:
		c = cmp.Compare(a.Mode.Perm(), b.Mode.Perm())
	case SortUID:
		c = cmp.Compare(a.UID, b.UID)
	case SortGID:
		c = cmp.Compare(a.GID, b.GID)
	case SortATime:
		c = a.ATime.Compare(b.ATime)
	case SortMTime:
		c = a.MTime.Compare(b.MTime)
	case SortType:
		c = strings.Compare(a.Type(), b.Type())
	default:
		return 0, false
	}
	return c, true
}
