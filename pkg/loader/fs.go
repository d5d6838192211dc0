package loader

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// FSLoader loads templates from an fs.FS.
type FSLoader struct {
	fsys     fs.FS
	suffixes []string
}

// NewFSLoader creates a loader over fsys. List only reports files with one
// of the given suffixes; with none, every file is listed.
func NewFSLoader(fsys fs.FS, suffixes ...string) *FSLoader {
	return &FSLoader{fsys: fsys, suffixes: suffixes}
}

// NewFileLoader creates a loader rooted at a directory.
func NewFileLoader(dir string, suffixes ...string) *FSLoader {
	return NewFSLoader(os.DirFS(dir), suffixes...)
}

func (l *FSLoader) Load(name, encoding string) (*Resource, error) {
	name = CleanName(name)
	if name == "" {
		return nil, notFound(name)
	}
	info, err := fs.Stat(l.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(name)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, notFound(name)
	}
	fsys := l.fsys
	return NewResource(name, encoding, info.ModTime(), func() (io.ReadCloser, error) {
		return fsys.Open(name)
	}), nil
}

func (l *FSLoader) List() ([]string, error) {
	var names []string
	err := fs.WalkDir(l.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if l.matches(path) {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (l *FSLoader) matches(path string) bool {
	if len(l.suffixes) == 0 {
		return true
	}
	for _, s := range l.suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}
