package loader

import (
	"archive/zip"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ZipLoader serves templates from a zip archive. Entry modification times
// are used as resource modification times.
type ZipLoader struct {
	reader  *zip.Reader
	closer  io.Closer
	entries map[string]*zip.File
}

// OpenZipLoader opens the archive at path. Close releases it.
func OpenZipLoader(path string) (*ZipLoader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	l := newZipLoader(&rc.Reader)
	l.closer = rc
	return l, nil
}

// NewZipLoader reads an archive of the given size from r.
func NewZipLoader(r io.ReaderAt, size int64) (*ZipLoader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read zip: %w", err)
	}
	return newZipLoader(zr), nil
}

func newZipLoader(zr *zip.Reader) *ZipLoader {
	l := &ZipLoader{reader: zr, entries: make(map[string]*zip.File)}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		l.entries[CleanName(f.Name)] = f
	}
	return l
}

func (l *ZipLoader) Load(name, encoding string) (*Resource, error) {
	name = CleanName(name)
	f, ok := l.entries[name]
	if !ok {
		return nil, notFound(name)
	}
	return NewResource(name, encoding, f.Modified, func() (io.ReadCloser, error) {
		return f.Open()
	}), nil
}

func (l *ZipLoader) List() ([]string, error) {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases an archive opened with OpenZipLoader.
func (l *ZipLoader) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
