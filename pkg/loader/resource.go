// Package loader resolves template names to template sources.
//
// A Loader returns a Resource for a name. Resources are lazy: nothing is
// read until Source or Open is called, so the engine can compare
// modification times without reading unchanged templates.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

// ErrNotFound is returned, possibly wrapped, when a loader has no template
// with the requested name.
var ErrNotFound = errors.New("template not found")

// DefaultEncoding is used when no encoding is requested.
const DefaultEncoding = "UTF-8"

// Loader resolves template names.
type Loader interface {
	// Load returns the resource for name. encoding names the character set
	// of the stored bytes; empty means DefaultEncoding.
	Load(name, encoding string) (*Resource, error)
	// List returns every template name the loader can serve, sorted.
	List() ([]string, error)
}

// Resource is a loadable template source.
type Resource struct {
	Name         string
	Encoding     string
	LastModified time.Time

	charset string
	open    func() (io.ReadCloser, error)
}

// NewResource creates a resource whose bytes are in the given encoding.
func NewResource(name, encoding string, modified time.Time, open func() (io.ReadCloser, error)) *Resource {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Resource{Name: name, Encoding: encoding, LastModified: modified, charset: encoding, open: open}
}

// NewTextResource creates a resource over already decoded text. encoding
// is recorded but not applied.
func NewTextResource(name, encoding string, modified time.Time, text string) *Resource {
	r := NewResource(name, encoding, modified, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(text)), nil
	})
	r.charset = DefaultEncoding
	return r
}

// Open returns the raw bytes of the resource.
func (r *Resource) Open() (io.ReadCloser, error) {
	return r.open()
}

// Source reads and decodes the whole resource.
func (r *Resource) Source() (string, error) {
	rc, err := r.open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", r.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", r.Name, err)
	}
	return Decode(data, r.charset)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts bytes in the named encoding to a string. Names follow
// the WHATWG encoding labels, e.g. "gbk", "iso-8859-1" or "shift_jis".
func Decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", fmt.Errorf("unsupported encoding %q: %w", encoding, err)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", encoding, err)
	}
	return string(out), nil
}

// notFound wraps ErrNotFound with the template name.
func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// CleanName normalizes a template name: slashes, no leading slash, no dot
// segments.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	parts := strings.Split(name, "/")
	out := parts[:0]
	for _, p := range parts {
		switch p {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
