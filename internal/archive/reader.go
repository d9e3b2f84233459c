// Package archive reads USFM project bundles from tar.gz and tar.xz files
// and writes repaired files back into a bundle.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/ulikunitz/xz"

	coreerrors "github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/internal/validation"
)

// File is one member of a bundle.
type File struct {
	Name string
	Data []byte
}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens a .tar.gz or .tar.xz bundle.
func NewReader(p string) (*Reader, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	r, err := newReader(f, validation.KindFromName(p))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	r.file = f
	return r, nil
}

func newReader(src io.Reader, kind validation.InputKind) (*Reader, error) {
	switch kind {
	case validation.InputTarXz:
		xzr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return &Reader{Reader: tar.NewReader(xzr)}, nil
	case validation.InputTarGz:
		gzr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return &Reader{Reader: tar.NewReader(gzr), decompressor: gzr}, nil
	}
	return nil, coreerrors.NewUnsupported("archive format", string(kind))
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Visitor is called for each archive entry. Return true to stop.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		// Insecure names are passed on for the visitor to reject.
		if err != nil && (header == nil || !errors.Is(err, tar.ErrInsecurePath)) {
			return fmt.Errorf("read header: %w", err)
		}
		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// ReadUSFM returns the USFM members of a bundle sorted by name. Members
// with unsafe names, other extensions, or content that is not UTF-8 text are
// skipped and reported through skipped, which may be nil.
func ReadUSFM(p string, skipped func(name string, err error)) ([]File, error) {
	r, err := NewReader(p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var files []File
	err = r.Iterate(func(h *tar.Header, content io.Reader) (bool, error) {
		if h.Typeflag != tar.TypeReg {
			return false, nil
		}
		name := path.Clean(h.Name)
		if validation.KindFromName(name) != validation.InputUSFM {
			return false, nil
		}
		if err := validation.ValidateEntryName(h.Name); err != nil {
			report(skipped, h.Name, err)
			return false, nil
		}
		if h.Size > validation.MaxFileSize {
			report(skipped, name, fmt.Errorf("%w: %d bytes", validation.ErrFileTooLarge, h.Size))
			return false, nil
		}
		data, err := io.ReadAll(io.LimitReader(content, validation.MaxFileSize+1))
		if err != nil {
			return true, fmt.Errorf("read %s: %w", name, err)
		}
		if err := validation.ValidateText(name, data); err != nil {
			report(skipped, name, err)
			return false, nil
		}
		files = append(files, File{Name: name, Data: data})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func report(skipped func(string, error), name string, err error) {
	if skipped != nil {
		skipped(name, err)
	}
}
