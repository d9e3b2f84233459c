package report

import (
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
)

// Create opens path for writing. A path ending in ".xz" is compressed.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewIO("create", path, err)
	}
	if !strings.HasSuffix(path, ".xz") {
		return f, nil
	}
	zw, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, errors.NewIO("compress", path, err)
	}
	return &xzFile{zw: zw, f: f}, nil
}

type xzFile struct {
	zw *xz.Writer
	f  *os.File
}

func (x *xzFile) Write(p []byte) (int, error) { return x.zw.Write(p) }

func (x *xzFile) Close() error {
	if err := x.zw.Close(); err != nil {
		x.f.Close()
		return err
	}
	return x.f.Close()
}

// Open reads a file written by Create.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if !strings.HasSuffix(path, ".xz") {
		return f, nil
	}
	zr, err := xz.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.NewIO("decompress", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{zr, f}, nil
}

// WriteExtract writes the records of x as JSON Lines to path.
func WriteExtract(path string, x *usfm.Extraction) (err error) {
	w, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = errors.NewIO("close", path, cerr)
		}
	}()
	if err := x.WriteJSONL(w); err != nil {
		return errors.NewIO("write", path, err)
	}
	return nil
}
