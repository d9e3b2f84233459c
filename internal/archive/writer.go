package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/internal/validation"
)

// epoch is the modification time written for every member so that bundles
// of identical files are identical.
var epoch = time.Unix(0, 0).UTC()

// WriteBundle writes files into a new .tar.xz or .tar.gz at dst, creating
// parent directories as needed. Members are placed under baseDir.
func WriteBundle(dst, baseDir string, files []File) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if err := writeBundle(out, validation.KindFromName(dst), baseDir, files); err != nil {
		out.Close()
		return fmt.Errorf("%s: %w", dst, err)
	}
	return out.Close()
}

func writeBundle(w io.Writer, kind validation.InputKind, baseDir string, files []File) error {
	var comp io.WriteCloser
	switch kind {
	case validation.InputTarXz:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		comp = xzw
	case validation.InputTarGz:
		comp = gzip.NewWriter(w)
	default:
		return errors.NewUnsupported("archive format", string(kind))
	}

	tw := tar.NewWriter(comp)
	for _, f := range files {
		if err := validation.ValidateEntryName(f.Name); err != nil {
			return err
		}
		name := f.Name
		if baseDir != "" {
			name = baseDir + "/" + name
		}
		header := &tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(f.Data)),
			ModTime:  epoch,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if _, err := tw.Write(f.Data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return comp.Close()
}
