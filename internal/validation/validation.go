// Package validation checks paths and file contents before USFM input is
// read, so that archives and oversized or binary files cannot exhaust the
// checker or escape the output directory.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits.
const (
	// MaxFileSize is the largest USFM file accepted (64 MB).
	MaxFileSize = 64 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrFileTooLarge     = errors.New("file too large")
	ErrNotText          = errors.New("not a text file")
)

// ValidatePath checks a user-supplied path for length limits and control
// characters.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(p, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateEntryName checks the name of an archive member. Names must be
// relative and stay inside the archive root.
func ValidateEntryName(name string) error {
	if err := ValidatePath(name); err != nil {
		return err
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) || filepath.IsAbs(name) {
		return fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return ErrPathTraversal
	}
	return nil
}

// ValidateFilename checks that a single path element is safe to create.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// SanitizeFilename turns an archive member or input path into a flat file
// name for output files.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(name, "-")
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

// InputKind classifies an input path.
type InputKind string

// Input kinds.
const (
	InputUSFM    InputKind = "usfm"
	InputTarGz   InputKind = "tar.gz"
	InputTarXz   InputKind = "tar.xz"
	InputUnknown InputKind = "unknown"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// usfmExtensions are the extensions Paratext and other editors use.
var usfmExtensions = map[string]bool{".usfm": true, ".sfm": true, ".ptx": true}

// KindFromName classifies a path by its extension.
func KindFromName(name string) InputKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return InputTarXz
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return InputTarGz
	case usfmExtensions[filepath.Ext(lower)]:
		return InputUSFM
	}
	return InputUnknown
}

// DetectInput checks that the first bytes of a file agree with its name.
func DetectInput(name string, head []byte) (InputKind, error) {
	kind := KindFromName(name)
	switch kind {
	case InputTarGz:
		if !bytes.HasPrefix(head, gzipMagic) {
			return InputUnknown, fmt.Errorf("%s: not gzip compressed", name)
		}
	case InputTarXz:
		if !bytes.HasPrefix(head, xzMagic) {
			return InputUnknown, fmt.Errorf("%s: not xz compressed", name)
		}
	case InputUSFM:
		if len(head) > 0 && !isLikelyText(head) {
			return InputUnknown, fmt.Errorf("%w: %s", ErrNotText, name)
		}
	}
	return kind, nil
}

// ValidateText checks that data is a plausible USFM file: within the size
// limit, free of NUL bytes and valid UTF-8.
func ValidateText(name string, data []byte) error {
	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, name, len(data))
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return fmt.Errorf("%w: %s contains NUL bytes", ErrNotText, name)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrNotText, name)
	}
	return nil
}

// isLikelyText reports whether more than 95% of the bytes in buf are
// printable ASCII or line breaks. UTF-8 multibyte sequences count as neutral.
func isLikelyText(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	printable, control := 0, 0
	for _, b := range buf {
		switch {
		case b >= 0x20 && b <= 0x7e, b == '\t', b == '\n', b == '\r':
			printable++
		case b < 0x20:
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
