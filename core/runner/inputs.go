package runner

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/internal/archive"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
	"github.com/FocuswithJustin/usfmcheck/internal/validation"
)

// Collect reads the files named by paths. Directories are searched for USFM
// files; .tar.gz and .tar.xz bundles contribute their USFM members, named
// "bundle:member". A file named explicitly is read whatever its extension.
// Files that fail validation are skipped with a warning.
func Collect(paths []string) ([]Input, error) {
	var inputs []Input
	for _, p := range paths {
		if err := validation.ValidatePath(p); err != nil {
			return nil, errors.NewValidation("path", err.Error())
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.NewIO("stat", p, err)
		}
		switch {
		case info.IsDir():
			found, err := collectDir(p)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, found...)
		case validation.KindFromName(p) == validation.InputTarGz, validation.KindFromName(p) == validation.InputTarXz:
			found, err := collectBundle(p)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, found...)
		default:
			in, ok, err := readInput(p)
			if err != nil {
				return nil, err
			}
			if ok {
				inputs = append(inputs, in)
			}
		}
	}
	return inputs, nil
}

func collectDir(dir string) ([]Input, error) {
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && validation.KindFromName(p) == validation.InputUSFM {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("walk", dir, err)
	}
	sort.Strings(names)

	var inputs []Input
	for _, p := range names {
		in, ok, err := readInput(p)
		if err != nil {
			return nil, err
		}
		if ok {
			inputs = append(inputs, in)
		}
	}
	return inputs, nil
}

func collectBundle(p string) ([]Input, error) {
	head, err := readHead(p)
	if err != nil {
		return nil, err
	}
	if _, err := validation.DetectInput(p, head); err != nil {
		return nil, errors.NewValidation("input", err.Error())
	}
	files, err := archive.ReadUSFM(p, func(name string, err error) {
		logging.Warn("input_skipped", "bundle", p, "member", name, "error", err)
	})
	if err != nil {
		return nil, errors.NewIO("read", p, err)
	}
	inputs := make([]Input, len(files))
	for i, f := range files {
		inputs[i] = Input{Name: p + ":" + f.Name, Data: f.Data}
	}
	return inputs, nil
}

func readHead(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.NewIO("open", p, err)
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.NewIO("read", p, err)
	}
	return head[:n], nil
}

// readInput reads one file. ok is false when the file was skipped.
func readInput(p string) (in Input, ok bool, err error) {
	info, err := os.Stat(p)
	if err != nil {
		return Input{}, false, errors.NewIO("stat", p, err)
	}
	if info.Size() > validation.MaxFileSize {
		logging.Warn("input_skipped", "path", p, "error", validation.ErrFileTooLarge, "bytes", info.Size())
		return Input{}, false, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Input{}, false, errors.NewIO("read", p, err)
	}
	if err := validation.ValidateText(p, data); err != nil {
		logging.Warn("input_skipped", "path", p, "error", err)
		return Input{}, false, nil
	}
	return Input{Name: p, Data: data}, true, nil
}
